package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devmirror/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config rooted in a unique short temp directory per test.
// Unix socket paths are length limited, so t.TempDir is avoided.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base, err := os.MkdirTemp("", "dm")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(base) })

	cfgVal := config.Default()
	cfgVal.Paths.RuntimeDir = filepath.Join(base, "run")
	cfgVal.Paths.SocketPath = filepath.Join(base, "run", "dm.sock")
	cfgVal.Discovery.PollInterval = 1
	cfgVal.Discovery.QueryTimeout = 5
	cfgVal.Discovery.Hotplug = false
	cfgVal.Mirror.RestartGrace = 0
	cfgVal.Mirror.KillTimeout = 1
	cfgVal.Logging.Level = "debug"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithDevices seeds the device list reported by the stubbed discovery binary.
func WithDevices(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		writeDevices(b.t, b.baseDir, ids)
	}
}

// SetDevices replaces the device list reported by the stubbed discovery binary.
func SetDevices(t testing.TB, cfg *config.Config, ids ...string) {
	t.Helper()
	writeDevices(t, BaseDir(cfg), ids)
}

func writeDevices(t testing.TB, baseDir string, ids []string) {
	t.Helper()
	target := filepath.Join(baseDir, "devices")
	tmp := target + ".tmp"
	content := strings.Join(ids, "\n")
	if content != "" {
		content += "\n"
	}
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		t.Fatalf("write devices: %v", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatalf("rename devices: %v", err)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the configured discovery and
// mirror binaries are stubbed: discovery prints the list written by
// WithDevices, and mirror sleeps until it is signalled.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{b.cfg.Discovery.Binary, b.cfg.Mirror.Binary}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		for _, name := range names {
			script := "#!/bin/sh\nexit 0\n"
			switch name {
			case b.cfg.Discovery.Binary:
				script = discoveryScript(b.baseDir)
			case b.cfg.Mirror.Binary:
				script = "#!/bin/sh\nexec sleep 600\n"
			}
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		b.t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
}

// WithMirrorScript replaces the stubbed mirror binary with the given shell body.
// Apply it after WithStubbedBinaries.
func WithMirrorScript(body string) ConfigOption {
	return func(b *configBuilder) {
		target := filepath.Join(b.baseDir, "bin", b.cfg.Mirror.Binary)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
			b.t.Fatalf("write mirror stub: %v", err)
		}
	}
}

func discoveryScript(baseDir string) string {
	devices := filepath.Join(baseDir, "devices")
	return fmt.Sprintf(`#!/bin/sh
if [ "$1" = "devices" ]; then
	echo "List of devices attached"
	if [ -f %q ]; then
		while read -r id; do
			[ -n "$id" ] && printf '%%s\tdevice\n' "$id"
		done < %q
	fi
	echo
fi
exit 0
`, devices, devices)
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.RuntimeDir)
}
