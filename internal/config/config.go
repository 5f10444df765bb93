package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Discovery configures the external tool that lists attached devices.
type Discovery struct {
	Binary       string   `toml:"binary"`
	ListArgs     []string `toml:"list_args"`
	StartArgs    []string `toml:"start_args"`
	PollInterval int      `toml:"poll_interval"`
	QueryTimeout int      `toml:"query_timeout"`
	Hotplug      bool     `toml:"hotplug"`
}

// Mirror configures the per-device mirroring process.
type Mirror struct {
	Binary       string   `toml:"binary"`
	SerialFlag   string   `toml:"serial_flag"`
	Args         []string `toml:"args"`
	RestartGrace int      `toml:"restart_grace"`
	KillTimeout  int      `toml:"kill_timeout"`
}

// Paths contains runtime file locations.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	SocketPath string `toml:"socket_path"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	File   string `toml:"file"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	DeviceEvents   bool   `toml:"device_events"`
	Failures       bool   `toml:"failures"`
}

// Config encapsulates all configuration values for devmirror.
//
// Configuration sections by subsystem:
//   - Discovery: the device listing tool and polling cadence
//   - Mirror: the mirroring tool, its arguments, and teardown timings
//   - Paths: lock file and control socket locations
//   - Logging: log format, level, and optional JSON file
//   - Notifications: ntfy push notification settings
type Config struct {
	Discovery     Discovery     `toml:"discovery"`
	Mirror        Mirror        `toml:"mirror"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. A missing file yields the defaults.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("devmirror.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the runtime directory holding the lock and socket.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.RuntimeDir, filepath.Dir(c.Paths.SocketPath)}
	if c.Logging.File != "" {
		dirs = append(dirs, filepath.Dir(c.Logging.File))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.RuntimeDir, "devmirror.lock")
}

// PollInterval returns the discovery polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Discovery.PollInterval) * time.Second
}

// QueryTimeout bounds a single discovery query.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Discovery.QueryTimeout) * time.Second
}

// RestartGrace is the pause between killing and respawning a mirror.
func (c *Config) RestartGrace() time.Duration {
	return time.Duration(c.Mirror.RestartGrace) * time.Second
}

// KillTimeout is how long a mirror gets to exit after SIGTERM before SIGKILL.
func (c *Config) KillTimeout() time.Duration {
	return time.Duration(c.Mirror.KillTimeout) * time.Second
}

// MirrorArgs builds the mirror command line arguments for a device.
func (c *Config) MirrorArgs(device string) []string {
	args := make([]string, 0, len(c.Mirror.Args)+2)
	if c.Mirror.SerialFlag != "" {
		args = append(args, c.Mirror.SerialFlag)
	}
	args = append(args, device)
	return append(args, c.Mirror.Args...)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultRuntimeDir() string {
	if base, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "devmirror")
	}
	return defaultStateDir
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
