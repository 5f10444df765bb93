package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devmirror/internal/config"
	"devmirror/internal/logging"
)

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestAttachDiagnosticLogWritesJSONFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.RuntimeDir = t.TempDir()

	logger := attachDiagnosticLog(logging.NewNop(), &cfg, "session-1")
	logger.Debug("diagnostic record", logging.Device("ABC123"))

	matches, err := filepath.Glob(filepath.Join(cfg.Paths.RuntimeDir, "debug", "devmirror-*.log"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one debug log, got %v", matches)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read debug log: %v", err)
	}
	text := string(data)
	for _, want := range []string{"diagnostic mode enabled", "diagnostic record", `"session_id":"session-1"`, `"device":"ABC123"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("debug log missing %q:\n%s", want, text)
		}
	}
}
