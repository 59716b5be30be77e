package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/config"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "agencyhub.log")
	logger, err := New(config.Config{LogLevel: "info", LogFormat: FormatJSON, LogFile: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("lane moved")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"lane moved"`) {
		t.Errorf("expected JSON info line, got %q", out)
	}
	if !strings.Contains(out, `"service":"agencyhub"`) {
		t.Errorf("expected service field, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
}

func TestNew_Console(t *testing.T) {
	t.Parallel()

	if _, err := New(config.Config{LogLevel: "debug", LogFormat: FormatConsole}); err != nil {
		t.Fatalf("New(console) error = %v", err)
	}
}

func TestNew_RejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := New(config.Config{LogLevel: "loud", LogFormat: FormatJSON}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New(config.Config{LogLevel: "info", LogFormat: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
}
