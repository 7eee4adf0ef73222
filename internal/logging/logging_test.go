package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/guestbook/internal/config"
)

func TestLevelForVerbosity(t *testing.T) {
	tests := map[int]string{0: "info", 1: "debug", 2: "trace", 5: "trace"}
	for verbosity, want := range tests {
		if got := LevelForVerbosity(verbosity); got != want {
			t.Errorf("LevelForVerbosity(%d) = %q, want %q", verbosity, got, want)
		}
	}
}

func TestApplyOutputs_WritesConsoleAndFile(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	})

	path := filepath.Join(t.TempDir(), "logs", "guestbook.log")
	var console bytes.Buffer

	applyLevel("debug")
	closer := applyOutputs(&console, config.LogConfig{File: path, MaxBackups: -1, MaxAgeDays: -1})
	log.Debug().Str("component", "test").Msg("Hello from the guestbook")
	if err := closer.Close(); err != nil {
		t.Fatalf("failed to close log file: %v", err)
	}

	if !strings.Contains(console.String(), "Hello from the guestbook") {
		t.Fatalf("expected console output, got %q", console.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Fatalf("expected structured field in log file, got %q", data)
	}
}

func TestFilePathForDB(t *testing.T) {
	if got := FilePathForDB("postgres://guest@localhost/guestbook"); got != DefaultLogFilePath {
		t.Errorf("postgres DSN: got %q, want %q", got, DefaultLogFilePath)
	}
	got := FilePathForDB("sqlite:///var/lib/guestbook/guestbook.db")
	if got != filepath.Join("/var/lib/guestbook", DefaultLogFilePath) {
		t.Errorf("sqlite DSN: got %q", got)
	}
}
