package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestGetLogLevelFromString(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		" warn ":  zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.WarnLevel,
		"verbose": zerolog.WarnLevel,
	}
	for in, want := range cases {
		if got := GetLogLevelFromString(in); got != want {
			t.Errorf("GetLogLevelFromString(%q) = %v, want %v", in, got, want)
		}
	}
}

/**
 * Test that file output honours the configured level
 * @param {*testing.T} t - Testing framework instance
 */
func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "panel.log")
	InitLogger(path, "info", false)

	Debugf("hidden %d", 1)
	Infof("tunnel %s started", "abc")
	Errorf("tunnel %s failed", "def")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "hidden") {
		t.Errorf("debug line written at info level: %s", content)
	}
	if !strings.Contains(content, "tunnel abc started") || !strings.Contains(content, "tunnel def failed") {
		t.Errorf("missing log lines: %s", content)
	}
}
