package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/radio-control/rcpilot/internal/config"
)

func testLogConfig(t *testing.T, level string) config.LogConfig {
	cfg := config.Baseline().Log
	cfg.Dir = t.TempDir()
	cfg.Level = level
	return cfg
}

func TestNewWritesJSON(t *testing.T) {
	l, err := New(testLogConfig(t, "debug"), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	l.Debug("frame sent", "channel", 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(l.LogFile)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	found := false
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec map[string]interface{}
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		if rec["msg"] == "frame sent" {
			found = true
			if rec["channel"] != float64(3) {
				t.Errorf("channel attr = %v, want 3", rec["channel"])
			}
		}
	}
	if !found {
		t.Error("debug record missing from log file")
	}
}

func TestConsoleMirrorsInfoOnly(t *testing.T) {
	var console bytes.Buffer
	l, err := New(testLogConfig(t, "debug"), &console)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer l.Close()

	l.Debug("quiet detail")
	l.Info("operator notice")

	out := console.String()
	if strings.Contains(out, "quiet detail") {
		t.Error("debug record leaked to console")
	}
	if !strings.Contains(out, "operator notice") {
		t.Error("info record missing from console")
	}
}

func TestParseLevel(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", ""} {
		if _, err := ParseLevel(lvl); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", lvl, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel(verbose) accepted")
	}
}
