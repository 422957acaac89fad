package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/radio-control/rcpilot/internal/config"
)

func testLogConfig(t *testing.T) config.LogConfig {
	cfg := config.Baseline().Log
	cfg.Dir = t.TempDir()
	return cfg
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit file: %v", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line %q is not JSON: %v", scanner.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	cfg := testLogConfig(t)

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	expectedPath := filepath.Join(cfg.Dir, FileName)
	if logger.GetFilePath() != expectedPath {
		t.Errorf("GetFilePath() = %s, want %s", logger.GetFilePath(), expectedPath)
	}
	if _, err := os.Stat(expectedPath); os.IsNotExist(err) {
		t.Error("audit log file was not created")
	}
}

func TestNewLoggerBadDir(t *testing.T) {
	cfg := testLogConfig(t)
	blocker := filepath.Join(cfg.Dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg.Dir = filepath.Join(blocker, "sub")

	if _, err := NewLogger(cfg); err == nil {
		t.Error("NewLogger() under a regular file succeeded")
	}
}

func TestLogActionSuccessAndFailure(t *testing.T) {
	logger, err := NewLogger(testLogConfig(t))
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}

	ctx := WithSource(WithUser(context.Background(), "pilot-1"), "api")
	logger.LogAction(ctx, "rc", map[string]interface{}{"channel": 3, "value": 1850}, "", nil, 2*time.Millisecond)
	logger.LogAction(context.Background(), "movez", map[string]interface{}{"percent": 150}, "INVALID_RANGE", errors.New("percent out of range"), time.Millisecond)
	_ = logger.Close()

	entries := readEntries(t, logger.GetFilePath())
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	ok := entries[0]
	if ok.Action != "rc" || ok.Outcome != OutcomeSuccess || ok.Code != OutcomeSuccess {
		t.Errorf("success entry = %+v", ok)
	}
	if ok.User != "pilot-1" || ok.Source != "api" {
		t.Errorf("identity = %s/%s, want pilot-1/api", ok.User, ok.Source)
	}
	if ok.LatencyMs != 2 {
		t.Errorf("LatencyMs = %v, want 2", ok.LatencyMs)
	}

	bad := entries[1]
	if bad.Outcome != OutcomeError || bad.Code != "INVALID_RANGE" {
		t.Errorf("failure entry = %+v", bad)
	}
	if bad.User != "local" || bad.Source != "console" {
		t.Errorf("default identity = %s/%s, want local/console", bad.User, bad.Source)
	}
	if bad.Params["error"] != "percent out of range" {
		t.Errorf("error param = %v", bad.Params["error"])
	}
}

func TestLogActionDoesNotMutateParams(t *testing.T) {
	logger, err := NewLogger(testLogConfig(t))
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	params := map[string]interface{}{"axis": "yaw"}
	logger.LogAction(context.Background(), "yaw", params, "INVALID_RANGE", errors.New("bad"), 0)

	if _, ok := params["error"]; ok {
		t.Error("LogAction added error to the caller's params")
	}
}

func TestConcurrentLogging(t *testing.T) {
	logger, err := NewLogger(testLogConfig(t))
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				logger.LogAction(context.Background(), "rc", map[string]interface{}{"i": i, "j": j}, "", nil, 0)
			}
		}(i)
	}
	wg.Wait()
	_ = logger.Close()

	if got := len(readEntries(t, logger.GetFilePath())); got != 100 {
		t.Errorf("got %d entries, want 100", got)
	}
}

func TestRotateAndClose(t *testing.T) {
	cfg := testLogConfig(t)
	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("NewLogger() failed: %v", err)
	}

	logger.LogAction(context.Background(), "hover", nil, "", nil, 0)
	if err := logger.Rotate(); err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	logger.LogAction(context.Background(), "status", nil, "", nil, 0)

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}

	// Writes after Close are dropped
	logger.LogAction(context.Background(), "late", nil, "", nil, 0)

	files, _ := filepath.Glob(filepath.Join(cfg.Dir, "audit*.jsonl"))
	if len(files) != 2 {
		t.Errorf("files after rotate = %v, want current and one backup", files)
	}

	entries := readEntries(t, logger.GetFilePath())
	if len(entries) != 1 || entries[0].Action != "status" {
		t.Errorf("current file entries = %+v, want only status", entries)
	}
}
