//
//
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radio-control/rcpilot/internal/config"
)

// FileName is the audit file inside the log directory.
const FileName = "audit.jsonl"

// Outcomes.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeError   = "ERROR"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Source    string                 `json:"source"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMs float64                `json:"latencyMs"`
}

type contextKey int

const (
	userKey contextKey = iota
	sourceKey
)

// WithUser records the caller identity in ctx.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// WithSource records where a command came from: console, api or althold.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey, source)
}

// UserFromContext returns the caller identity, "local" when none was set.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey).(string); ok && user != "" {
		return user
	}
	return "local"
}

// SourceFromContext returns the command source, "console" when none was set.
func SourceFromContext(ctx context.Context) string {
	if source, ok := ctx.Value(sourceKey).(string); ok && source != "" {
		return source
	}
	return "console"
}

// Logger appends audit records.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      io.WriteCloser
	rotator  *lumberjack.Logger
}

// NewLogger opens audit.jsonl in the configured log directory.
func NewLogger(cfg config.LogConfig) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(cfg.Dir, FileName)

	// Create the file up front so permission problems surface at startup
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = f.Close()

	rotator := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}

	return &Logger{
		filePath: filePath,
		out:      rotator,
		rotator:  rotator,
	}, nil
}

// LogAction records one command outcome. An empty code or "SUCCESS" is a
// success; any other code is stored with the error text.
func (l *Logger) LogAction(ctx context.Context, action string, params map[string]interface{}, code string, err error, latency time.Duration) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		User:      UserFromContext(ctx),
		Source:    SourceFromContext(ctx),
		Action:    action,
		Params:    params,
		Outcome:   OutcomeSuccess,
		Code:      OutcomeSuccess,
		LatencyMs: float64(latency.Microseconds()) / 1000,
	}
	if code != "" && code != OutcomeSuccess {
		entry.Outcome = OutcomeError
		entry.Code = code
	}
	if err != nil {
		params := make(map[string]interface{}, len(entry.Params)+1)
		for k, v := range entry.Params {
			params[k] = v
		}
		params["error"] = err.Error()
		entry.Params = params
	}

	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// GetFilePath returns the path of the active audit file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate starts a new audit file, keeping the old one as a backup.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.rotator == nil {
		return nil
	}
	return l.rotator.Rotate()
}

// Close closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	err := l.out.Close()
	l.out = nil
	return err
}
