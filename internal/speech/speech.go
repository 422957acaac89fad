package speech

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Priority is a speech-dispatcher message priority.
type Priority string

// Priorities understood by speech-dispatcher.
const (
	Important    Priority = "important"
	Message      Priority = "message"
	Text         Priority = "text"
	Notification Priority = "notification"
	Progress     Priority = "progress"
)

// ParsePriority accepts the five speech-dispatcher priority names.
func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(s)); p {
	case Important, Message, Text, Notification, Progress:
		return p, nil
	}
	return "", fmt.Errorf("unknown speech priority %q", s)
}

// Backend speaks text.
type Backend interface {
	Speak(ctx context.Context, text string, priority Priority) error
}

// SpdSay runs the speech-dispatcher command line client.
type SpdSay struct {
	// Command is the executable, normally "spd-say".
	Command string
}

// Speak runs the client once. It returns when the client has queued the
// text or ctx expires.
func (s SpdSay) Speak(ctx context.Context, text string, priority Priority) error {
	command := s.Command
	if command == "" {
		command = "spd-say"
	}
	cmd := exec.CommandContext(ctx, command,
		"--output-module", "festival",
		"--language", "en",
		"--punctuation-mode", "some",
		"--priority", string(priority),
		"--", text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// SayFunc observes every message handed to the notifier.
type SayFunc func(text string, priority Priority, spoken bool)

// Options configures a Notifier.
type Options struct {
	Console io.Writer
	Backend Backend
	Enabled bool

	// Timeout bounds one backend call.
	Timeout time.Duration

	// Home locates the speech-dispatcher pid file. Defaults to $HOME.
	Home string

	// Settle is how long to wait after interrupting a stale dispatcher.
	Settle time.Duration

	OnSay  SayFunc
	Logger *slog.Logger
}

// Notifier writes messages to the console and optionally speaks them.
type Notifier struct {
	console io.Writer
	backend Backend
	enabled atomic.Bool
	timeout time.Duration
	home    string
	settle  time.Duration
	onSay   SayFunc
	logger  *slog.Logger

	consoleMu sync.Mutex
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a notifier and interrupts a stale speech-dispatcher.
func New(opts Options) *Notifier {
	if opts.Console == nil {
		opts.Console = io.Discard
	}
	if opts.Backend == nil {
		opts.Backend = SpdSay{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Home == "" {
		opts.Home = os.Getenv("HOME")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	n := &Notifier{
		console: opts.Console,
		backend: opts.Backend,
		timeout: opts.Timeout,
		home:    opts.Home,
		settle:  opts.Settle,
		onSay:   opts.OnSay,
		logger:  opts.Logger.With(slog.String("component", "speech")),
	}
	n.enabled.Store(opts.Enabled)

	n.killStaleDispatcher()
	return n
}

// SetEnabled toggles the speech backend. Console output is unaffected.
func (n *Notifier) SetEnabled(enabled bool) {
	n.enabled.Store(enabled)
}

// Enabled reports whether text is spoken.
func (n *Notifier) Enabled() bool {
	return n.enabled.Load()
}

// Say writes text to the console and, when enabled, speaks it in the
// background.
func (n *Notifier) Say(text string, priority Priority) {
	if priority == "" {
		priority = Important
	}

	n.consoleMu.Lock()
	fmt.Fprintln(n.console, text)
	n.consoleMu.Unlock()

	spoken := n.enabled.Load() && strings.TrimSpace(text) != ""
	if n.onSay != nil {
		n.onSay(text, priority, spoken)
	}
	if !spoken {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.backend.Speak(ctx, text, priority); err != nil {
			n.logger.Warn("speech failed",
				slog.String("priority", string(priority)),
				slog.String("error", err.Error()))
		}
	}()
}

// Close waits for pending speech and interrupts the dispatcher.
func (n *Notifier) Close() error {
	n.closeOnce.Do(func() {
		n.wg.Wait()
		n.killStaleDispatcher()
	})
	return nil
}

// PidFile returns the speech-dispatcher pid file under home.
func PidFile(home string) string {
	return filepath.Join(home, ".speech-dispatcher", "pid", "speech-dispatcher.pid")
}

// killStaleDispatcher interrupts the dispatcher recorded in the pid file so
// the next message starts a fresh one. Failures are ignored.
func (n *Notifier) killStaleDispatcher() {
	if n.home == "" {
		return
	}

	data, err := os.ReadFile(PidFile(n.home))
	if err != nil {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 1 {
		return
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return
	}

	n.logger.Info("Killing speech dispatcher", slog.Int("pid", pid))
	if err := proc.Signal(os.Interrupt); err != nil {
		return
	}
	if n.settle > 0 {
		time.Sleep(n.settle)
	}
}
