package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/radio-control/rcpilot/internal/audit"
	"github.com/radio-control/rcpilot/internal/command"
)

// DefaultPrompt is written before every line when the console is interactive.
const DefaultPrompt = "rcpilot> "

// Executor runs one command line.
type Executor interface {
	Execute(ctx context.Context, line string) (*command.Result, error)
}

// Options configures a Console.
type Options struct {
	Prompt string
	Logger *slog.Logger
}

// Console is a line-oriented operator shell.
type Console struct {
	exec   Executor
	in     io.Reader
	out    io.Writer
	prompt string
	logger *slog.Logger

	// out is shared with the speech notifier
	mu sync.Mutex
}

// New creates a console reading from in and writing to out.
func New(exec Executor, in io.Reader, out io.Writer, opts Options) *Console {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Console{
		exec:   exec,
		in:     in,
		out:    out,
		prompt: opts.Prompt,
		logger: opts.Logger.With(slog.String("component", "console")),
	}
}

// Writer returns a writer that serializes with the console's own output.
func (c *Console) Writer() io.Writer {
	return lockedWriter{c}
}

// Run reads lines until EOF, "quit"/"exit", or ctx is cancelled. It returns
// nil on a clean end of input.
func (c *Console) Run(ctx context.Context) error {
	ctx = audit.WithSource(ctx, "console")

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	c.logger.Info("console started")
	c.writePrompt()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("console stopped")
			return nil
		case line, ok := <-lines:
			if !ok {
				var err error
				select {
				case err = <-readErr:
				default:
				}
				if err != nil {
					return fmt.Errorf("console read: %w", err)
				}
				c.logger.Info("console input closed")
				return nil
			}
			if quit(line) {
				c.logger.Info("console quit by operator")
				return nil
			}
			c.Handle(ctx, line)
			c.writePrompt()
		}
	}
}

// Handle runs one line and prints its output or error.
func (c *Console) Handle(ctx context.Context, line string) {
	result, err := c.exec.Execute(ctx, line)

	c.mu.Lock()
	defer c.mu.Unlock()
	if result != nil {
		for _, out := range result.Output {
			fmt.Fprintln(c.out, out)
		}
	}
	if err != nil {
		if command.IsUsage(err) {
			fmt.Fprintln(c.out, err.Error())
		} else {
			fmt.Fprintf(c.out, "Error: %s (%s)\n", err.Error(), command.Code(err))
		}
	}
}

func (c *Console) writePrompt() {
	if c.prompt == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, c.prompt)
}

func quit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit":
		return true
	}
	return false
}

type lockedWriter struct {
	c *Console
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	return w.c.out.Write(p)
}
