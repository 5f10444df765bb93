package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"devmirror/internal/ledger"
	"devmirror/internal/logging"
	"devmirror/internal/supervisor"
)

// Target receives operator requests. *supervisor.Supervisor satisfies it.
type Target interface {
	Devices(ctx context.Context) ([]supervisor.DeviceStatus, error)
	Restart(ctx context.Context, id string) error
	Quit(ctx context.Context) error
	History(ctx context.Context, device string, limit int) ([]ledger.Event, error)
}

const prompt = "> "

// Shell reads operator commands and forwards them to a Target.
type Shell struct {
	target Target
	in     io.Reader
	out    io.Writer
	logger *slog.Logger
	prompt bool
}

// NewShell creates a shell reading from in and writing replies to out. The
// prompt is only printed when in is a terminal.
func NewShell(target Target, in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	return &Shell{
		target: target,
		in:     in,
		out:    out,
		logger: logging.NewComponentLogger(logger, "control"),
		prompt: isTerminal(in),
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Run reads lines until quit, end of input, or ctx cancellation. The reader
// goroutine may stay blocked in Read after Run returns.
func (s *Shell) Run(ctx context.Context) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		s.showPrompt()
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil {
				s.logger.Debug("operator input failed", logging.Error(err))
			}
			s.logger.Info("operator input closed; shutting down",
				logging.String(logging.FieldEventType, "input_closed"),
			)
			return s.quit(ctx)
		case line := <-lines:
			cmd, ok := ParseCommand(line)
			if !ok {
				if strings.TrimSpace(line) != "" {
					s.logger.Debug("ignoring operator input", logging.String("line", line))
				}
				continue
			}
			if done := s.execute(ctx, cmd); done {
				return nil
			}
		}
	}
}

func (s *Shell) showPrompt() {
	if s.prompt {
		fmt.Fprint(s.out, prompt)
	}
}

func (s *Shell) quit(ctx context.Context) error {
	if err := s.target.Quit(ctx); err != nil && !errors.Is(err, supervisor.ErrStopped) && ctx.Err() == nil {
		return fmt.Errorf("send quit: %w", err)
	}
	return nil
}

// execute runs one command and reports whether the shell should stop.
func (s *Shell) execute(ctx context.Context, cmd Command) bool {
	switch cmd.Kind {
	case KindQuit:
		if err := s.quit(ctx); err != nil {
			s.logger.Warn("quit failed", logging.Error(err))
		}
		return true
	case KindListDevices:
		statuses, err := s.target.Devices(ctx)
		if err != nil {
			return s.stopped(err)
		}
		fmt.Fprintln(s.out, FormatDeviceLine(statuses))
	case KindRestart:
		if err := s.target.Restart(ctx, cmd.Device); err != nil {
			return s.stopped(err)
		}
	case KindHistory:
		events, err := s.target.History(ctx, cmd.Device, cmd.Limit)
		if err != nil {
			if errors.Is(err, supervisor.ErrStopped) || ctx.Err() != nil {
				return true
			}
			fmt.Fprintf(s.out, "history unavailable: %v\n", err)
			return false
		}
		for _, ev := range events {
			fmt.Fprintln(s.out, FormatEvent(ev))
		}
	case KindHelp:
		fmt.Fprintln(s.out, HelpText)
	}
	return false
}

func (s *Shell) stopped(err error) bool {
	if errors.Is(err, supervisor.ErrStopped) || errors.Is(err, context.Canceled) {
		return true
	}
	s.logger.Warn("command failed", logging.Error(err))
	return false
}

// FormatDeviceLine renders device identifiers space-separated on one line.
func FormatDeviceLine(statuses []supervisor.DeviceStatus) string {
	ids := make([]string, 0, len(statuses))
	for _, st := range statuses {
		ids = append(ids, st.ID)
	}
	return strings.Join(ids, " ")
}

// FormatEvent renders one ledger event for terminal output.
func FormatEvent(ev ledger.Event) string {
	line := fmt.Sprintf("%s  %-12s %s", ev.At.Local().Format(time.TimeOnly), ev.Kind, ev.Device)
	if ev.Detail != "" {
		line += "  " + ev.Detail
	}
	return line
}
