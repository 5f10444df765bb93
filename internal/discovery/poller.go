package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"devmirror/internal/config"
	"devmirror/internal/logging"
)

// Poller periodically queries the discovery tool and publishes changed device sets.
type Poller struct {
	logger       *slog.Logger
	runner       Runner
	mailbox      *Mailbox
	binary       string
	listArgs     []string
	startArgs    []string
	pollInterval time.Duration
	queryTimeout time.Duration
	nudge        chan struct{}

	lastRaw   string
	published DeviceSet
}

// Option customizes a Poller.
type Option func(*Poller)

// WithRunner replaces the command runner, mainly for tests.
func WithRunner(r Runner) Option {
	return func(p *Poller) {
		if r != nil {
			p.runner = r
		}
	}
}

// NewPoller builds a poller from the discovery configuration.
func NewPoller(cfg *config.Config, mailbox *Mailbox, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		logger:       logging.NewComponentLogger(logger, "poller"),
		runner:       ExecRunner{},
		mailbox:      mailbox,
		binary:       cfg.Discovery.Binary,
		listArgs:     append([]string(nil), cfg.Discovery.ListArgs...),
		startArgs:    append([]string(nil), cfg.Discovery.StartArgs...),
		pollInterval: cfg.PollInterval(),
		queryTimeout: cfg.QueryTimeout(),
		nudge:        make(chan struct{}, 1),
		published:    make(DeviceSet),
	}
	if p.pollInterval <= 0 {
		p.pollInterval = 5 * time.Second
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartBackend runs the discovery tool's server start command once.
func (p *Poller) StartBackend(ctx context.Context) error {
	if len(p.startArgs) == 0 {
		return nil
	}
	out, err := p.runner.Output(ctx, p.binary, p.startArgs...)
	if err != nil {
		return fmt.Errorf("start discovery backend %s %s: %w", p.binary, strings.Join(p.startArgs, " "), withStderr(err))
	}
	p.logger.Info("discovery backend started",
		logging.String(logging.FieldEventType, "backend_started"),
		logging.String("binary", p.binary),
		logging.String("output", strings.TrimSpace(string(out))),
	)
	return nil
}

// Nudge requests an immediate poll. It never blocks; nudges that arrive
// while one is already pending are merged.
func (p *Poller) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. A failing discovery query stops the loop
// and is returned; cancellation returns nil.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("device polling started",
		logging.String(logging.FieldEventType, "poller_started"),
		logging.Duration("interval", p.pollInterval),
	)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		if err := p.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			p.logger.Debug("device polling stopped")
			return nil
		case <-ticker.C:
		case <-p.nudge:
			p.logger.Debug("poll requested by hotplug event")
		}
	}
}

func (p *Poller) poll(ctx context.Context) error {
	queryCtx := ctx
	if p.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, p.queryTimeout)
		defer cancel()
	}

	out, err := p.runner.Output(queryCtx, p.binary, p.listArgs...)
	if err != nil {
		return fmt.Errorf("query devices with %s %s: %w", p.binary, strings.Join(p.listArgs, " "), withStderr(err))
	}

	raw := string(out)
	if strings.TrimSpace(raw) == "" || raw == p.lastRaw {
		return nil
	}
	p.lastRaw = raw

	set := ParseDeviceList(raw)
	if set.Equal(p.published) {
		return nil
	}
	added, removed := p.published.Diff(set)
	p.published = set.Clone()

	p.logger.Info("device set changed",
		logging.String(logging.FieldEventType, "device_set_changed"),
		logging.Int("devices", len(set)),
		logging.Any("added", added),
		logging.Any("removed", removed),
	)
	p.mailbox.Publish(set)
	return nil
}

func withStderr(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
			return fmt.Errorf("%w: %s", err, stderr)
		}
	}
	return err
}
