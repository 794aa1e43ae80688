package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// PollerConfig holds configuration for the pending-row sweep.
type PollerConfig struct {
	// Interval is how often to check for pending rows (default: 2m)
	Interval time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 2 * time.Minute}
}

// Poller runs a sweep function on a ticker until stopped.
type Poller struct {
	sweep  func(context.Context) error
	config PollerConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewPoller(sweep func(context.Context) error, config PollerConfig) *Poller {
	if config.Interval <= 0 {
		config.Interval = DefaultPollerConfig().Interval
	}
	return &Poller{sweep: sweep, config: config}
}

// Start begins the loop. Returns an error if already running.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("poller is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Register sweep started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Register sweep stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Register sweep stop timed out")
		return ctx.Err()
	}
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.sweep(ctx); err != nil {
				slog.ErrorContext(ctx, "Register sweep failed", "error", err)
			}
		}
	}
}
