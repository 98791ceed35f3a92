package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// BuildFunc produces a fresh snapshot.
type BuildFunc func(ctx context.Context) (*Snapshot, error)

// Provider holds the current snapshot and rebuilds it on demand.
type Provider struct {
	build   BuildFunc
	logger  *slog.Logger
	current atomic.Pointer[Snapshot]

	mu        sync.Mutex // serialises Refresh and guards listeners
	listeners []func(*Snapshot)
}

// NewProvider builds the initial snapshot and returns a provider serving it.
func NewProvider(ctx context.Context, build BuildFunc, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Provider{build: build, logger: logger}
	snap, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build initial snapshot: %w", err)
	}
	p.current.Store(snap)
	return p, nil
}

// Static returns a provider that always serves snap.
func Static(snap *Snapshot) *Provider {
	p := &Provider{
		build:  func(context.Context) (*Snapshot, error) { return snap, nil },
		logger: slog.New(slog.DiscardHandler),
	}
	p.current.Store(snap)
	return p
}

// Current returns the snapshot in effect. Callers should hold on to the
// returned pointer for the duration of one request.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// OnRefresh registers fn to run after every successful swap.
func (p *Provider) OnRefresh(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Refresh rebuilds the snapshot and swaps it in. On failure the previous
// snapshot stays current.
func (p *Provider) Refresh(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap, err := p.build(ctx)
	if err != nil {
		p.logger.Error("snapshot refresh failed", "error", err)
		return fmt.Errorf("failed to refresh snapshot: %w", err)
	}
	if old := p.current.Swap(snap); old != nil && snap != nil {
		p.logger.Debug("snapshot refreshed", "old", old.Meta().ID, "new", snap.Meta().ID)
	}

	for _, fn := range p.listeners {
		fn(snap)
	}
	return nil
}

// Run refreshes every interval until ctx is done. A non-positive interval
// disables periodic refresh and Run just waits for ctx.
func (p *Provider) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Errors are logged in Refresh; keep serving the old snapshot.
			_ = p.Refresh(ctx)
		}
	}
}

// SetBuild replaces the build function used by later refreshes.
func (p *Provider) SetBuild(build BuildFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.build = build
}
