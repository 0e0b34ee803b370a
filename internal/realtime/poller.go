package realtime

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	// push claims to be up: the poll is only a safety net for silently
	// dropped messages, so it stays slow
	PollHealthy = 30 * time.Second
	// push is down: the poll is the delivery path
	PollDegraded = 10 * time.Second
)

// Poller re-fetches authoritative state on a timer while a session has a live
// order. The fetch reports done=true once the order is terminal, which stops
// the poller for good.
type Poller struct {
	fetch     func(ctx context.Context) (done bool, err error)
	connected func() bool

	healthy  time.Duration
	degraded time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func NewPoller(fetch func(ctx context.Context) (bool, error), connected func() bool) *Poller {
	return &Poller{fetch: fetch, connected: connected, healthy: PollHealthy, degraded: PollDegraded}
}

// SetIntervals overrides the defaults. Used by tests; production keeps the
// 10s/30s split.
func (p *Poller) SetIntervals(healthy, degraded time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy, p.degraded = healthy, degraded
}

// Start is idempotent; a running poller stays running.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	go p.loop(ctx)
}

func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if !p.running {
		return
	}
	p.cancel()
	p.cancel = nil
	p.running = false
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected != nil && p.connected() {
		return p.healthy
	}
	return p.degraded
}

func (p *Poller) loop(ctx context.Context) {
	timer := time.NewTimer(p.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		done, err := p.fetch(ctx)
		if err != nil && ctx.Err() == nil {
			log.Printf("[poller] fetch failed: %v", err)
		}
		if done {
			p.mu.Lock()
			p.stopLocked()
			p.mu.Unlock()
			return
		}
		timer.Reset(p.interval())
	}
}
