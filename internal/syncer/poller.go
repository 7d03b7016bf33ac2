package syncer

import (
	"context"
	"sync"
	"time"
)

// poller re-runs a tick for the selected conversation. Each start bumps the
// generation; a tick from an older generation never runs.
type poller struct {
	interval time.Duration

	mu     sync.Mutex
	gen    uint64
	target string
	cancel context.CancelFunc
}

func newPoller(interval time.Duration) *poller {
	return &poller{interval: interval}
}

func (p *poller) start(parent context.Context, target string, spawn func(func(context.Context)) bool, tick func(ctx context.Context, target string)) {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(parent)
	p.target, p.cancel = target, cancel
	p.mu.Unlock()

	started := spawn(func(context.Context) {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !p.live(gen) {
					return
				}
				tick(ctx, target)
			}
		}
	})
	if !started {
		cancel()
	}
}

func (p *poller) live(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gen == gen && p.cancel != nil
}

func (p *poller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	p.target = ""
}

func (p *poller) current() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target, p.cancel != nil
}
