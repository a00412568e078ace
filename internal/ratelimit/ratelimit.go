package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces navigations. Marketplaces profile request cadence, so the
// delay carries jitter; a fixed interval is itself a fingerprint.
type Limiter interface {
	Wait(ctx context.Context, site string) error
	ReportBlocked(site string)
	ReportOK(site string)
}

type siteState struct {
	lastAction time.Time
	backoff    int
}

// PerSite keeps an independent cadence per marketplace: being blocked on
// one site must not slow the others down.
type PerSite struct {
	minDelay   time.Duration
	maxDelay   time.Duration
	maxBackoff int

	mu    sync.Mutex
	sites map[string]*siteState
}

func NewPerSite(minDelay, maxDelay time.Duration) *PerSite {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &PerSite{
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		maxBackoff: 4,
		sites:      make(map[string]*siteState),
	}
}

// Wait blocks until the site's next navigation slot, or until ctx is done.
func (p *PerSite) Wait(ctx context.Context, site string) error {
	p.mu.Lock()
	state, ok := p.sites[site]
	if !ok {
		state = &siteState{}
		p.sites[site] = state
	}

	now := time.Now()
	wait := p.delayFor(state) - now.Sub(state.lastAction)
	if wait < 0 {
		wait = 0
	}
	// Claim the slot before sleeping so concurrent callers queue up
	// behind it instead of piling onto the same slot.
	state.lastAction = now.Add(wait)
	p.mu.Unlock()

	if wait == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// ReportBlocked doubles the site's delay window, up to a cap. Repeated
// challenges mean the current cadence is detectable.
func (p *PerSite) ReportBlocked(site string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.sites[site]; ok && state.backoff < p.maxBackoff {
		state.backoff++
	}
}

// ReportOK unwinds one backoff step after a clean parse.
func (p *PerSite) ReportOK(site string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.sites[site]; ok && state.backoff > 0 {
		state.backoff--
	}
}

func (p *PerSite) delayFor(state *siteState) time.Duration {
	min := p.minDelay << state.backoff
	max := p.maxDelay << state.backoff
	if min >= max {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Nop satisfies Limiter without pacing anything. Used when navigation
// delays are disabled.
type Nop struct{}

func (Nop) Wait(ctx context.Context, site string) error { return nil }
func (Nop) ReportBlocked(site string)                   {}
func (Nop) ReportOK(site string)                        {}
