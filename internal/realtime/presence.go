package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Presence tracks the distinct sessions seen within a trailing window.
// The count is an estimate for display only; it is never reconciled with
// the event log.
type Presence interface {
	// Touch marks the session active now and reports whether it was
	// already active within the window
	Touch(ctx context.Context, sessionID string) (bool, error)

	// Prune forgets sessions idle longer than the window and returns the
	// remaining count
	Prune(ctx context.Context) (int, error)

	// Count returns the number of sessions active within the window
	Count(ctx context.Context) (int, error)
}

// MemoryPresence is an in-process Presence keyed by session id
type MemoryPresence struct {
	mu       sync.RWMutex
	sessions map[string]time.Time
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewMemoryPresence creates a presence window. now is the clock, time.Now
// when nil.
func NewMemoryPresence(window time.Duration, now func() time.Time, logger *zap.Logger) *MemoryPresence {
	if now == nil {
		now = time.Now
	}
	return &MemoryPresence{
		sessions: make(map[string]time.Time),
		window:   window,
		now:      now,
		logger:   logger,
	}
}

func (p *MemoryPresence) Touch(_ context.Context, sessionID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	last, exists := p.sessions[sessionID]
	p.sessions[sessionID] = now

	return exists && now.Sub(last) <= p.window, nil
}

func (p *MemoryPresence) Prune(_ context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	expired := 0
	for id, last := range p.sessions {
		if now.Sub(last) > p.window {
			delete(p.sessions, id)
			expired++
		}
	}

	if expired > 0 {
		p.logger.Debug("Pruned idle sessions from presence window",
			zap.Int("count", expired),
			zap.Int("remaining", len(p.sessions)),
		)
	}
	return len(p.sessions), nil
}

func (p *MemoryPresence) Count(_ context.Context) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	now := p.now()
	count := 0
	for _, last := range p.sessions {
		if now.Sub(last) <= p.window {
			count++
		}
	}
	return count, nil
}
