package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	extendWindow    = 5 * time.Minute
	extendThreshold = 5 * time.Minute
)

// AutoExtender keeps an active session alive while the admin is working.
// The first activity signal in each window extends the session if it is
// about to expire.
type AutoExtender struct {
	gate   *Gate
	window time.Duration

	armed   atomic.Bool
	stopped atomic.Bool
	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
}

// SetupAutoExtend starts the periodic task, replacing any running one. It
// ends on Stop, on Logout, when ctx is cancelled, or at the first window
// in which no session is live.
func (g *Gate) SetupAutoExtend(ctx context.Context) *AutoExtender {
	return g.setupAutoExtend(ctx, extendWindow)
}

func (g *Gate) setupAutoExtend(ctx context.Context, window time.Duration) *AutoExtender {
	a := &AutoExtender{
		gate:   g,
		window: window,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	a.armed.Store(true)

	g.mu.Lock()
	previous := g.extender
	g.extender = a
	g.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}

	go a.run(ctx)
	return a
}

func (g *Gate) stopAutoExtend() {
	g.mu.Lock()
	a := g.extender
	g.extender = nil
	g.mu.Unlock()
	if a != nil {
		a.Stop()
	}
}

// NoteActivity forwards an activity signal to the running extender.
func (g *Gate) NoteActivity(ctx context.Context) {
	g.mu.Lock()
	a := g.extender
	g.mu.Unlock()
	if a != nil {
		a.Touch(ctx)
	}
}

func (a *AutoExtender) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.stopped.Store(true)
			return
		case <-a.stop:
			return
		case <-ticker.C:
			if !a.gate.IsAuthenticated(ctx) {
				a.stopped.Store(true)
				return
			}
			a.armed.Store(true)
		}
	}
}

// Touch records user activity. Only the first call per window does work.
func (a *AutoExtender) Touch(ctx context.Context) {
	if a.stopped.Load() || !a.armed.CompareAndSwap(true, false) {
		return
	}
	session, ok := a.gate.Session(ctx)
	if !ok {
		return
	}
	remaining := time.Duration(session.ExpiresAt-a.gate.clock.Now().UnixMilli()) * time.Millisecond
	if remaining <= extendThreshold {
		a.gate.ExtendSession(ctx)
	}
}

func (a *AutoExtender) Stop() {
	a.once.Do(func() {
		a.stopped.Store(true)
		close(a.stop)
	})
}

// Done is closed once the periodic task has exited.
func (a *AutoExtender) Done() <-chan struct{} {
	return a.done
}
