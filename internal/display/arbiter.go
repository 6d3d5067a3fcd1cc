// Package display implements the Display Arbiter (spec.md §4.5): per-view
// layout arbitration among TPA display requests, boot-screen reservation,
// and withdrawal when a TPA stops.
package display

import (
	"sync"
	"time"
)

// BootScreenView is the reserved view shown only while a package is Loading
// (spec.md §4.5).
const BootScreenView = "__boot_screen__"

// Request is one TPA's display request (spec.md §3's DisplayRequest).
type Request struct {
	View        string
	Layout      any
	DurationMs  *int
	PackageName string
	SessionID   string
}

// Sink receives the effective display_event to forward to the glasses.
type Sink func(Request)

type pending struct {
	req       Request
	expiresAt time.Time // zero means no expiry
}

// Arbiter tracks, per view, the most recent non-expired request and
// forwards the effective one whenever it changes (spec.md §4.5). One
// Arbiter is owned per session.
type Arbiter struct {
	sink Sink

	mu     sync.Mutex
	byView map[string]pending
	// loading tracks packages currently in the TPA Lifecycle Controller's
	// Loading state, which reserves the boot-screen view.
	loading map[string]struct{}
}

// New returns an Arbiter that forwards effective requests to sink.
func New(sink Sink) *Arbiter {
	return &Arbiter{
		sink:    sink,
		byView:  make(map[string]pending),
		loading: make(map[string]struct{}),
	}
}

// ReserveBootScreen marks packageName as loading, showing the boot-screen
// view if nothing else currently occupies it.
func (a *Arbiter) ReserveBootScreen(packageName string) {
	a.mu.Lock()
	occupied := len(a.loading) > 0
	a.loading[packageName] = struct{}{}
	a.mu.Unlock()

	if !occupied {
		a.forward(Request{View: BootScreenView, PackageName: packageName})
	}
}

// ReleaseBootScreen un-reserves packageName's boot-screen hold (loading
// succeeded or timed out).
func (a *Arbiter) ReleaseBootScreen(packageName string) {
	a.mu.Lock()
	delete(a.loading, packageName)
	stillLoading := len(a.loading) > 0
	delete(a.byView, BootScreenView)
	a.mu.Unlock()

	if !stillLoading {
		a.recomputeAndForward(BootScreenView)
	}
}

// Submit records a TPA's display request and, if it becomes the effective
// request for its view, forwards it (spec.md §4.5: "the most recent
// non-expired request from any package wins").
func (a *Arbiter) Submit(req Request) {
	if req.View == BootScreenView {
		return // reserved view; TPAs cannot target it directly
	}

	var expiresAt time.Time
	if req.DurationMs != nil {
		expiresAt = time.Now().Add(time.Duration(*req.DurationMs) * time.Millisecond)
	}

	a.mu.Lock()
	a.byView[req.View] = pending{req: req, expiresAt: expiresAt}
	a.mu.Unlock()

	a.forward(req)
}

// Withdraw retracts every request belonging to packageName and recomputes
// the effective view for each view it had occupied (spec.md §4.5).
func (a *Arbiter) Withdraw(packageName string) {
	a.mu.Lock()
	delete(a.loading, packageName)
	var affected []string
	for view, p := range a.byView {
		if p.req.PackageName == packageName {
			delete(a.byView, view)
			affected = append(affected, view)
		}
	}
	a.mu.Unlock()

	for _, view := range affected {
		a.recomputeAndForward(view)
	}
}

// recomputeAndForward re-derives the effective request for view (nil if
// none remain) and forwards a withdrawal-equivalent empty request so the
// glasses clear the view. Since this arbiter keeps only the single current
// occupant per view (the most recent submit replaces it outright), recompute
// here only handles the case where the view is now empty.
func (a *Arbiter) recomputeAndForward(view string) {
	a.mu.Lock()
	_, still := a.byView[view]
	a.mu.Unlock()
	if !still {
		a.forward(Request{View: view})
	}
}

func (a *Arbiter) forward(req Request) {
	if a.sink != nil {
		a.sink(req)
	}
}

// Expire drops any request in view whose duration has elapsed, recomputing
// the effective view. Callers poll this on a ticker, or call it lazily
// before reading the current state; this arbiter has no internal timer
// goroutine since display durations are advisory hints from the TPA, not a
// hard scheduling requirement of this component.
func (a *Arbiter) Expire(view string, now time.Time) {
	a.mu.Lock()
	p, ok := a.byView[view]
	expired := ok && !p.expiresAt.IsZero() && now.After(p.expiresAt)
	if expired {
		delete(a.byView, view)
	}
	a.mu.Unlock()

	if expired {
		a.forward(Request{View: view})
	}
}
