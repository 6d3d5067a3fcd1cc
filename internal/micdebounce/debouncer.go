// Package micdebounce implements the microphone state debouncer (spec.md
// §4.6): coalesces rapid subscription-driven mic on/off flips behind a
// settle window so a burst of app starts/stops does not chatter the ASR
// pipeline or the glasses' mic indicator.
package micdebounce

import (
	"sync"
	"time"
)

// SettleWindow is how long a desired state must hold steady before it is
// applied (spec.md §4.6).
const SettleWindow = 1 * time.Second

// Actions is the speech pipeline hookup a Debouncer drives once a desired
// state settles.
type Actions struct {
	StartTranscription func()
	StopTranscription   func()
}

// Debouncer holds one session's mic-state machine: the last state actually
// sent, and a pending timer for the next candidate state.
type Debouncer struct {
	actions Actions
	window  time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	desired  bool
	lastSent bool
	everSent bool
}

// New returns a Debouncer wired to actions, using [SettleWindow].
func New(actions Actions) *Debouncer {
	return NewWithWindow(actions, SettleWindow)
}

// NewWithWindow returns a Debouncer wired to actions with a configurable
// settle window (spec.md §6's configurable mic debounce window). A
// non-positive window falls back to [SettleWindow].
func NewWithWindow(actions Actions, window time.Duration) *Debouncer {
	if window <= 0 {
		window = SettleWindow
	}
	return &Debouncer{actions: actions, window: window}
}

// SetDesired requests mic state on/off. The very first call for a session
// applies immediately (spec.md §4.6 "immediate first send"); subsequent
// calls reset a SettleWindow timer and only take effect if the desired
// state still holds once it fires.
func (d *Debouncer) SetDesired(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.desired = on

	if !d.everSent {
		d.everSent = true
		d.lastSent = on
		d.apply(on)
		return
	}

	if on == d.lastSent {
		// Already settled on this state; cancel any in-flight flip attempt.
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.settle)
}

func (d *Debouncer) settle() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.timer = nil
	if d.desired == d.lastSent {
		return
	}
	d.lastSent = d.desired
	d.apply(d.desired)
}

func (d *Debouncer) apply(on bool) {
	if on {
		if d.actions.StartTranscription != nil {
			d.actions.StartTranscription()
		}
		return
	}
	if d.actions.StopTranscription != nil {
		d.actions.StopTranscription()
	}
}

// LastSent reports the mic state most recently applied to the speech
// pipeline.
func (d *Debouncer) LastSent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSent
}

// Stop cancels any pending settle timer, e.g. on session teardown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
