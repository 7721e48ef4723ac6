// Package alert turns the debounced presence signal into alert bursts.
//
// A Trigger fires on rising edges at most once per cooldown window. A
// Dispatcher then runs the side-effect actions in order, isolating each
// action's failure from the others.
package alert

import "time"

// Trigger detects rising edges of the presence state and enforces a cooldown.
// It is owned by a single consumer goroutine.
type Trigger struct {
	cooldown time.Duration
	previous bool
	fired    bool
	lastFire time.Time
}

// NewTrigger creates a Trigger with the given cooldown.
func NewTrigger(cooldown time.Duration) *Trigger {
	return &Trigger{cooldown: cooldown}
}

// Observe records one poll of the presence state and reports whether the
// alert should fire now. It fires only on a false to true transition and only
// when no alert fired within the cooldown.
func (t *Trigger) Observe(now time.Time, present bool) bool {
	if !t.Ready(now, present) {
		return false
	}
	t.Commit(now)
	return true
}

// Ready records one poll like Observe but does not start the cooldown.
// Callers that may drop the alert call Commit only when it really fires.
func (t *Trigger) Ready(now time.Time, present bool) bool {
	rising := present && !t.previous
	t.previous = present

	if !rising {
		return false
	}
	return !t.fired || now.Sub(t.lastFire) >= t.cooldown
}

// Commit marks the alert as fired at now.
func (t *Trigger) Commit(now time.Time) {
	t.fired = true
	t.lastFire = now
}

// LastFire returns when the trigger last fired and whether it ever has.
func (t *Trigger) LastFire() (time.Time, bool) {
	return t.lastFire, t.fired
}
