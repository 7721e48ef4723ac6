package presence

// Debouncer is the ABSENT/PRESENT hysteresis state machine.
//
// Exactly one of the two counters grows per observation and the other is
// reset, so they are never both non-zero. The zero value is not usable; build
// one with NewDebouncer.
type Debouncer struct {
	onFrames  int
	offFrames int
	minFaces  int

	presentFrames int
	absentFrames  int
	present       bool
}

// NewDebouncer creates a Debouncer in the ABSENT state. Non-positive frame
// counts are treated as 1.
func NewDebouncer(onFrames, offFrames, minFaces int) *Debouncer {
	return &Debouncer{
		onFrames:  max(onFrames, 1),
		offFrames: max(offFrames, 1),
		minFaces:  max(minFaces, 1),
	}
}

// Observe feeds the number of valid detections in one frame and returns the
// state after the transition.
func (d *Debouncer) Observe(faces int) bool {
	if faces >= d.minFaces {
		d.presentFrames++
		d.absentFrames = 0
	} else {
		d.absentFrames++
		d.presentFrames = 0
	}

	switch {
	case !d.present && d.presentFrames >= d.onFrames:
		d.present = true
	case d.present && d.absentFrames >= d.offFrames:
		d.present = false
	}

	return d.present
}

// Present returns the current stable state.
func (d *Debouncer) Present() bool {
	return d.present
}

// Counters returns the consecutive present and absent frame counts.
func (d *Debouncer) Counters() (present, absent int) {
	return d.presentFrames, d.absentFrames
}
