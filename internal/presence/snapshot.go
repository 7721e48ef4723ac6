package presence

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Snapshot is one consistent view of a worker cycle. Frame is a private copy
// owned by the caller, who must Close the snapshot.
type Snapshot struct {
	Frame      *gocv.Mat
	Detections []Detection
	Brightness float64
	Present    bool
	// Seq is the cycle number that produced the record, starting at 1.
	Seq  uint64
	Time time.Time
}

// Close releases the frame copy.
func (s *Snapshot) Close() {
	if s.Frame != nil {
		s.Frame.Close()
		s.Frame = nil
	}
}

// board holds the published record. The worker is the only writer; every
// field is replaced together under mu.
type board struct {
	mu         sync.Mutex
	frame      gocv.Mat
	hasFrame   bool
	detections []Detection
	brightness float64
	present    bool
	seq        uint64
	at         time.Time
}

// publish replaces the record and takes ownership of frame.
func (b *board) publish(frame gocv.Mat, detections []Detection, brightness float64, present bool, at time.Time) uint64 {
	b.mu.Lock()
	old, hadFrame := b.frame, b.hasFrame
	b.frame = frame
	b.hasFrame = true
	b.detections = detections
	b.brightness = brightness
	b.present = present
	b.seq++
	seq := b.seq
	b.at = at
	b.mu.Unlock()

	if hadFrame {
		old.Close()
	}
	return seq
}

// latest copies out the frame and state.
func (b *board) latest() (*gocv.Mat, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasFrame {
		return nil, false
	}
	frame := b.frame.Clone()
	return &frame, b.present
}

func (b *board) snapshot() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasFrame {
		return Snapshot{}, false
	}
	frame := b.frame.Clone()
	return Snapshot{
		Frame:      &frame,
		Detections: append([]Detection(nil), b.detections...),
		Brightness: b.brightness,
		Present:    b.present,
		Seq:        b.seq,
		Time:       b.at,
	}, true
}

// meta copies out the record without the frame.
func (b *board) meta() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasFrame {
		return Snapshot{}, false
	}
	return Snapshot{
		Detections: append([]Detection(nil), b.detections...),
		Brightness: b.brightness,
		Present:    b.present,
		Seq:        b.seq,
		Time:       b.at,
	}, true
}

// state returns the published presence flag and cycle number without copying the frame.
func (b *board) state() (present bool, seq uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.present, b.seq
}

func (b *board) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasFrame {
		b.frame.Close()
		b.hasFrame = false
	}
}
