package presence

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/moyu/internal/capture"
	"github.com/ayusman/moyu/internal/detector"
)

// Cycle error kinds reported to a Recorder.
const (
	ErrKindRead       = "read"
	ErrKindPreprocess = "preprocess"
	ErrKindDetect     = "detect"
	ErrKindPanic      = "panic"
)

// DefaultStopTimeout is how long Stop waits for the loop before releasing resources anyway.
const DefaultStopTimeout = 2 * time.Second

var (
	colorPresent = color.RGBA{R: 255, A: 255}
	colorClear   = color.RGBA{G: 255, A: 255}
)

// CycleResult describes one completed worker cycle.
type CycleResult struct {
	Seq           uint64
	Brightness    float64
	LowLight      bool
	Candidates    int
	Detections    int
	Present       bool
	PresentFrames int
	AbsentFrames  int
	Duration      time.Duration
}

// Recorder receives per-cycle results from the worker goroutine.
// Implementations must not block.
type Recorder interface {
	ObserveCycle(r CycleResult)
	CycleError(kind string)
}

// StateListener is called from the worker goroutine whenever the debounced
// state flips. It must not block.
type StateListener func(present bool)

// Option configures a Worker.
type Option func(*Worker)

// WithRecorder attaches a per-cycle Recorder.
func WithRecorder(r Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

// WithStateListener registers fn for state transitions.
func WithStateListener(fn StateListener) Option {
	return func(w *Worker) { w.listeners = append(w.listeners, fn) }
}

type cycleError struct {
	kind string
	err  error
}

func (e *cycleError) Error() string { return e.kind + ": " + e.err.Error() }
func (e *cycleError) Unwrap() error { return e.err }

// Worker runs the acquisition and detection loop on its own goroutine.
type Worker struct {
	settings  Settings
	camera    capture.Camera
	detector  detector.Detector
	pre       *capture.Preprocessor
	debouncer *Debouncer
	board     board

	recorder  Recorder
	listeners []StateListener

	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	startMu     sync.Mutex
	started     bool
	releaseOnce sync.Once
}

// NewWorker opens the camera and prepares a worker. On success the worker
// owns both camera and detector and releases them in Stop. An open failure is
// returned wrapped in capture.ErrCameraUnavailable and the caller keeps
// ownership of the detector.
func NewWorker(settings Settings, camera capture.Camera, det detector.Detector, opts ...Option) (*Worker, error) {
	if camera == nil {
		return nil, fmt.Errorf("%w: no camera", capture.ErrCameraUnavailable)
	}
	if det == nil {
		return nil, fmt.Errorf("%w: no detector", detector.ErrUnavailable)
	}

	if err := camera.Open(); err != nil {
		if !errors.Is(err, capture.ErrCameraUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrCameraUnavailable, err)
		}
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		settings:  settings,
		camera:    camera,
		detector:  det,
		pre:       capture.NewPreprocessor(settings.Preprocess),
		debouncer: NewDebouncer(settings.OnFrames, settings.OffFrames, settings.MinFaces),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start launches the loop. Calling it again has no effect.
func (w *Worker) Start() {
	w.startMu.Lock()
	defer w.startMu.Unlock()

	if w.started {
		return
	}
	w.started = true

	go w.run()
	log.WithFields(log.Fields{
		"on_frames":  w.settings.OnFrames,
		"off_frames": w.settings.OffFrames,
		"min_faces":  w.settings.MinFaces,
	}).Info("Presence worker started")
}

// Stop asks the loop to exit, waits up to timeout for it and then releases
// the camera and detector whether or not the loop has finished. It reports
// whether the loop exited in time. Release errors are logged only.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.cancel()

	w.startMu.Lock()
	started := w.started
	if !started {
		// Never started: keep Start from launching the loop later.
		w.started = true
		close(w.done)
	}
	w.startMu.Unlock()

	exited := true
	if started {
		select {
		case <-w.done:
		case <-time.After(timeout):
			exited = false
			log.WithField("timeout", timeout).Warn("Presence worker did not stop in time, releasing resources anyway")
		}
	}

	w.release(exited)
	return exited
}

// Done is closed when the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Latest returns a copy of the most recent annotated frame and the debounced
// state, or (nil, false) before the first cycle completes. It never waits for
// the worker. The caller closes the returned Mat.
func (w *Worker) Latest() (*gocv.Mat, bool) {
	return w.board.latest()
}

// Snapshot returns the full published record. ok is false before the first
// cycle completes. The caller closes the snapshot.
func (w *Worker) Snapshot() (s Snapshot, ok bool) {
	return w.board.snapshot()
}

// Meta returns the published record without the frame. Frame is nil, so
// there is nothing to close.
func (w *Worker) Meta() (s Snapshot, ok bool) {
	return w.board.meta()
}

// State returns the published state and cycle number without copying the frame.
func (w *Worker) State() (present bool, seq uint64) {
	return w.board.state()
}

// Settings returns the settings the worker was built with.
func (w *Worker) Settings() Settings {
	return w.settings
}

func (w *Worker) release(exited bool) {
	w.releaseOnce.Do(func() {
		if err := w.camera.Close(); err != nil {
			log.WithError(err).Warn("Failed to release camera")
		}
		if err := w.detector.Close(); err != nil {
			log.WithError(err).Warn("Failed to close detector")
		}
		if exited {
			w.board.close()
		}
		log.Info("Presence worker stopped")
	})
}

func (w *Worker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		wait := w.settings.LoopInterval
		if err := w.cycle(); err != nil {
			kind := ErrKindPanic
			var ce *cycleError
			if errors.As(err, &ce) {
				kind = ce.kind
			}

			entry := log.WithError(err).WithField("kind", kind)
			if kind == ErrKindRead {
				entry.Debug("Frame not available, retrying")
				wait = capture.ReadRetryDelay
			} else {
				entry.Warn("Presence cycle skipped")
			}
			if w.recorder != nil {
				w.recorder.CycleError(kind)
			}
		}

		if !w.sleep(wait) {
			return
		}
	}
}

func (w *Worker) sleep(d time.Duration) bool {
	if d <= 0 {
		return w.ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-w.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// cycle runs one acquire, detect, debounce and publish pass. A failure leaves
// the debouncer and the published record untouched.
func (w *Worker) cycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &cycleError{kind: ErrKindPanic, err: fmt.Errorf("%v", r)}
		}
	}()

	start := time.Now()

	raw, err := w.camera.ReadFrame()
	if err != nil {
		return &cycleError{kind: ErrKindRead, err: err}
	}
	defer raw.Close()

	frame, err := w.pre.Process(raw)
	if err != nil {
		return &cycleError{kind: ErrKindPreprocess, err: err}
	}
	defer frame.Close()

	var (
		detections []Detection
		candidates int
	)
	if frame.Bright() {
		found, err := w.detector.Detect(&frame.Color)
		if err != nil {
			return &cycleError{kind: ErrKindDetect, err: err}
		}
		candidates = len(found)
		detections = FilterCandidates(found, frame.Width(), frame.Height(), w.settings)
	}

	was := w.debouncer.Present()
	present := w.debouncer.Observe(len(detections))

	annotated := frame.Color.Clone()
	annotate(&annotated, detections, present, w.settings.DebugDraw)
	seq := w.board.publish(annotated, detections, frame.Brightness, present, time.Now())

	if present != was {
		log.WithFields(log.Fields{
			"present": present,
			"faces":   len(detections),
			"seq":     seq,
		}).Info("Presence state changed")
		for _, fn := range w.listeners {
			fn(present)
		}
	}

	if w.recorder != nil {
		pf, af := w.debouncer.Counters()
		w.recorder.ObserveCycle(CycleResult{
			Seq:           seq,
			Brightness:    frame.Brightness,
			LowLight:      !frame.Bright(),
			Candidates:    candidates,
			Detections:    len(detections),
			Present:       present,
			PresentFrames: pf,
			AbsentFrames:  af,
			Duration:      time.Since(start),
		})
	}

	return nil
}

// annotate draws the valid detections, red while present and green otherwise.
func annotate(img *gocv.Mat, detections []Detection, present bool, debug bool) {
	c := colorClear
	if present {
		c = colorPresent
	}
	for _, d := range detections {
		rect := image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
		gocv.Rectangle(img, rect, c, 2)
		if debug {
			gocv.PutText(img, fmt.Sprintf("%.2f", d.Score), image.Pt(d.X, max(d.Y-6, 12)),
				gocv.FontHersheySimplex, 0.5, c, 1)
		}
	}
}
