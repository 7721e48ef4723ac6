package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// DefaultActionTimeout bounds a single action.
const DefaultActionTimeout = 10 * time.Second

// Event describes one fired alert. Actions run in order and may fill in
// fields for the ones after them, e.g. SnapshotPath.
type Event struct {
	ID         string
	Time       time.Time
	Faces      int
	Brightness float64
	Message    string
	// Frame is borrowed for the duration of Fire.
	Frame *gocv.Mat

	SnapshotPath string
	Outcomes     []Outcome
}

// Outcome is the result of one action.
type Outcome struct {
	Action   string
	Err      error
	Duration time.Duration
}

// OK reports whether the action succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Summary renders outcomes as "name=ok,other=error: ...".
func Summary(outcomes []Outcome) string {
	parts := make([]string, len(outcomes))
	for i, o := range outcomes {
		if o.OK() {
			parts[i] = o.Action + "=ok"
		} else {
			parts[i] = o.Action + "=error: " + o.Err.Error()
		}
	}
	return strings.Join(parts, ",")
}

// Action is one side effect of an alert.
type Action interface {
	Name() string
	Run(ctx context.Context, ev *Event) error
}

type funcAction struct {
	name string
	fn   func(ctx context.Context, ev *Event) error
}

func (a funcAction) Name() string                             { return a.name }
func (a funcAction) Run(ctx context.Context, ev *Event) error { return a.fn(ctx, ev) }

// NewAction wraps fn as an Action.
func NewAction(name string, fn func(ctx context.Context, ev *Event) error) Action {
	return funcAction{name: name, fn: fn}
}

// Dispatcher runs the registered actions for every fired alert.
type Dispatcher struct {
	actions []Action
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher that runs actions in the given order.
func NewDispatcher(actions ...Action) *Dispatcher {
	return &Dispatcher{
		actions: actions,
		timeout: DefaultActionTimeout,
	}
}

// SetTimeout changes the per-action time bound.
func (d *Dispatcher) SetTimeout(timeout time.Duration) {
	d.timeout = timeout
}

// Actions returns the action names in run order.
func (d *Dispatcher) Actions() []string {
	names := make([]string, len(d.actions))
	for i, a := range d.actions {
		names[i] = a.Name()
	}
	return names
}

// Fire runs every action in order. A failing or panicking action is logged
// and does not stop the ones after it. The outcomes are also appended to
// ev.Outcomes as each action finishes.
func (d *Dispatcher) Fire(ctx context.Context, ev *Event) []Outcome {
	for _, a := range d.actions {
		start := time.Now()
		err := d.run(ctx, a, ev)
		outcome := Outcome{Action: a.Name(), Err: err, Duration: time.Since(start)}
		ev.Outcomes = append(ev.Outcomes, outcome)

		entry := log.WithFields(log.Fields{
			"alert":    ev.ID,
			"action":   a.Name(),
			"duration": outcome.Duration,
		})
		if err != nil {
			entry.WithError(err).Warn("Alert action failed")
		} else {
			entry.Debug("Alert action done")
		}
	}
	return ev.Outcomes
}

func (d *Dispatcher) run(ctx context.Context, a Action, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return a.Run(ctx, ev)
}
