// Package app is the consumer side of moyu: it polls the presence worker,
// turns rising edges into alerts and keeps the tray, server and MQTT views
// up to date.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/metrics"
	"github.com/ayusman/moyu/internal/presence"
	"github.com/ayusman/moyu/internal/server"
	"github.com/ayusman/moyu/internal/store"
)

// Consumer timing defaults.
const (
	// DefaultPollInterval is how often the published state is read.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultPruneInterval is how often old alert history is removed.
	DefaultPruneInterval = time.Hour
)

// Source is the published worker state. *presence.Worker implements it.
type Source interface {
	Snapshot() (presence.Snapshot, bool)
	Done() <-chan struct{}
}

// Config holds configuration options for the consumer.
type Config struct {
	Cooldown        time.Duration
	Message         string
	MessageDuration time.Duration
	PollInterval    time.Duration
	RetentionDays   int
	PruneInterval   time.Duration
}

// Option configures an App.
type Option func(*App)

// WithStore persists the pause switch and prunes alert history.
func WithStore(s *store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics counts fired alerts and failed actions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithStatusListener is called after every poll with the published state.
func WithStatusListener(fn func(present bool, faces int)) Option {
	return func(a *App) { a.onStatus = append(a.onStatus, fn) }
}

// WithStateListener is called when the published presence state flips, and
// once for the first state seen.
func WithStateListener(fn func(present bool)) Option {
	return func(a *App) { a.onState = append(a.onState, fn) }
}

// WithAlertListener is called after the actions of a fired alert have run.
func WithAlertListener(fn func(ev *alert.Event)) Option {
	return func(a *App) { a.onAlert = append(a.onAlert, fn) }
}

// WithEnabledListener is called when alerts are paused or resumed.
func WithEnabledListener(fn func(enabled bool)) Option {
	return func(a *App) { a.onEnabled = append(a.onEnabled, fn) }
}

// App orchestrates alerting on top of a running worker.
type App struct {
	config     Config
	source     Source
	trigger    *alert.Trigger
	dispatcher *alert.Dispatcher
	store      *store.Store
	metrics    *metrics.Metrics

	onStatus  []func(present bool, faces int)
	onState   []func(present bool)
	onAlert   []func(ev *alert.Event)
	onEnabled []func(enabled bool)

	// consumer goroutine only
	seen        bool
	lastPresent bool

	mu           sync.RWMutex
	enabled      bool
	lastAlert    time.Time
	messageUntil time.Time

	now func() time.Time
}

// New creates the consumer. Alerts start enabled unless a stored setting says
// otherwise.
func New(config Config, source Source, dispatcher *alert.Dispatcher, opts ...Option) *App {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PruneInterval <= 0 {
		config.PruneInterval = DefaultPruneInterval
	}

	a := &App{
		config:     config,
		source:     source,
		trigger:    alert.NewTrigger(config.Cooldown),
		dispatcher: dispatcher,
		enabled:    true,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.store != nil {
		a.enabled = a.store.Settings().Bool(store.SettingAlertsEnabled, true)
		if !a.enabled {
			log.Info("Alerts are paused (stored setting)")
		}
		if latest, err := a.store.Alerts().Latest(); err == nil {
			a.lastAlert = latest.FiredAt
		}
	}

	return a
}

// AlertsEnabled reports whether fired edges produce alerts.
func (a *App) AlertsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetAlertsEnabled pauses or resumes alerting. Detection keeps running and the
// trigger keeps observing, so resuming while people are present does not fire
// until the next rising edge.
func (a *App) SetAlertsEnabled(enabled bool) {
	a.mu.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	a.mu.Unlock()

	if !changed {
		return
	}

	if enabled {
		log.Info("Alerts resumed")
	} else {
		log.Info("Alerts paused")
	}

	if a.store != nil {
		if err := a.store.Settings().SetBool(store.SettingAlertsEnabled, enabled); err != nil {
			log.WithError(err).Warn("Failed to persist alert setting")
		}
	}
	for _, fn := range a.onEnabled {
		fn(enabled)
	}
}

// LastAlert returns the time of the most recent alert, zero if none.
func (a *App) LastAlert() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastAlert
}

// Status implements server.Control.
func (a *App) Status() server.Status {
	now := a.now()
	a.mu.RLock()
	defer a.mu.RUnlock()
	return server.Status{
		AlertsEnabled:  a.enabled,
		Message:        a.config.Message,
		MessageVisible: now.Before(a.messageUntil),
		LastAlert:      a.lastAlert,
	}
}

// Run polls the worker until ctx is cancelled or the worker exits.
func (a *App) Run(ctx context.Context) {
	poll := time.NewTicker(a.config.PollInterval)
	defer poll.Stop()
	prune := time.NewTicker(a.config.PruneInterval)
	defer prune.Stop()

	a.prune()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.source.Done():
			log.Info("Presence worker stopped, consumer exiting")
			return
		case <-prune.C:
			a.prune()
		case <-poll.C:
			a.step(ctx)
		}
	}
}

// step reads the published state once and fires an alert on a rising edge.
func (a *App) step(ctx context.Context) {
	snap, ok := a.source.Snapshot()
	if !ok {
		return
	}
	defer snap.Close()

	faces := len(snap.Detections)
	for _, fn := range a.onStatus {
		fn(snap.Present, faces)
	}

	if !a.seen || snap.Present != a.lastPresent {
		a.seen = true
		a.lastPresent = snap.Present
		for _, fn := range a.onState {
			fn(snap.Present)
		}
	}

	now := a.now()
	if !a.trigger.Ready(now, snap.Present) {
		return
	}
	// A suppressed edge does not start the cooldown.
	if !a.AlertsEnabled() {
		log.WithField("faces", faces).Info("People detected while paused, alert suppressed")
		return
	}

	a.trigger.Commit(now)
	a.fire(ctx, now, &snap)
}

func (a *App) fire(ctx context.Context, now time.Time, snap *presence.Snapshot) {
	ev := &alert.Event{
		ID:         uuid.NewString(),
		Time:       now,
		Faces:      len(snap.Detections),
		Brightness: snap.Brightness,
		Message:    a.config.Message,
		Frame:      snap.Frame,
	}

	log.WithFields(log.Fields{
		"alert":      ev.ID,
		"faces":      ev.Faces,
		"brightness": ev.Brightness,
	}).Info("People detected, firing alert")

	outcomes := a.dispatcher.Fire(ctx, ev)
	ev.Frame = nil

	a.mu.Lock()
	a.lastAlert = now
	a.messageUntil = now.Add(a.config.MessageDuration)
	a.mu.Unlock()

	if a.metrics != nil {
		a.metrics.AlertFired()
		for _, o := range outcomes {
			if !o.OK() {
				a.metrics.ActionFailed(o.Action)
			}
		}
	}

	for _, fn := range a.onAlert {
		fn(ev)
	}
}

func (a *App) prune() {
	if a.store == nil || a.config.RetentionDays <= 0 {
		return
	}
	// Store.Prune logs what it deleted.
	if _, err := a.store.Prune(a.config.RetentionDays, a.now()); err != nil {
		log.WithError(err).Warn("Failed to prune alert history")
	}
}
