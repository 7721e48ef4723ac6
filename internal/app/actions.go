package app

import (
	"context"
	"errors"
	"time"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/notify"
	"github.com/ayusman/moyu/internal/snapshot"
	"github.com/ayusman/moyu/internal/store"
	"github.com/ayusman/moyu/internal/workapp"
)

// Action names as they appear in outcomes and in the alert history.
const (
	ActionNotify   = "notify"
	ActionSnapshot = "snapshot"
	ActionWorkApp  = "workapp"
	ActionMQTT     = "mqtt"
	ActionHistory  = "history"
)

// NotifyTitle is the title of alert notifications.
const NotifyTitle = "moyu"

// AlertPublisher forwards alerts to an external system. *mqtt.Client implements it.
type AlertPublisher interface {
	PublishAlert(ev *alert.Event) error
}

// Actions lists the collaborators of a fired alert. Nil collaborators are
// skipped, except the first three which always run.
type Actions struct {
	Notifier       notify.Notifier
	NotifyDuration time.Duration
	Saver          snapshot.Saver
	Switcher       workapp.Switcher
	Plugins        []alert.Action
	Publisher      AlertPublisher
	Store          *store.Store
}

// Build returns the alert actions in run order: notify, snapshot, work app,
// the plugins, then the optional publisher and history record. History runs
// last so it can record every other outcome.
func (c Actions) Build() []alert.Action {
	notifier := c.Notifier
	if notifier == nil {
		notifier = notify.Noop{}
	}
	saver := c.Saver
	if saver == nil {
		saver = snapshot.Noop{}
	}
	switcher := c.Switcher
	if switcher == nil {
		switcher = workapp.Noop{}
	}

	actions := []alert.Action{
		alert.NewAction(ActionNotify, func(ctx context.Context, ev *alert.Event) error {
			return notifier.Notify(ctx, NotifyTitle, ev.Message, c.NotifyDuration)
		}),
		alert.NewAction(ActionSnapshot, func(_ context.Context, ev *alert.Event) error {
			if ev.Frame == nil {
				return errors.New("no frame")
			}
			path, err := saver.Save(ev.Frame, ev.Time)
			if err != nil {
				return err
			}
			ev.SnapshotPath = path
			return nil
		}),
		alert.NewAction(ActionWorkApp, func(ctx context.Context, _ *alert.Event) error {
			return switcher.Switch(ctx)
		}),
	}
	actions = append(actions, c.Plugins...)

	if c.Publisher != nil {
		publisher := c.Publisher
		actions = append(actions, alert.NewAction(ActionMQTT, func(_ context.Context, ev *alert.Event) error {
			return publisher.PublishAlert(ev)
		}))
	}

	if c.Store != nil {
		repo := c.Store.Alerts()
		actions = append(actions, alert.NewAction(ActionHistory, func(_ context.Context, ev *alert.Event) error {
			return repo.Create(HistoryRecord(ev))
		}))
	}

	return actions
}

// HistoryRecord converts a fired event into its stored form.
func HistoryRecord(ev *alert.Event) *store.Alert {
	rec := &store.Alert{
		ID:           ev.ID,
		FiredAt:      ev.Time,
		Faces:        ev.Faces,
		Brightness:   ev.Brightness,
		SnapshotPath: ev.SnapshotPath,
		Summary:      alert.Summary(ev.Outcomes),
	}
	for _, o := range ev.Outcomes {
		r := store.ActionResult{Name: o.Action, OK: o.OK(), Duration: o.Duration}
		if o.Err != nil {
			r.Error = o.Err.Error()
		}
		rec.Actions = append(rec.Actions, r)
	}
	return rec
}

// Dispatcher returns a dispatcher running Build's actions.
func (c Actions) Dispatcher() *alert.Dispatcher {
	return alert.NewDispatcher(c.Build()...)
}
