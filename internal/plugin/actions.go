package plugin

import (
	"context"
	"errors"

	"github.com/ayusman/moyu/internal/alert"
)

// ActionPrefix starts the alert action name of every plugin.
const ActionPrefix = "plugin:"

// Actions returns one alert action per discovered plugin that handles
// EventAlert, in name order.
func Actions(m *Manager, e *Executor) []alert.Action {
	var actions []alert.Action
	for _, p := range m.List() {
		if !p.Manifest.Handles(EventAlert) {
			continue
		}
		actions = append(actions, alert.NewAction(ActionPrefix+p.Manifest.Name, func(ctx context.Context, ev *alert.Event) error {
			resp, err := e.Execute(ctx, p, NewAlertRequest(p, ev))
			if err != nil {
				return err
			}
			if !resp.Success {
				if resp.Error == "" {
					return errors.New("plugin reported failure")
				}
				return errors.New(resp.Error)
			}
			return nil
		}))
	}
	return actions
}

// NewAlertRequest builds the request sent to p for ev.
func NewAlertRequest(p *Plugin, ev *alert.Event) *Request {
	return &Request{
		Event: EventAlert,
		Alert: &Alert{
			ID:         ev.ID,
			Time:       ev.Time,
			Faces:      ev.Faces,
			Brightness: ev.Brightness,
			Message:    ev.Message,
			Snapshot:   ev.SnapshotPath,
		},
		Config: p.Manifest.Config,
	}
}
