package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/moyu/internal/alert"
	"github.com/ayusman/moyu/internal/store"
)

type fakeNotifier struct {
	title, message string
	duration       time.Duration
	err            error
}

func (n *fakeNotifier) Notify(_ context.Context, title, message string, duration time.Duration) error {
	n.title, n.message, n.duration = title, message, duration
	return n.err
}

func (n *fakeNotifier) Name() string { return "fake" }

type fakeSaver struct{ saved int }

func (s *fakeSaver) Save(frame *gocv.Mat, at time.Time) (string, error) {
	s.saved++
	return "/snapshots/" + at.Format("150405") + ".jpg", nil
}

type fakeSwitcher struct{ err error }

func (s *fakeSwitcher) Switch(context.Context) error { return s.err }
func (s *fakeSwitcher) Name() string                 { return "fake" }

type fakePublisher struct {
	published []string
	snapshot  string
}

func (p *fakePublisher) PublishAlert(ev *alert.Event) error {
	p.published = append(p.published, ev.ID)
	p.snapshot = ev.SnapshotPath
	return nil
}

func TestActions_DefaultOrder(t *testing.T) {
	d := alert.NewDispatcher(Actions{}.Build()...)
	assert.Equal(t, []string{ActionNotify, ActionSnapshot, ActionWorkApp}, d.Actions())
}

func TestActions_PluginsRunBeforePublisher(t *testing.T) {
	var seen string
	hook := alert.NewAction("plugin:privacy", func(_ context.Context, ev *alert.Event) error {
		seen = ev.Message
		return nil
	})
	d := alert.NewDispatcher(Actions{
		Plugins:   []alert.Action{hook},
		Publisher: &fakePublisher{},
	}.Build()...)

	assert.Equal(t, []string{ActionNotify, ActionSnapshot, ActionWorkApp, "plugin:privacy", ActionMQTT}, d.Actions())

	d.Fire(context.Background(), &alert.Event{ID: "p", Time: time.Now(), Message: "hide"})
	assert.Equal(t, "hide", seen)
}

func TestActions_FullPipeline(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "moyu.db"))
	require.NoError(t, err)
	defer s.Close()

	notifier := &fakeNotifier{}
	saver := &fakeSaver{}
	publisher := &fakePublisher{}
	actions := Actions{
		Notifier:       notifier,
		NotifyDuration: 8 * time.Second,
		Saver:          saver,
		Switcher:       &fakeSwitcher{err: errors.New("no work app")},
		Publisher:      publisher,
		Store:          s,
	}
	d := alert.NewDispatcher(actions.Build()...)
	assert.Equal(t, []string{ActionNotify, ActionSnapshot, ActionWorkApp, ActionMQTT, ActionHistory}, d.Actions())

	frame := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer frame.Close()

	at := time.Date(2024, 2, 3, 10, 11, 12, 0, time.UTC)
	ev := &alert.Event{ID: "evt-1", Time: at, Faces: 2, Brightness: 80, Message: "careful", Frame: &frame}
	outcomes := d.Fire(context.Background(), ev)
	require.Len(t, outcomes, 5)

	assert.Equal(t, NotifyTitle, notifier.title)
	assert.Equal(t, "careful", notifier.message)
	assert.Equal(t, 8*time.Second, notifier.duration)
	assert.Equal(t, 1, saver.saved)
	assert.Equal(t, "/snapshots/101112.jpg", ev.SnapshotPath)
	assert.Equal(t, []string{"evt-1"}, publisher.published)
	assert.Equal(t, ev.SnapshotPath, publisher.snapshot, "publisher runs after the snapshot")
	assert.False(t, outcomes[2].OK())

	stored, err := s.Alerts().GetByID("evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Faces)
	assert.Equal(t, ev.SnapshotPath, stored.SnapshotPath)
	require.Len(t, stored.Actions, 4)
	assert.Equal(t, ActionWorkApp, stored.Actions[2].Name)
	assert.False(t, stored.Actions[2].OK)
	assert.Equal(t, "no work app", stored.Actions[2].Error)
	assert.Contains(t, stored.Summary, "workapp=error: no work app")
}

func TestActions_SnapshotWithoutFrame(t *testing.T) {
	saver := &fakeSaver{}
	d := alert.NewDispatcher(Actions{Saver: saver}.Build()...)

	outcomes := d.Fire(context.Background(), &alert.Event{ID: "x", Time: time.Now()})
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[1].OK())
	assert.Equal(t, 0, saver.saved)
	assert.True(t, outcomes[0].OK())
	assert.True(t, outcomes[2].OK())
}

func TestHistoryRecord(t *testing.T) {
	ev := &alert.Event{
		ID:    "a",
		Time:  time.Unix(100, 0),
		Faces: 3,
		Outcomes: []alert.Outcome{
			{Action: "notify", Duration: time.Millisecond},
			{Action: "snapshot", Err: errors.New("disk full")},
		},
	}
	rec := HistoryRecord(ev)
	assert.Equal(t, "a", rec.ID)
	assert.Equal(t, "notify=ok,snapshot=error: disk full", rec.Summary)
	require.Len(t, rec.Actions, 2)
	assert.True(t, rec.Actions[0].OK)
	assert.Equal(t, "disk full", rec.Actions[1].Error)
}
