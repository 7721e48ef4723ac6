package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertRepository_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	firedAt := time.Date(2024, 3, 1, 9, 30, 0, 123*int(time.Millisecond), time.Local)
	a := &Alert{
		FiredAt:      firedAt,
		Faces:        3,
		Brightness:   87.5,
		SnapshotPath: "/tmp/people_20240301_093000_123.jpg",
		Summary:      "notify=ok,snapshot=ok,workapp=error: not configured",
		Actions: []ActionResult{
			{Name: "notify", OK: true, Duration: 120 * time.Millisecond},
			{Name: "snapshot", OK: true, Duration: 8 * time.Millisecond},
			{Name: "workapp", OK: false, Error: "not configured"},
		},
	}
	require.NoError(t, repo.Create(a))

	_, err := uuid.Parse(a.ID)
	require.NoError(t, err, "ID should be a UUID")

	got, err := repo.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.True(t, firedAt.Equal(got.FiredAt))
	assert.Equal(t, 3, got.Faces)
	assert.Equal(t, 87.5, got.Brightness)
	assert.Equal(t, a.SnapshotPath, got.SnapshotPath)
	assert.Equal(t, a.Summary, got.Summary)
	assert.Equal(t, a.Actions, got.Actions)
}

func TestAlertRepository_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Alerts().GetByID("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Alerts().Latest()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlertRepository_ListNewestFirst(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(&Alert{FiredAt: base.Add(time.Duration(i) * time.Minute), Faces: i + 2}))
	}

	all, err := repo.List(0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].FiredAt.After(all[i].FiredAt))
	}

	top, err := repo.List(2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, 6, top[0].Faces)

	latest, err := repo.Latest()
	require.NoError(t, err)
	assert.Equal(t, top[0].ID, latest.ID)
}

func TestAlertRepository_DeleteCascadesActions(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	old := &Alert{
		FiredAt: time.Now().Add(-48 * time.Hour),
		Faces:   2,
		Actions: []ActionResult{{Name: "notify", OK: true}},
	}
	require.NoError(t, repo.Create(old))
	require.NoError(t, repo.Create(&Alert{Faces: 2}))

	n, err := repo.DeleteBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var actions int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM alert_actions WHERE alert_id = ?`, old.ID).Scan(&actions))
	assert.Zero(t, actions)
}

func TestAlertRepository_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	repo := s.Alerts()

	a := &Alert{ID: "fixed", Faces: 2}
	require.NoError(t, repo.Create(a))
	assert.Error(t, repo.Create(&Alert{ID: "fixed", Faces: 2}))

	n, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
