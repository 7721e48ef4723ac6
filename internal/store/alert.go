package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Alert is one persisted alert.
type Alert struct {
	ID           string
	FiredAt      time.Time
	Faces        int
	Brightness   float64
	SnapshotPath string
	Summary      string
	Actions      []ActionResult
}

// ActionResult is the stored outcome of one alert action.
type ActionResult struct {
	Name     string
	OK       bool
	Error    string
	Duration time.Duration
}

// AlertRepository provides access to the alert history.
type AlertRepository struct {
	db *sql.DB
}

// Alerts returns the alert repository for this store.
func (s *Store) Alerts() *AlertRepository {
	return &AlertRepository{db: s.db}
}

// Create inserts an alert and its action results. An empty ID is filled with
// a new UUID.
func (r *AlertRepository) Create(a *Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.FiredAt.IsZero() {
		a.FiredAt = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO alerts (id, fired_at_ms, faces, brightness, snapshot_path, summary)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.FiredAt.UnixMilli(), a.Faces, a.Brightness, a.SnapshotPath, a.Summary,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}

	for i, act := range a.Actions {
		ok := 0
		if act.OK {
			ok = 1
		}
		_, err := tx.Exec(
			`INSERT INTO alert_actions (alert_id, sequence, name, ok, error, duration_ms)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, i, act.Name, ok, act.Error, act.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert alert action %s: %w", act.Name, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves an alert with its action results.
func (r *AlertRepository) GetByID(id string) (*Alert, error) {
	a := &Alert{}
	var firedAt int64

	err := r.db.QueryRow(
		`SELECT id, fired_at_ms, faces, brightness, snapshot_path, summary
		 FROM alerts WHERE id = ?`,
		id,
	).Scan(&a.ID, &firedAt, &a.Faces, &a.Brightness, &a.SnapshotPath, &a.Summary)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.FiredAt = time.UnixMilli(firedAt)

	actions, err := r.actions(id)
	if err != nil {
		return nil, err
	}
	a.Actions = actions
	return a, nil
}

// List returns the most recent alerts, newest first. Action results are not
// loaded. A non-positive limit returns every alert.
func (r *AlertRepository) List(limit int) ([]*Alert, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, fired_at_ms, faces, brightness, snapshot_path, summary
		 FROM alerts ORDER BY fired_at_ms DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		a := &Alert{}
		var firedAt int64
		if err := rows.Scan(&a.ID, &firedAt, &a.Faces, &a.Brightness, &a.SnapshotPath, &a.Summary); err != nil {
			return nil, err
		}
		a.FiredAt = time.UnixMilli(firedAt)
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

// Count returns the number of stored alerts.
func (r *AlertRepository) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}

// Latest returns the most recent alert, or ErrNotFound.
func (r *AlertRepository) Latest() (*Alert, error) {
	alerts, err := r.List(1)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrNotFound
	}
	return alerts[0], nil
}

// DeleteBefore removes alerts fired before cutoff and returns how many were deleted.
func (r *AlertRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM alerts WHERE fired_at_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *AlertRepository) actions(alertID string) ([]ActionResult, error) {
	rows, err := r.db.Query(
		`SELECT name, ok, error, duration_ms FROM alert_actions
		 WHERE alert_id = ? ORDER BY sequence`,
		alertID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ActionResult
	for rows.Next() {
		var res ActionResult
		var ok int
		var ms int64
		if err := rows.Scan(&res.Name, &ok, &res.Error, &ms); err != nil {
			return nil, err
		}
		res.OK = ok != 0
		res.Duration = time.Duration(ms) * time.Millisecond
		results = append(results, res)
	}
	return results, rows.Err()
}
