package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Alerts table - one row per fired alert
		`CREATE TABLE IF NOT EXISTS alerts (
			id TEXT PRIMARY KEY,
			fired_at_ms INTEGER NOT NULL,
			faces INTEGER NOT NULL,
			brightness REAL NOT NULL DEFAULT 0,
			snapshot_path TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT ''
		)`,

		// Alert actions table - outcome of each side effect of an alert
		`CREATE TABLE IF NOT EXISTS alert_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id TEXT NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
			sequence INTEGER NOT NULL,
			name TEXT NOT NULL,
			ok INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_alerts_fired_at ON alerts(fired_at_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_actions_alert_id ON alert_actions(alert_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
