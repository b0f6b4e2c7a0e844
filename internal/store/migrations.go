package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Sessions table - one row per run of the control loop
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME,
			actuator TEXT NOT NULL DEFAULT '',
			range_min REAL NOT NULL DEFAULT 0,
			range_max REAL NOT NULL DEFAULT 0,
			domain_min REAL NOT NULL DEFAULT 0,
			domain_max REAL NOT NULL DEFAULT 0,
			frames INTEGER NOT NULL DEFAULT 0,
			hands_seen INTEGER NOT NULL DEFAULT 0,
			actuations INTEGER NOT NULL DEFAULT 0,
			actuation_errors INTEGER NOT NULL DEFAULT 0,
			acquisition_failures INTEGER NOT NULL DEFAULT 0,
			exit_reason TEXT NOT NULL DEFAULT '' CHECK(exit_reason IN ('', 'cancelled', 'fatal', 'startup')),
			error TEXT NOT NULL DEFAULT ''
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
