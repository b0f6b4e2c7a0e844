package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ExitReason records how a session ended.
type ExitReason string

const (
	// ExitRunning marks a session that has not finished (yet).
	ExitRunning ExitReason = ""
	// ExitCancelled is a session ended by the cancel key, a signal or the tray.
	ExitCancelled ExitReason = "cancelled"
	// ExitFatal is a session ended by an acquisition or unexpected error.
	ExitFatal ExitReason = "fatal"
	// ExitStartup is a session that never left initialization.
	ExitStartup ExitReason = "startup"
)

// Session is one run of the control loop. It is diagnostic only and never
// read back to calibrate a later run.
type Session struct {
	ID                  string
	StartedAt           time.Time
	EndedAt             *time.Time
	Actuator            string
	RangeMin            float64
	RangeMax            float64
	DomainMin           float64
	DomainMax           float64
	Frames              uint64
	HandsSeen           uint64
	Actuations          uint64
	ActuationErrors     uint64
	AcquisitionFailures uint64
	ExitReason          ExitReason
	Error               string
}

// Duration returns how long the session ran, or has been running.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return time.Since(s.StartedAt)
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// SessionRepository records sessions.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Create inserts a new session. ID and StartedAt are assigned when empty.
func (r *SessionRepository) Create(s *Session) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO sessions (id, started_at, actuator, range_min, range_max, domain_min, domain_max)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt, s.Actuator, s.RangeMin, s.RangeMax, s.DomainMin, s.DomainMax,
	)
	return err
}

// Finish stores the final counters and exit reason of s and stamps EndedAt.
func (r *SessionRepository) Finish(s *Session) error {
	now := time.Now()
	s.EndedAt = &now

	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, actuator = ?, range_min = ?, range_max = ?,
		 domain_min = ?, domain_max = ?, frames = ?, hands_seen = ?, actuations = ?,
		 actuation_errors = ?, acquisition_failures = ?, exit_reason = ?, error = ?
		 WHERE id = ?`,
		s.EndedAt, s.Actuator, s.RangeMin, s.RangeMax,
		s.DomainMin, s.DomainMax, s.Frames, s.HandsSeen, s.Actuations,
		s.ActuationErrors, s.AcquisitionFailures, string(s.ExitReason), s.Error,
		s.ID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

const sessionColumns = `id, started_at, ended_at, actuator, range_min, range_max, domain_min, domain_max,
	frames, hands_seen, actuations, actuation_errors, acquisition_failures, exit_reason, error`

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	s := &Session{}
	var endedAt sql.NullTime
	var exitReason string

	err := row.Scan(&s.ID, &s.StartedAt, &endedAt, &s.Actuator, &s.RangeMin, &s.RangeMax,
		&s.DomainMin, &s.DomainMax, &s.Frames, &s.HandsSeen, &s.Actuations,
		&s.ActuationErrors, &s.AcquisitionFailures, &exitReason, &s.Error)
	if err != nil {
		return nil, err
	}

	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	s.ExitReason = ExitReason(exitReason)
	return s, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

// List retrieves the most recent sessions, newest first. A non-positive
// limit returns all of them.
func (r *SessionRepository) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// Delete removes a session from the journal by its ID.
func (r *SessionRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
