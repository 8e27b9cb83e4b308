// Package statsdb persists per-session streaming summaries to PostgreSQL,
// adapted from the peer/session store in the teacher's pkg/persistence.
package statsdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/trylle/netvid/pkg/logging"
)

// Config holds database connection settings.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SessionSummary is one completed send or receive session.
type SessionSummary struct {
	SessionID      string
	Role           string // "sender" or "receiver"
	StartedAt      time.Time
	EndedAt        time.Time
	FramesSent     int64
	FramesReceived int64
	ChunksLost     int64
	AverageBitrate float64 // bits per second
}

// Store persists SessionSummary rows to Postgres.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open connects to Postgres, initializes the schema, and returns a Store.
func Open(cfg Config, log *logging.Logger) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to statsdb: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping statsdb: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db, log: log}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init statsdb schema: %w", err)
	}

	if log != nil {
		log.Info("statsdb connected", logging.Fields{"host": cfg.Host, "db": cfg.DBName})
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_summaries (
		session_id VARCHAR(64) PRIMARY KEY,
		role VARCHAR(16) NOT NULL,
		started_at TIMESTAMP NOT NULL,
		ended_at TIMESTAMP NOT NULL,
		frames_sent BIGINT NOT NULL DEFAULT 0,
		frames_received BIGINT NOT NULL DEFAULT 0,
		chunks_lost BIGINT NOT NULL DEFAULT 0,
		average_bitrate DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_session_summaries_started_at ON session_summaries(started_at);
	CREATE INDEX IF NOT EXISTS idx_session_summaries_role ON session_summaries(role);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveSession inserts or replaces a session's summary.
func (s *Store) SaveSession(sum SessionSummary) error {
	query := `
		INSERT INTO session_summaries
			(session_id, role, started_at, ended_at, frames_sent, frames_received, chunks_lost, average_bitrate)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			ended_at = EXCLUDED.ended_at,
			frames_sent = EXCLUDED.frames_sent,
			frames_received = EXCLUDED.frames_received,
			chunks_lost = EXCLUDED.chunks_lost,
			average_bitrate = EXCLUDED.average_bitrate
	`

	_, err := s.db.Exec(query,
		sum.SessionID, sum.Role, sum.StartedAt, sum.EndedAt,
		sum.FramesSent, sum.FramesReceived, sum.ChunksLost, sum.AverageBitrate,
	)

	return err
}

// GetSession retrieves a session summary by ID.
func (s *Store) GetSession(sessionID string) (*SessionSummary, error) {
	query := `
		SELECT session_id, role, started_at, ended_at, frames_sent, frames_received, chunks_lost, average_bitrate
		FROM session_summaries
		WHERE session_id = $1
	`

	var sum SessionSummary
	err := s.db.QueryRow(query, sessionID).Scan(
		&sum.SessionID, &sum.Role, &sum.StartedAt, &sum.EndedAt,
		&sum.FramesSent, &sum.FramesReceived, &sum.ChunksLost, &sum.AverageBitrate,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}

	return &sum, nil
}

// RecentSessions returns the most recently started sessions for role,
// newest first, bounded to limit rows.
func (s *Store) RecentSessions(role string, limit int) ([]SessionSummary, error) {
	query := `
		SELECT session_id, role, started_at, ended_at, frames_sent, frames_received, chunks_lost, average_bitrate
		FROM session_summaries
		WHERE role = $1
		ORDER BY started_at DESC
		LIMIT $2
	`

	rows, err := s.db.Query(query, role, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(
			&sum.SessionID, &sum.Role, &sum.StartedAt, &sum.EndedAt,
			&sum.FramesSent, &sum.FramesReceived, &sum.ChunksLost, &sum.AverageBitrate,
		); err != nil {
			return nil, err
		}
		sessions = append(sessions, sum)
	}

	return sessions, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.log != nil {
		s.log.Info("statsdb connection closing", nil)
	}
	return s.db.Close()
}
