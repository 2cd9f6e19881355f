package logsink

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/votryx/votryx/internal/domain"
)

const logSchema = `
CREATE TABLE IF NOT EXISTS logs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	timestamp  DATETIME NOT NULL,
	level      TEXT NOT NULL,
	message    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_session ON logs(session_id);
`

// SQLiteSink appends log records to a SQLite database. Each sink instance
// writes under its own session ID so records from different app sessions
// stay distinguishable.
type SQLiteSink struct {
	db        *sql.DB
	sessionID string
	mu        sync.Mutex
}

// NewSQLiteSink opens (creating if needed) the database at path
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(logSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running log schema: %w", err)
	}

	return &SQLiteSink{db: db, sessionID: uuid.NewString()}, nil
}

// Write inserts one record
func (s *SQLiteSink) Write(entry domain.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO logs (session_id, timestamp, level, message) VALUES (?, ?, ?, ?)`,
		s.sessionID, entry.Timestamp, string(entry.Level), entry.Message,
	)
	return err
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// SessionID returns the sink's session identifier
func (s *SQLiteSink) SessionID() string {
	return s.sessionID
}
