package logsink

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/votryx/votryx/internal/domain"
)

func TestSQLiteSinkPersistsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")

	s, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Write(testEntry(domain.LevelInfo, "run started")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(testEntry(domain.LevelError, "click failed")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM logs WHERE session_id = ?`, s.SessionID()).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("persisted %d records, want 2", count)
	}

	var level, message string
	err = db.QueryRow(`SELECT level, message FROM logs WHERE level = 'error'`).Scan(&level, &message)
	if err != nil {
		t.Fatal(err)
	}
	if message != "click failed" {
		t.Errorf("error message = %q, want %q", message, "click failed")
	}
}

func TestSQLiteSinkSessionsAreDistinct(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs.db")

	first, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewSQLiteSink(path)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	defer first.Close()

	if first.SessionID() == second.SessionID() {
		t.Error("two sinks share a session ID")
	}
}
