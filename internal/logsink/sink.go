// Package logsink provides storage backends for the log records the engine
// emits. The engine has no opinion on storage format; sinks do.
package logsink

import (
	"log"

	"github.com/votryx/votryx/internal/domain"
)

// Sink persists engine log records
type Sink interface {
	Write(entry domain.LogEntry) error
	Close() error
}

// MultiSink fans every record out to all sinks. A failing sink is logged at
// warning level and never blocks the others.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to all provided sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Write writes the entry to every sink
func (m *MultiSink) Write(entry domain.LogEntry) error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Write(entry); err != nil {
			log.Printf("log sink write failed: %v", err)
			lastErr = err
		}
	}
	return lastErr
}

// Close closes every sink
func (m *MultiSink) Close() error {
	var lastErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// NopSink discards all records
type NopSink struct{}

func (NopSink) Write(domain.LogEntry) error { return nil }
func (NopSink) Close() error                { return nil }
