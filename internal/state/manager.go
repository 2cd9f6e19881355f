package state

import (
	"log"
	"sync"
	"time"

	"github.com/votryx/votryx/internal/domain"
)

// Observer receives a statistics snapshot after every state change
type Observer func(Statistics)

// LogObserver receives every log entry recorded by the engine
type LogObserver func(domain.LogEntry)

// Manager owns the current Statistics value and the log history, and fans
// state changes out to observers. Mutations compute the next immutable
// snapshot under a short lock; observer dispatch happens outside it, ordered
// by a separate dispatch lock so snapshots arrive in publication order.
type Manager struct {
	stats     Statistics
	history   *History
	observers []Observer
	logObs    []LogObserver
	mu        sync.Mutex

	dispatchMu sync.Mutex
}

// NewManager creates a Manager with an empty, idle Statistics value
func NewManager() *Manager {
	return &Manager{
		stats:   Statistics{Status: domain.StatusIdle},
		history: NewHistory(DefaultHistorySize),
	}
}

// RegisterObserver adds a state change observer. Observers are invoked
// synchronously, in registration order.
func (m *Manager) RegisterObserver(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// RegisterLogObserver adds a log entry observer
func (m *Manager) RegisterLogObserver(obs LogObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logObs = append(m.logObs, obs)
}

// RecordSuccess registers one successful vote and notifies observers
func (m *Manager) RecordSuccess() Statistics {
	return m.mutate(func(s Statistics) Statistics { return s.withSuccess() })
}

// RecordError registers one failed vote and notifies observers
func (m *Manager) RecordError(msg string) Statistics {
	return m.mutate(func(s Statistics) Statistics { return s.withError(msg) })
}

// SetStatus transitions the run status and notifies observers
func (m *Manager) SetStatus(status domain.RunStatus) Statistics {
	return m.mutate(func(s Statistics) Statistics { return s.withStatus(status) })
}

// Reset zeroes all counters, keeping registered observers
func (m *Manager) Reset() Statistics {
	return m.mutate(func(Statistics) Statistics {
		return Statistics{Status: domain.StatusIdle}
	})
}

// RecordLog appends an entry to the bounded history and notifies log
// observers. Log entries do not trigger state change notifications.
func (m *Manager) RecordLog(level domain.LogLevel, msg string) {
	entry := domain.LogEntry{Timestamp: time.Now(), Level: level, Message: msg}
	m.history.Append(entry)

	m.mu.Lock()
	obs := make([]LogObserver, len(m.logObs))
	copy(obs, m.logObs)
	m.mu.Unlock()

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	for _, o := range obs {
		dispatchLog(o, entry)
	}
}

// Snapshot returns the current Statistics value
func (m *Manager) Snapshot() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Logs returns retained log entries, optionally filtered to errors
func (m *Manager) Logs(errorsOnly bool) []domain.LogEntry {
	if errorsOnly {
		return m.history.Errors()
	}
	return m.history.All()
}

// ClearLogs drops the retained log history
func (m *Manager) ClearLogs() {
	m.history.Clear()
}

// mutate computes the next snapshot under the state lock, then dispatches it
// to every observer outside that lock. The dispatch lock keeps notification
// order identical to publication order.
func (m *Manager) mutate(fn func(Statistics) Statistics) Statistics {
	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()

	m.mu.Lock()
	next := fn(m.stats)
	m.stats = next
	obs := make([]Observer, len(m.observers))
	copy(obs, m.observers)
	m.mu.Unlock()

	for _, o := range obs {
		dispatch(o, next)
	}
	return next
}

// dispatch isolates one observer invocation so a panicking observer cannot
// break dispatch to the rest or corrupt engine state.
func dispatch(o Observer, s Statistics) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("state observer panicked: %v", r)
		}
	}()
	o(s)
}

func dispatchLog(o LogObserver, e domain.LogEntry) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("log observer panicked: %v", r)
		}
	}()
	o(e)
}
