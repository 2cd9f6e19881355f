// Package state is the single source of truth for run progress. Statistics
// snapshots are immutable values; every mutation produces a replacement and
// is broadcast synchronously to registered observers.
package state

import (
	"time"

	"github.com/votryx/votryx/internal/domain"
)

// Statistics is an immutable snapshot of run counters. Mutations go through
// the with* transitions; no field is ever written in place.
type Statistics struct {
	VoteCount         int              `json:"vote_count"`
	ErrorCount        int              `json:"error_count"`
	ConsecutiveErrors int              `json:"consecutive_errors"`
	LastError         string           `json:"last_error,omitempty"`
	Status            domain.RunStatus `json:"status"`
	StartedAt         time.Time        `json:"started_at,omitzero"`
}

// withSuccess returns a copy with the vote counter incremented and the
// consecutive error streak cleared.
func (s Statistics) withSuccess() Statistics {
	s.VoteCount++
	s.ConsecutiveErrors = 0
	return s
}

// withError returns a copy with both error counters incremented
func (s Statistics) withError(msg string) Statistics {
	s.ErrorCount++
	s.ConsecutiveErrors++
	s.LastError = msg
	return s
}

// withStatus returns a copy with the run status replaced. Entering the
// running state stamps StartedAt; leaving it clears the stamp.
func (s Statistics) withStatus(status domain.RunStatus) Statistics {
	switch {
	case status == domain.StatusRunning && s.Status != domain.StatusRunning && s.Status != domain.StatusBackingOff:
		s.StartedAt = time.Now()
	case status == domain.StatusIdle:
		s.StartedAt = time.Time{}
	}
	s.Status = status
	return s
}

// Attempts returns the total number of concluded vote attempts
func (s Statistics) Attempts() int {
	return s.VoteCount + s.ErrorCount
}

// Runtime returns how long the run has been active
func (s Statistics) Runtime() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt)
}
