// Package domain holds the shared value types of the voting orchestrator.
package domain

import "time"

// RunStatus represents the lifecycle state of a voting run
type RunStatus string

const (
	StatusIdle       RunStatus = "idle"
	StatusRunning    RunStatus = "running"
	StatusBackingOff RunStatus = "backing_off"
	StatusStopped    RunStatus = "stopped"
	StatusCompleted  RunStatus = "completed"
)

// FailureKind classifies why a vote attempt failed
type FailureKind string

const (
	FailureLaunch            FailureKind = "launch_failure"
	FailureNavigationTimeout FailureKind = "navigation_timeout"
	FailureSelectorNotFound  FailureKind = "selector_not_found"
	FailureClick             FailureKind = "click_failure"
	FailureUnknown           FailureKind = "unknown_failure"
)

// StopReason explains why a run ended
type StopReason string

const (
	StopCompleted        StopReason = "completed"
	StopCancelled        StopReason = "cancelled"
	StopSustainedFailure StopReason = "sustained_failure"
)

// LogLevel is the severity of a log entry
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
	LevelSuccess LogLevel = "success"
)

// LogEntry represents a single timestamped log record emitted by the engine
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
}
