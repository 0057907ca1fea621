// Package progress implements the process-wide Progress Registry: a
// concurrent map of operation id to live progress state, publishing
// updates to an arbitrary number of subscribers.
package progress

import "time"

// Status is the typed sum-type state of a progress record, replacing the
// duck-typed ProgressInfo struct the teacher passes around in
// pkg/core/streaming/progress.go with an explicit closed set of states.
type Status string

const (
	InProgress Status = "in_progress"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

// Snapshot is an immutable value describing an operation at a point in
// time. It is the only shape published to subscribers.
type Snapshot struct {
	OperationID    string
	Status         Status
	BytesProcessed int64
	BytesTotal     int64
	StartedAt      time.Time
	UpdatedAt      time.Time
	FinishedAt     time.Time
	Message        string
	Error          string
}

// Terminal reports whether the snapshot is in a terminal state
// (completed or failed); terminal snapshots are never dropped by
// coalescing and are always the last snapshot a subscriber observes.
func (s Snapshot) Terminal() bool {
	return s.Status == Completed || s.Status == Failed
}

// SpeedBPS derives bytes per second from elapsed wall time.
func (s Snapshot) SpeedBPS() float64 {
	elapsed := s.UpdatedAt.Sub(s.StartedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.BytesProcessed) / elapsed
}

// ETASeconds derives the estimated remaining seconds from the current
// speed, or zero when the total is unknown or speed is zero.
func (s Snapshot) ETASeconds() float64 {
	speed := s.SpeedBPS()
	if speed <= 0 || s.BytesTotal <= 0 {
		return 0
	}
	remaining := float64(s.BytesTotal-s.BytesProcessed) / speed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// notFoundSnapshot is the synthetic terminator delivered by Subscribe when
// the operation id was never opened.
func notFoundSnapshot(operationID string) Snapshot {
	now := time.Now()
	return Snapshot{
		OperationID: operationID,
		Status:      Failed,
		StartedAt:   now,
		UpdatedAt:   now,
		FinishedAt:  now,
		Error:       "not_found",
	}
}
