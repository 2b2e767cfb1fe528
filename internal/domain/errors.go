package domain

import "fmt"

// UserNotFoundError is returned when a source has no record of the user.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %s", e.UserID)
}

// SnapshotNotFoundError is returned when no snapshot is cached for a user.
type SnapshotNotFoundError struct {
	UserID string
}

func (e *SnapshotNotFoundError) Error() string {
	return fmt.Sprintf("no analytics snapshot for user %s", e.UserID)
}

// RateLimitExceededError is returned when a caller exceeds its request budget.
type RateLimitExceededError struct {
	Key   string
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: limit is %d", e.Key, e.Limit)
}

// UpstreamError is returned when the task backend answers with a non-2xx status.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: upstream returned %d", e.Op, e.StatusCode)
}

// Temporary reports whether retrying the call may succeed.
func (e *UpstreamError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// InvalidRecordError describes an inbound task record rejected at the edge.
type InvalidRecordError struct {
	Index  int
	TaskID string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("invalid task record at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid task record %s at index %d: %s", e.TaskID, e.Index, e.Reason)
}
