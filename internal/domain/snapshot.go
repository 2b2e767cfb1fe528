package domain

import "time"

// Snapshot is the last fetched set of analytics inputs for one user. It is an
// input to the engine, never a cached output: reports are rebuilt from it
// against the current instant on every request.
type Snapshot struct {
	UserID    string        `json:"userId"`
	User      User          `json:"user"`
	FetchedAt time.Time     `json:"fetchedAt"`
	Stats     *SummaryStats `json:"stats"`
	UserStats *UserStats    `json:"userStats"`
	Tasks     []TaskRecord  `json:"tasks"`

	// Error is the user-visible message of the most recent failed refresh,
	// kept alongside the previous good data.
	Error    string     `json:"error,omitempty"`
	FailedAt *time.Time `json:"failedAt,omitempty"`
}
