package domain

import "time"

// Status is the lifecycle state of a task as reported by the task backend.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// IsCompleted returns true for the completed status.
func (s Status) IsCompleted() bool { return s == StatusCompleted }

// Priority is the urgency level a user assigned to a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// StatusOrder and PriorityOrder are the canonical key orders used when counts
// are built in Go rather than decoded from an upstream JSON object.
var (
	StatusOrder   = []string{string(StatusPending), string(StatusInProgress), string(StatusCompleted)}
	PriorityOrder = []string{string(PriorityLow), string(PriorityMedium), string(PriorityHigh), string(PriorityUrgent)}
)

// TaskRecord is a single task as consumed by the analytics engine.
type TaskRecord struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Points      float64    `json:"points"`
	Tags        []string   `json:"tags,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// CompletedOn returns the completion timestamp of a completed task. A task whose
// status is completed but has no completion timestamp is not considered
// completed for any completion-dated series.
func (t TaskRecord) CompletedOn() (time.Time, bool) {
	if !t.Status.IsCompleted() || t.CompletedAt == nil {
		return time.Time{}, false
	}
	return *t.CompletedAt, true
}

// SummaryStats are the server-computed counters over a user's tasks.
type SummaryStats struct {
	TotalTasks   int     `json:"totalTasks"`
	ByStatus     Counts  `json:"byStatus"`
	ByPriority   Counts  `json:"byPriority"`
	TotalPoints  float64 `json:"totalPoints"`
	EarnedPoints float64 `json:"earnedPoints"`
	Overdue      int     `json:"overdue"`
}

// TaskCounts is the per-status task tally embedded in UserStats.
type TaskCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Pending    int `json:"pending"`
	InProgress int `json:"inProgress"`
}

// UserStats holds the gamification state of a user.
type UserStats struct {
	Level               int        `json:"level"`
	XP                  int        `json:"xp"`
	TotalTasksCompleted int        `json:"totalTasksCompleted"`
	Tasks               TaskCounts `json:"tasks"`
}

// User identifies the person whose analytics are computed.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// TaskQuery selects a page of tasks from a source.
type TaskQuery struct {
	UserID   string
	Status   Status // empty = any
	SortBy   string
	SortDesc bool
	Page     int
	PageSize int
}

// TaskPage is one page of tasks returned by a source.
type TaskPage struct {
	Tasks []TaskRecord `json:"data"`
	Page  int          `json:"page"`
	Total int          `json:"total"`
}
