package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topics used by the analytics services.
const (
	TopicTaskEvents         = "tasks.events"
	TopicAnalyticsRefreshed = "analytics.refreshed"
)

// TaskEventType names a task lifecycle change published by the task backend.
type TaskEventType string

const (
	TaskCreated   TaskEventType = "task.created"
	TaskUpdated   TaskEventType = "task.updated"
	TaskCompleted TaskEventType = "task.completed"
	TaskDeleted   TaskEventType = "task.deleted"
)

// TaskEvent is a message on TopicTaskEvents.
type TaskEvent struct {
	EventID    string        `json:"event_id"`
	Type       TaskEventType `json:"type"`
	UserID     string        `json:"user_id"`
	TaskID     string        `json:"task_id"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// ErrMalformedEvent marks a message that will never decode; consumers commit
// past it instead of redelivering.
var ErrMalformedEvent = errors.New("malformed event")

// DecodeTaskEvent parses and validates a task event.
func DecodeTaskEvent(b []byte) (TaskEvent, error) {
	var ev TaskEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return TaskEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.UserID = strings.TrimSpace(ev.UserID)
	if ev.UserID == "" {
		return TaskEvent{}, fmt.Errorf("%w: missing user_id", ErrMalformedEvent)
	}
	if ev.Type == "" {
		return TaskEvent{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	return ev, nil
}

// AffectsAnalytics reports whether the event can change any analytics input.
func (e TaskEvent) AffectsAnalytics() bool {
	switch e.Type {
	case TaskCreated, TaskUpdated, TaskCompleted, TaskDeleted:
		return true
	}
	return false
}

// RefreshedEvent is published on TopicAnalyticsRefreshed after a snapshot refresh.
type RefreshedEvent struct {
	EventID   string    `json:"event_id"`
	UserID    string    `json:"user_id"`
	FetchedAt time.Time `json:"fetched_at"`
	Trigger   string    `json:"trigger"`
}

// NewRefreshedEvent stamps a fresh event id.
func NewRefreshedEvent(userID string, fetchedAt time.Time, trigger string) RefreshedEvent {
	return RefreshedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		FetchedAt: fetchedAt.UTC(),
		Trigger:   trigger,
	}
}
