package analytics_test

import (
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/analytics"
	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// Wednesday afternoon.
var now = time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)

func at(month time.Month, day, hour int) time.Time {
	return time.Date(2024, month, day, hour, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func completedTask(id string, created, completed time.Time, points float64, tags ...string) domain.TaskRecord {
	return domain.TaskRecord{
		ID:          id,
		Status:      domain.StatusCompleted,
		Priority:    domain.PriorityMedium,
		Points:      points,
		Tags:        tags,
		CreatedAt:   created,
		CompletedAt: ptr(completed),
	}
}

func pendingTask(id string, created time.Time, tags ...string) domain.TaskRecord {
	return domain.TaskRecord{
		ID:        id,
		Status:    domain.StatusPending,
		Priority:  domain.PriorityLow,
		Points:    5,
		Tags:      tags,
		CreatedAt: created,
	}
}

func pointLabels(points []analytics.Point) []string {
	out := make([]string, len(points))
	for i, p := range points {
		out[i] = p.Label
	}
	return out
}

func pointValues(points []analytics.Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}
