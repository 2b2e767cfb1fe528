package analytics

import (
	"fmt"
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

const velocityWeeks = 4

// Trend directions reported by VelocityMetrics.
const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

// VelocityMetrics summarises a velocity series.
type VelocityMetrics struct {
	TotalCreated        int     `json:"totalCreated"`
	TotalCompleted      int     `json:"totalCompleted"`
	AvgCreatedPerWeek   float64 `json:"avgCreatedPerWeek"`
	AvgCompletedPerWeek float64 `json:"avgCompletedPerWeek"`
	CompletionRate      float64 `json:"completionRate"`
	Trend               float64 `json:"trend"`
	TrendDirection      string  `json:"trendDirection"`
}

// Velocity counts created and completed tasks over four consecutive 7-day
// windows ending today, labeled "Week 1" (oldest) to "Week 4". Comparison is
// by calendar date in now's location.
func Velocity(tasks []domain.TaskRecord, now time.Time) []VelocityWeek {
	loc := now.Location()
	out := make([]VelocityWeek, 0, velocityWeeks)

	for i := velocityWeeks - 1; i >= 0; i-- {
		start := startOfDay(now.AddDate(0, 0, -(i*7 + 6)))
		end := start.AddDate(0, 0, 6)
		w := VelocityWeek{Label: fmt.Sprintf("Week %d", velocityWeeks-i)}

		for _, t := range tasks {
			if inWindow(startOfDay(t.CreatedAt.In(loc)), start, end) {
				w.Created++
			}
			if at, ok := t.CompletedOn(); ok && inWindow(startOfDay(at.In(loc)), start, end) {
				w.Completed++
			}
		}
		out = append(out, w)
	}
	return out
}

func inWindow(day, start, end time.Time) bool {
	return !day.Before(start) && !day.After(end)
}

// SummarizeVelocity reduces a velocity series. It returns nil for an empty
// series. The trend compares the mean completed count of the last two weeks
// with that of the first two; with a single week both means coincide.
func SummarizeVelocity(weeks []VelocityWeek) *VelocityMetrics {
	if len(weeks) == 0 {
		return nil
	}

	var m VelocityMetrics
	for _, w := range weeks {
		m.TotalCreated += w.Created
		m.TotalCompleted += w.Completed
	}
	n := float64(len(weeks))
	m.AvgCreatedPerWeek = round1(float64(m.TotalCreated) / n)
	m.AvgCompletedPerWeek = round1(float64(m.TotalCompleted) / n)
	if m.TotalCreated > 0 {
		m.CompletionRate = round1(float64(m.TotalCompleted) / float64(m.TotalCreated) * 100)
	}

	recent := meanCompleted(weeks[max(0, len(weeks)-2):])
	older := recent
	if len(weeks) >= 2 {
		older = meanCompleted(weeks[:2])
	}
	trend := recent - older
	m.Trend = round1(trend)
	switch {
	case trend > 0:
		m.TrendDirection = TrendUp
	case trend < 0:
		m.TrendDirection = TrendDown
	default:
		m.TrendDirection = TrendStable
	}
	return &m
}

func meanCompleted(weeks []VelocityWeek) float64 {
	var sum int
	for _, w := range weeks {
		sum += w.Completed
	}
	return float64(sum) / float64(len(weeks))
}
