package analytics

import (
	"math"
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

var weekdayLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// WeeklyCompletion buckets the last seven days of activity by weekday.
//
// A task's effective date is its completion time if set, else its creation
// time. It is included when the floored day difference to now is 0..6 and
// counted as completed only if CompletedOn reports a completion. The series
// is always Sun..Sat regardless of today's weekday.
func WeeklyCompletion(tasks []domain.TaskRecord, now time.Time) []Point {
	var completed, total [7]int
	loc := now.Location()

	for _, t := range tasks {
		date := t.CreatedAt
		if t.CompletedAt != nil {
			date = *t.CompletedAt
		}
		diff := math.Floor(now.Sub(date).Hours() / 24)
		if diff < 0 || diff > 6 {
			continue
		}
		day := date.In(loc).Weekday()
		total[day]++
		if _, ok := t.CompletedOn(); ok {
			completed[day]++
		}
	}

	out := make([]Point, 7)
	for i, label := range weekdayLabels {
		out[i] = Point{Label: label, Value: float64(completed[i])}
	}
	return out
}
