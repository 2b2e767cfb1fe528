package analytics

import (
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

const xpTrendDays = 30

// XPTrend sums the points of tasks completed on each of the last 30 calendar
// days, oldest first, labeled like "Jan 2". Days without completions are 0.
func XPTrend(tasks []domain.TaskRecord, now time.Time) []Point {
	loc := now.Location()
	out := make([]Point, 0, xpTrendDays)

	for i := xpTrendDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		var xp float64
		for _, t := range tasks {
			at, ok := t.CompletedOn()
			if ok && sameDay(at.In(loc), day) {
				xp += t.Points
			}
		}
		out = append(out, Point{Label: day.Format("Jan 2"), Value: xp})
	}
	return out
}
