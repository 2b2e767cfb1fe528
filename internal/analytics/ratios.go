package analytics

import "github.com/Prajanya-g/lvl.ai/internal/domain"

// DerivedMetrics are the headline ratios computed from SummaryStats.
type DerivedMetrics struct {
	CompletionRate   float64 `json:"completionRate"`
	AvgPointsPerTask float64 `json:"avgPointsPerTask"`
	PointsEfficiency float64 `json:"pointsEfficiency"`
}

// Ratios computes the derived metrics. Zero denominators yield 0.
func Ratios(s domain.SummaryStats) DerivedMetrics {
	var m DerivedMetrics
	if s.TotalTasks > 0 {
		total := float64(s.TotalTasks)
		m.CompletionRate = round1(float64(s.ByStatus.Get(string(domain.StatusCompleted))) / total * 100)
		m.AvgPointsPerTask = round1(s.TotalPoints / total)
	}
	if s.TotalPoints > 0 {
		m.PointsEfficiency = round1(s.EarnedPoints / s.TotalPoints * 100)
	}
	return m
}
