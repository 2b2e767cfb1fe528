package analytics

import (
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// Input is an immutable snapshot of everything the engine reads.
type Input struct {
	User      domain.User
	Stats     *domain.SummaryStats
	UserStats *domain.UserStats
	Tasks     []domain.TaskRecord
}

// Report is the full analytics page payload.
type Report struct {
	GeneratedAt       time.Time         `json:"generatedAt"`
	Metrics           *DerivedMetrics   `json:"metrics"`
	Stats             *SummaryView      `json:"stats"`
	UserStats         *domain.UserStats `json:"userStats"`
	StatusBreakdown   []Point           `json:"statusBreakdown"`
	PriorityBreakdown []Point           `json:"priorityBreakdown"`
	WeeklyCompletion  []Point           `json:"weeklyCompletion"`
	TagFrequency      []Point           `json:"tagFrequency"`
	XPTrend           []Point           `json:"xpTrend"`
	Velocity          []VelocityWeek    `json:"velocity"`
	VelocityMetrics   *VelocityMetrics  `json:"velocityMetrics"`
}

// SummaryView echoes the headline counters the page shows next to the ratios.
type SummaryView struct {
	TotalTasks   int     `json:"totalTasks"`
	TotalPoints  float64 `json:"totalPoints"`
	EarnedPoints float64 `json:"earnedPoints"`
	Overdue      int     `json:"overdue"`
}

// Build assembles a Report. Missing inputs produce empty sections: metrics
// need both summary and user stats, breakdowns need summary stats, and task
// series are empty when there are no tasks.
func Build(in Input, now time.Time) Report {
	r := Report{
		GeneratedAt:       now,
		UserStats:         in.UserStats,
		StatusBreakdown:   []Point{},
		PriorityBreakdown: []Point{},
		WeeklyCompletion:  []Point{},
		TagFrequency:      []Point{},
		XPTrend:           []Point{},
		Velocity:          []VelocityWeek{},
	}

	if in.Stats != nil {
		r.Stats = &SummaryView{
			TotalTasks:   in.Stats.TotalTasks,
			TotalPoints:  in.Stats.TotalPoints,
			EarnedPoints: in.Stats.EarnedPoints,
			Overdue:      in.Stats.Overdue,
		}
		r.StatusBreakdown = StatusBreakdown(in.Stats.ByStatus)
		r.PriorityBreakdown = PriorityBreakdown(in.Stats.ByPriority)
		if in.UserStats != nil {
			m := Ratios(*in.Stats)
			r.Metrics = &m
		}
	}

	if len(in.Tasks) > 0 {
		r.WeeklyCompletion = WeeklyCompletion(in.Tasks, now)
		r.TagFrequency = TagFrequency(in.Tasks)
		r.XPTrend = XPTrend(in.Tasks, now)
		r.Velocity = Velocity(in.Tasks, now)
		r.VelocityMetrics = SummarizeVelocity(r.Velocity)
	}
	return r
}
