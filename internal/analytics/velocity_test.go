package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prajanya-g/lvl.ai/internal/analytics"
	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

func TestVelocity_FourWeeksOldestFirst(t *testing.T) {
	got := analytics.Velocity(nil, now)
	require.Len(t, got, 4)
	for i, w := range got {
		assert.Equal(t, []string{"Week 1", "Week 2", "Week 3", "Week 4"}[i], w.Label)
		assert.Zero(t, w.Created)
		assert.Zero(t, w.Completed)
	}
}

func TestVelocity_CountsByCalendarDay(t *testing.T) {
	// Windows for Wed 13 Mar: Feb 15-21, Feb 22-28, Feb 29-Mar 6, Mar 7-13.
	noTimestamp := completedTask("no-ts", at(3, 10, 9), at(3, 10, 9), 1)
	noTimestamp.CompletedAt = nil

	tasks := []domain.TaskRecord{
		pendingTask("week1 start", at(2, 15, 0)),
		pendingTask("before window", at(2, 14, 23)),
		pendingTask("week2 end", at(2, 28, 23)),
		completedTask("created w3 done w4", at(3, 1, 9), at(3, 7, 9), 3),
		pendingTask("late today", at(3, 13, 23)),
		noTimestamp,
	}

	got := analytics.Velocity(tasks, now)
	assert.Equal(t, []analytics.VelocityWeek{
		{Label: "Week 1", Created: 1, Completed: 0},
		{Label: "Week 2", Created: 1, Completed: 0},
		{Label: "Week 3", Created: 1, Completed: 0},
		{Label: "Week 4", Created: 2, Completed: 1},
	}, got)
}

func TestSummarizeVelocity(t *testing.T) {
	weeks := []analytics.VelocityWeek{
		{Label: "Week 1", Created: 5, Completed: 3},
		{Label: "Week 2", Created: 4, Completed: 4},
		{Label: "Week 3", Created: 6, Completed: 5},
		{Label: "Week 4", Created: 3, Completed: 5},
	}

	m := analytics.SummarizeVelocity(weeks)
	require.NotNil(t, m)
	assert.Equal(t, 18, m.TotalCreated)
	assert.Equal(t, 17, m.TotalCompleted)
	assert.Equal(t, 4.5, m.AvgCreatedPerWeek)
	assert.Equal(t, 4.3, m.AvgCompletedPerWeek)
	assert.Equal(t, 94.4, m.CompletionRate)
	// mean(5,5) - mean(3,4)
	assert.Equal(t, 1.5, m.Trend)
	assert.Equal(t, analytics.TrendUp, m.TrendDirection)
}

func TestSummarizeVelocity_Directions(t *testing.T) {
	tests := []struct {
		name      string
		completed [4]int
		trend     float64
		direction string
	}{
		{"down", [4]int{4, 4, 1, 2}, -2.5, analytics.TrendDown},
		{"stable", [4]int{2, 2, 2, 2}, 0, analytics.TrendStable},
		{"up", [4]int{0, 0, 0, 1}, 0.5, analytics.TrendUp},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weeks := make([]analytics.VelocityWeek, 4)
			for i, c := range tt.completed {
				weeks[i] = analytics.VelocityWeek{Created: c, Completed: c}
			}
			m := analytics.SummarizeVelocity(weeks)
			require.NotNil(t, m)
			assert.Equal(t, tt.trend, m.Trend)
			assert.Equal(t, tt.direction, m.TrendDirection)
		})
	}
}

func TestSummarizeVelocity_EdgeCases(t *testing.T) {
	assert.Nil(t, analytics.SummarizeVelocity(nil))

	m := analytics.SummarizeVelocity([]analytics.VelocityWeek{{Created: 0, Completed: 3}})
	require.NotNil(t, m)
	assert.Equal(t, 0.0, m.Trend)
	assert.Equal(t, analytics.TrendStable, m.TrendDirection)
	assert.Equal(t, 0.0, m.CompletionRate, "no created tasks guards the division")
}

func TestVelocity_ExcludesCompletedWithoutTimestamp(t *testing.T) {
	task := domain.TaskRecord{ID: "x", Status: domain.StatusCompleted, CreatedAt: at(3, 12, 9)}

	got := analytics.Velocity([]domain.TaskRecord{task}, now)
	assert.Equal(t, 1, got[3].Created)
	assert.Equal(t, 0, got[3].Completed)
}
