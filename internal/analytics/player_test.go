package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Prajanya-g/lvl.ai/internal/analytics"
	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

func skillValues(card analytics.PlayerCard) map[string]int {
	out := make(map[string]int, len(card.Skills))
	for _, s := range card.Skills {
		out[s.Skill] = s.Value
	}
	return out
}

func TestBuildPlayerCard_DemoFallbackForEmptyUser(t *testing.T) {
	card := analytics.BuildPlayerCard(domain.User{ID: "u1"}, nil, nil, analytics.DemoFallback())

	assert.True(t, card.UsedFallback)
	assert.Equal(t, "Alex Johnson", card.DisplayName)
	assert.Equal(t, "A", card.Initial)
	assert.Equal(t, 15, card.Level)
	assert.Equal(t, 3420, card.XP)
	assert.Equal(t, 127, card.TotalTasksCompleted)
	assert.Equal(t, 87, card.CompletionPercent)
	assert.Equal(t, map[string]int{
		analytics.SkillProductivity: 89,
		analytics.SkillConsistency:  87,
		analytics.SkillEfficiency:   78,
		analytics.SkillSpeed:        91,
		analytics.SkillFocus:        72,
	}, skillValues(card))
	assert.Equal(t, 83, card.Overall)
	assert.Equal(t, 84, card.Offensive)
	assert.Equal(t, 80, card.Defensive)
}

func TestBuildPlayerCard_StrictFallbackKeepsZeros(t *testing.T) {
	card := analytics.BuildPlayerCard(domain.User{ID: "u1"}, nil, nil, analytics.StrictFallback())

	assert.False(t, card.UsedFallback)
	assert.Empty(t, card.DisplayName)
	assert.Empty(t, card.Initial)
	assert.Zero(t, card.Level)
	assert.Zero(t, card.XP)
	assert.Zero(t, card.CompletionPercent)
	assert.Equal(t, map[string]int{
		analytics.SkillProductivity: 60,
		analytics.SkillConsistency:  87,
		analytics.SkillEfficiency:   78,
		analytics.SkillSpeed:        85,
		analytics.SkillFocus:        72,
	}, skillValues(card))
	assert.Equal(t, 76, card.Overall)
	assert.Equal(t, 69, card.Offensive)
	assert.Equal(t, 80, card.Defensive)
}

func TestBuildPlayerCard_RealData(t *testing.T) {
	stats := &domain.UserStats{
		Level:               3,
		XP:                  250,
		TotalTasksCompleted: 20,
		Tasks:               domain.TaskCounts{Total: 10, Completed: 6, Pending: 2, InProgress: 2},
	}
	summary := &domain.SummaryStats{EarnedPoints: 60}
	summary.ByPriority.Set("high", 3)

	for _, policy := range []analytics.FallbackPolicy{analytics.DemoFallback(), analytics.StrictFallback()} {
		card := analytics.BuildPlayerCard(domain.User{ID: "u1", Name: "maya"}, stats, summary, policy)

		assert.False(t, card.UsedFallback)
		assert.Equal(t, "maya", card.DisplayName)
		assert.Equal(t, "M", card.Initial)
		assert.Equal(t, 60, card.CompletionPercent)
		assert.Equal(t, map[string]int{
			analytics.SkillProductivity: 60,
			analytics.SkillConsistency:  70,
			analytics.SkillEfficiency:   65,
			analytics.SkillSpeed:        75,
			analytics.SkillFocus:        60,
		}, skillValues(card))
		assert.Equal(t, 66, card.Overall)
		assert.Equal(t, 63, card.Offensive)
		assert.Equal(t, 65, card.Defensive)
	}
}

func TestBuildPlayerCard_SkillOrder(t *testing.T) {
	card := analytics.BuildPlayerCard(domain.User{}, nil, nil, analytics.StrictFallback())

	var names []string
	for _, s := range card.Skills {
		names = append(names, s.Skill)
		assert.Equal(t, 100, s.FullMark)
	}
	assert.Equal(t, []string{"Productivity", "Consistency", "Efficiency", "Speed", "Focus"}, names)
}
