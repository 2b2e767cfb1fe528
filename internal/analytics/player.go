package analytics

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// FallbackPolicy holds the values a player card uses when user data is sparse.
//
// Rating defaults apply under every policy whenever the ratio they stand in for
// is undefined. The demo values (Name through Tasks) replace zero or missing
// user data only when ReplaceZeros is set.
type FallbackPolicy struct {
	ReplaceZeros bool

	Name                string
	Level               int
	XP                  int
	TotalTasksCompleted int
	Tasks               domain.TaskCounts

	CompletionRate float64
	Efficiency     float64
	Speed          float64
	Focus          float64
}

// DemoFallback fills empty cards with a showcase player, matching the card
// shown to brand-new users on the web dashboard.
func DemoFallback() FallbackPolicy {
	p := StrictFallback()
	p.ReplaceZeros = true
	p.Name = "Alex Johnson"
	p.Level = 15
	p.XP = 3420
	p.TotalTasksCompleted = 127
	p.Tasks = domain.TaskCounts{Total: 45, Completed: 39, InProgress: 4}
	return p
}

// StrictFallback reports real zeros and keeps only the rating defaults.
func StrictFallback() FallbackPolicy {
	return FallbackPolicy{
		CompletionRate: 87,
		Efficiency:     78,
		Speed:          85,
		Focus:          72,
	}
}

// Skill names, in radar order.
const (
	SkillProductivity = "Productivity"
	SkillConsistency  = "Consistency"
	SkillEfficiency   = "Efficiency"
	SkillSpeed        = "Speed"
	SkillFocus        = "Focus"
)

// SkillRating is one axis of the player card radar.
type SkillRating struct {
	Skill    string `json:"skill"`
	Value    int    `json:"value"`
	FullMark int    `json:"fullMark"`
}

// PlayerCard is the gamified profile summary of a user.
type PlayerCard struct {
	DisplayName         string        `json:"displayName"`
	Initial             string        `json:"initial"`
	Avatar              string        `json:"avatar,omitempty"`
	Level               int           `json:"level"`
	XP                  int           `json:"xp"`
	TotalTasksCompleted int           `json:"totalTasksCompleted"`
	CompletionPercent   int           `json:"completionPercent"`
	Skills              []SkillRating `json:"skills"`
	Overall             int           `json:"overall"`
	Offensive           int           `json:"offensive"`
	Defensive           int           `json:"defensive"`
	UsedFallback        bool          `json:"usedFallback"`
}

// BuildPlayerCard computes the card for user. stats and summary may be nil.
func BuildPlayerCard(user domain.User, stats *domain.UserStats, summary *domain.SummaryStats, p FallbackPolicy) PlayerCard {
	var us domain.UserStats
	if stats != nil {
		us = *stats
	}
	used := false
	pick := func(real, demo int) int {
		if real == 0 && p.ReplaceZeros {
			used = true
			return demo
		}
		return real
	}

	card := PlayerCard{Avatar: user.Avatar}
	card.DisplayName = user.Name
	if card.DisplayName == "" && p.ReplaceZeros {
		card.DisplayName = p.Name
		used = true
	}
	card.Initial = initial(card.DisplayName)
	card.Level = pick(us.Level, p.Level)
	card.XP = pick(us.XP, p.XP)
	card.TotalTasksCompleted = pick(us.TotalTasksCompleted, p.TotalTasksCompleted)

	total := pick(us.Tasks.Total, p.Tasks.Total)
	completed := pick(us.Tasks.Completed, p.Tasks.Completed)
	inProgress := pick(us.Tasks.InProgress, p.Tasks.InProgress)

	// The headline percentage reads the real counts only.
	switch {
	case us.Tasks.Total > 0:
		card.CompletionPercent = roundInt(float64(us.Tasks.Completed) / float64(us.Tasks.Total) * 100)
	case p.ReplaceZeros:
		card.CompletionPercent = roundInt(p.CompletionRate)
		used = true
	}

	rate := p.CompletionRate
	if total > 0 {
		rate = float64(completed) / float64(total) * 100
	}

	productivity := clamp(float64(card.TotalTasksCompleted)/10*7, 60, 100)
	consistency := clamp(rate, 70, 100)

	efficiency := p.Efficiency
	if summary != nil {
		efficiency = clamp(summary.EarnedPoints/math.Max(1, float64(total))*8, 65, 100)
	}

	speed := p.Speed
	if inProgress > 0 {
		speed = clamp(float64(completed)/math.Max(1, float64(inProgress+completed))*100, 70, 100)
	}

	focus := p.Focus
	if summary != nil {
		if high := summary.ByPriority.Get(string(domain.PriorityHigh)); high > 0 {
			focus = clamp(float64(high)/math.Max(1, float64(total))*100, 60, 100)
		}
	}

	ratings := [5]int{
		roundInt(productivity),
		roundInt(consistency),
		roundInt(efficiency),
		roundInt(speed),
		roundInt(focus),
	}
	names := [5]string{SkillProductivity, SkillConsistency, SkillEfficiency, SkillSpeed, SkillFocus}

	card.Skills = make([]SkillRating, len(ratings))
	sum := 0
	for i, r := range ratings {
		card.Skills[i] = SkillRating{Skill: names[i], Value: r, FullMark: 100}
		sum += r
	}
	card.Overall = roundInt(float64(sum) / float64(len(ratings)))
	card.Offensive = roundInt(float64(ratings[0]+ratings[2]) / 2)
	card.Defensive = roundInt(float64(ratings[1]+ratings[4]) / 2)
	card.UsedFallback = used
	return card
}

// roundInt rounds half up, as ratings are never negative.
func roundInt(x float64) int {
	return int(math.Floor(x + 0.5))
}

func initial(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(r))
}
