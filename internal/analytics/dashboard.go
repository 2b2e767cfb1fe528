package analytics

import (
	"math"
	"time"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
)

// StreakNotImplemented is reported as the current streak.
// TODO: compute the streak once the product defines what breaks one (missed
// calendar day vs. missed due date).
const StreakNotImplemented = 0

const recentTaskLimit = 5

// Achievement is a progress bar on the home dashboard.
type Achievement struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Progress    int     `json:"progress"`
	Target      int     `json:"target"`
	Percent     float64 `json:"percent"`
	Unlocked    bool    `json:"unlocked"`
}

// Dashboard is the home page summary.
type Dashboard struct {
	TotalTasks     int                 `json:"totalTasks"`
	CompletedToday int                 `json:"completedToday"`
	OverdueTasks   int                 `json:"overdueTasks"`
	CurrentStreak  int                 `json:"currentStreak"`
	Level          int                 `json:"level"`
	XP             int                 `json:"xp"`
	Achievements   []Achievement       `json:"achievements"`
	RecentTasks    []domain.TaskRecord `json:"recentTasks"`
}

// BuildDashboard computes the home dashboard. Tasks are expected newest first.
func BuildDashboard(in Input, now time.Time) Dashboard {
	d := Dashboard{
		CurrentStreak:  StreakNotImplemented,
		CompletedToday: CompletedOnDay(in.Tasks, now),
		Achievements:   []Achievement{},
	}
	if in.Stats != nil {
		d.TotalTasks = in.Stats.TotalTasks
		d.OverdueTasks = in.Stats.Overdue
	}
	if in.UserStats != nil {
		d.Level = in.UserStats.Level
		d.XP = in.UserStats.XP
		d.Achievements = Achievements(*in.UserStats)
	}

	n := min(len(in.Tasks), recentTaskLimit)
	d.RecentTasks = make([]domain.TaskRecord, n)
	copy(d.RecentTasks, in.Tasks[:n])
	return d
}

// CompletedOnDay counts tasks completed on now's calendar day.
func CompletedOnDay(tasks []domain.TaskRecord, now time.Time) int {
	n := 0
	for _, t := range tasks {
		if at, ok := t.CompletedOn(); ok && sameDay(at.In(now.Location()), now) {
			n++
		}
	}
	return n
}

// Achievements lists the milestone progress bars for a user.
func Achievements(s domain.UserStats) []Achievement {
	return []Achievement{
		newAchievement("Task Master", "Complete 50 tasks", s.TotalTasksCompleted, 50),
		newAchievement("Level Up", "Reach level 10", s.Level, 10),
		newAchievement("XP Collector", "Earn 1000 XP", min(s.XP, 1000), 1000),
	}
}

func newAchievement(name, desc string, progress, target int) Achievement {
	return Achievement{
		Name:        name,
		Description: desc,
		Progress:    progress,
		Target:      target,
		Percent:     round1(math.Min(float64(progress)/float64(target)*100, 100)),
		Unlocked:    progress >= target,
	}
}
