//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/postgres"
)

type seedTask struct {
	id        string
	status    string
	priority  string
	points    float64
	tags      []string
	createdAt time.Time
	completed *time.Time
	due       *time.Time
}

// newPool connects to the test Postgres container and truncates the tables on
// cleanup.
func newPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE tasks, users CASCADE") //nolint:errcheck
		pool.Close()
	})
	return pool
}

func seedUser(t *testing.T, pool *pgxpool.Pool, id string, level, xp, completed int, tasks ...seedTask) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `
		INSERT INTO users (id, name, level, xp, total_tasks_completed) VALUES ($1, $2, $3, $4, $5)
	`, id, "User "+id, level, xp, completed)
	require.NoError(t, err)

	for _, task := range tasks {
		tags := task.tags
		if tags == nil {
			tags = []string{}
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO tasks (id, user_id, title, status, priority, points, tags, created_at, updated_at, completed_at, due_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $10)
		`, task.id, id, "Task "+task.id, task.status, task.priority, task.points, tags, task.createdAt, task.completed, task.due)
		require.NoError(t, err)
	}
}

func tp(t time.Time) *time.Time { return &t }

func TestPostgres_MigrateIsIdempotent(t *testing.T) {
	pool := newPool(t)

	applied, err := postgres.Migrate(context.Background(), pool, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, applied, "TestMain already applied every migration")
}

func TestPostgres_TaskStats(t *testing.T) {
	pool := newPool(t)
	now := time.Now().UTC()
	seedUser(t, pool, "u1", 3, 300, 2,
		seedTask{id: "a", status: "completed", priority: "high", points: 10, createdAt: now.Add(-time.Hour), completed: tp(now)},
		seedTask{id: "b", status: "completed", priority: "low", points: 5, createdAt: now.Add(-48 * time.Hour), completed: tp(now)},
		seedTask{id: "c", status: "pending", priority: "high", points: 8, createdAt: now.Add(-72 * time.Hour), due: tp(now.Add(-time.Hour))},
		seedTask{id: "old", status: "pending", priority: "urgent", points: 100, createdAt: now.AddDate(0, 0, -60)},
	)

	stats, err := postgres.NewSource(pool).TaskStats(context.Background(), "u1", 30)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalTasks, "tasks outside the window are excluded")
	assert.Equal(t, []string{"pending", "completed"}, stats.ByStatus.Keys())
	assert.Equal(t, 2, stats.ByStatus.Get("completed"))
	assert.Equal(t, []string{"low", "high"}, stats.ByPriority.Keys())
	assert.Equal(t, 23.0, stats.TotalPoints)
	assert.Equal(t, 15.0, stats.EarnedPoints)
	assert.Equal(t, 1, stats.Overdue)
}

func TestPostgres_TaskStats_UnknownUser(t *testing.T) {
	pool := newPool(t)

	_, err := postgres.NewSource(pool).TaskStats(context.Background(), "ghost", 30)
	var notFound *domain.UserNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestPostgres_Tasks_PagesNewestFirst(t *testing.T) {
	pool := newPool(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedUser(t, pool, "u1", 1, 0, 0,
		seedTask{id: "t1", status: "pending", priority: "low", createdAt: base, tags: []string{"home"}},
		seedTask{id: "t2", status: "completed", priority: "medium", createdAt: base.Add(time.Hour), completed: tp(base.Add(2 * time.Hour))},
		seedTask{id: "t3", status: "pending", priority: "high", createdAt: base.Add(2 * time.Hour)},
	)
	src := postgres.NewSource(pool)
	ctx := context.Background()

	page, err := src.Tasks(ctx, domain.TaskQuery{UserID: "u1", SortBy: "createdAt", SortDesc: true, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Tasks, 2)
	assert.Equal(t, "t3", page.Tasks[0].ID)
	assert.Equal(t, "t2", page.Tasks[1].ID)
	require.NotNil(t, page.Tasks[1].CompletedAt)
	assert.Nil(t, page.Tasks[0].Tags)

	page, err = src.Tasks(ctx, domain.TaskQuery{UserID: "u1", SortBy: "createdAt", SortDesc: true, Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Tasks, 1)
	assert.Equal(t, "t1", page.Tasks[0].ID)
	assert.Equal(t, []string{"home"}, page.Tasks[0].Tags)

	page, err = src.Tasks(ctx, domain.TaskQuery{UserID: "u1", Status: domain.StatusCompleted, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestPostgres_UserStats(t *testing.T) {
	pool := newPool(t)
	now := time.Now().UTC()
	seedUser(t, pool, "u1", 7, 1200, 40,
		seedTask{id: "a", status: "completed", priority: "low", createdAt: now, completed: tp(now)},
		seedTask{id: "b", status: "in_progress", priority: "low", createdAt: now},
		seedTask{id: "c", status: "pending", priority: "low", createdAt: now},
	)
	seedUser(t, pool, "empty", 1, 0, 0)
	src := postgres.NewSource(pool)
	ctx := context.Background()

	st, err := src.UserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 7, st.Level)
	assert.Equal(t, 1200, st.XP)
	assert.Equal(t, domain.TaskCounts{Total: 3, Completed: 1, Pending: 1, InProgress: 1}, st.Tasks)

	st, err = src.UserStats(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, st.Tasks.Total)

	_, err = src.UserStats(ctx, "ghost")
	var notFound *domain.UserNotFoundError
	assert.ErrorAs(t, err, &notFound)

	u, err := src.User(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "User u1", u.Name)
}

func TestPostgres_ActiveUsers(t *testing.T) {
	pool := newPool(t)
	now := time.Now().UTC()
	seedUser(t, pool, "recent", 1, 0, 0, seedTask{id: "r", status: "pending", priority: "low", createdAt: now.Add(-time.Hour)})
	seedUser(t, pool, "older", 1, 0, 0, seedTask{id: "o", status: "pending", priority: "low", createdAt: now.Add(-48 * time.Hour)})
	seedUser(t, pool, "stale", 1, 0, 0, seedTask{id: "s", status: "pending", priority: "low", createdAt: now.AddDate(0, 0, -30)})
	src := postgres.NewSource(pool)
	ctx := context.Background()

	ids, err := src.ActiveUsers(ctx, now.AddDate(0, 0, -7), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "older"}, ids)

	ids, err = src.ActiveUsers(ctx, now.AddDate(0, 0, -7), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent"}, ids)
}
