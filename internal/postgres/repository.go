package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/pkg/retry"
)

var pingPolicy = retry.Policy{Attempts: 5, BaseDelay: 200 * time.Millisecond, MaxDelay: 2 * time.Second}

// Source serves the three analytics reads straight from the task database.
type Source struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewSource wraps a pgxpool.
func NewSource(pool *pgxpool.Pool) *Source {
	return &Source{pool: pool, now: time.Now}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	// The database container often comes up after the services.
	if err := retry.Do(ctx, pingPolicy, pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

// Ping reports database reachability.
func (s *Source) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Source) userExists(ctx context.Context, userID string) error {
	var ok bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&ok); err != nil {
		return fmt.Errorf("lookup user %s: %w", userID, err)
	}
	if !ok {
		return &domain.UserNotFoundError{UserID: userID}
	}
	return nil
}

// TaskStats summarises tasks created in the last windowDays days.
func (s *Source) TaskStats(ctx context.Context, userID string, windowDays int) (*domain.SummaryStats, error) {
	if err := s.userExists(ctx, userID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	since := now.AddDate(0, 0, -windowDays)
	rows, err := s.pool.Query(ctx, `
		SELECT status,
		       priority,
		       count(*),
		       coalesce(sum(points), 0),
		       coalesce(sum(points) FILTER (WHERE status = 'completed'), 0),
		       count(*) FILTER (WHERE due_date < $3 AND status <> 'completed')
		FROM tasks
		WHERE user_id = $1 AND created_at >= $2
		GROUP BY status, priority
	`, userID, since, now)
	if err != nil {
		return nil, fmt.Errorf("task stats for %s: %w", userID, err)
	}
	defer rows.Close()

	var groups []statsGroup
	for rows.Next() {
		var g statsGroup
		if err := rows.Scan(&g.status, &g.priority, &g.count, &g.points, &g.earned, &g.overdue); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task stats rows: %w", err)
	}

	stats := summarize(groups)
	return &stats, nil
}

// statsGroup is one (status, priority) aggregate row.
type statsGroup struct {
	status   string
	priority string
	count    int
	points   float64
	earned   float64
	overdue  int
}

func summarize(groups []statsGroup) domain.SummaryStats {
	byStatus := map[string]int{}
	byPriority := map[string]int{}
	var s domain.SummaryStats
	for _, g := range groups {
		s.TotalTasks += g.count
		s.TotalPoints += g.points
		s.EarnedPoints += g.earned
		s.Overdue += g.overdue
		byStatus[g.status] += g.count
		byPriority[g.priority] += g.count
	}
	s.ByStatus = domain.NewCounts(byStatus, domain.StatusOrder)
	s.ByPriority = domain.NewCounts(byPriority, domain.PriorityOrder)
	return s
}

var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"completedAt": "completed_at",
	"dueDate":     "due_date",
	"points":      "points",
	"title":       "title",
}

// orderBy maps an API sort field to a whitelisted SQL ORDER BY clause.
func orderBy(field string, desc bool) string {
	col, ok := sortColumns[field]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("%s %s NULLS LAST, id %s", col, dir, dir)
}

// Tasks returns one page of a user's tasks.
func (s *Source) Tasks(ctx context.Context, q domain.TaskQuery) (domain.TaskPage, error) {
	page := max(q.Page, 1)
	size := max(q.PageSize, 1)

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM tasks WHERE user_id = $1 AND ($2 = '' OR status = $2)
	`, q.UserID, string(q.Status)).Scan(&total); err != nil {
		return domain.TaskPage{}, fmt.Errorf("count tasks for %s: %w", q.UserID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, title, status, priority, points, tags, created_at, completed_at, due_date
		FROM tasks
		WHERE user_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY `+orderBy(q.SortBy, q.SortDesc)+`
		LIMIT $3 OFFSET $4
	`, q.UserID, string(q.Status), size, (page-1)*size)
	if err != nil {
		return domain.TaskPage{}, fmt.Errorf("list tasks for %s: %w", q.UserID, err)
	}
	defer rows.Close()

	out := domain.TaskPage{Page: page, Total: total, Tasks: []domain.TaskRecord{}}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return domain.TaskPage{}, err
		}
		out.Tasks = append(out.Tasks, t)
	}
	return out, rows.Err()
}

// UserStats joins the user's gamification row with live task counts.
func (s *Source) UserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	var st domain.UserStats
	err := s.pool.QueryRow(ctx, `
		SELECT u.level, u.xp, u.total_tasks_completed,
		       count(t.id),
		       count(t.id) FILTER (WHERE t.status = 'completed'),
		       count(t.id) FILTER (WHERE t.status = 'pending'),
		       count(t.id) FILTER (WHERE t.status = 'in_progress')
		FROM users u
		LEFT JOIN tasks t ON t.user_id = u.id
		WHERE u.id = $1
		GROUP BY u.id
	`, userID).Scan(
		&st.Level, &st.XP, &st.TotalTasksCompleted,
		&st.Tasks.Total, &st.Tasks.Completed, &st.Tasks.Pending, &st.Tasks.InProgress,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.UserNotFoundError{UserID: userID}
		}
		return nil, fmt.Errorf("user stats for %s: %w", userID, err)
	}
	return &st, nil
}

// User loads the profile row.
func (s *Source) User(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `SELECT id, name, avatar FROM users WHERE id = $1`, userID).
		Scan(&u.ID, &u.Name, &u.Avatar)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &domain.UserNotFoundError{UserID: userID}
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return &u, nil
}

// ActiveUsers lists users with task changes since the given instant, most
// recent first. limit <= 0 means no limit.
func (s *Source) ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id
		FROM tasks
		WHERE updated_at >= $1
		GROUP BY user_id
		ORDER BY max(updated_at) DESC
		LIMIT $2
	`, since, lim)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanTask reads a task row from any pgx row type.
func scanTask(row interface {
	Scan(...any) error
}) (domain.TaskRecord, error) {
	var t domain.TaskRecord
	var status, priority string
	err := row.Scan(
		&t.ID, &t.Title, &status, &priority, &t.Points, &t.Tags,
		&t.CreatedAt, &t.CompletedAt, &t.DueDate,
	)
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("scan task: %w", err)
	}
	t.Status = domain.Status(status)
	t.Priority = domain.Priority(priority)
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	return t, nil
}
