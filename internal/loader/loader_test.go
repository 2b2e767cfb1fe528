package loader_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
)

// fakeSource is a hand-written Source. Each TaskStats call reports its call
// number as TotalTasks so tests can tell fetches apart.
type fakeSource struct {
	calls   atomic.Int32
	err     error
	tasks   []domain.TaskRecord
	gate    chan struct{} // when set, the first TaskStats call blocks on it
	entered chan struct{}
	once    sync.Once
}

func (f *fakeSource) TaskStats(ctx context.Context, _ string, _ int) (*domain.SummaryStats, error) {
	n := f.calls.Add(1)
	if f.gate != nil && n == 1 {
		f.once.Do(func() { close(f.entered) })
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.SummaryStats{TotalTasks: int(n)}, nil
}

func (f *fakeSource) Tasks(_ context.Context, q domain.TaskQuery) (domain.TaskPage, error) {
	if q.PageSize != 100 || !q.SortDesc || q.SortBy != "createdAt" {
		return domain.TaskPage{}, errors.New("unexpected task query")
	}
	return domain.TaskPage{Tasks: f.tasks, Page: 1, Total: len(f.tasks)}, nil
}

func (f *fakeSource) UserStats(_ context.Context, _ string) (*domain.UserStats, error) {
	return &domain.UserStats{Level: 2, XP: 150}, nil
}

func newLoader(src loader.Source, cache loader.Cache) *loader.Loader {
	return loader.New(src, cache, loader.DefaultOptions(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func user(id string) loader.Identity {
	return loader.Identity{User: &domain.User{ID: id, Name: "Sam"}}
}

func TestLoad_AuthStates(t *testing.T) {
	src := &fakeSource{}
	l := newLoader(src, loader.NewMemoryCache())

	res, err := l.Load(context.Background(), loader.Identity{Loading: true}, false)
	require.NoError(t, err)
	assert.Equal(t, loader.StateAuthPending, res.State)
	assert.Nil(t, res.Snapshot)

	for _, id := range []loader.Identity{{}, {User: &domain.User{ID: "  "}}} {
		res, err = l.Load(context.Background(), id, false)
		require.NoError(t, err)
		assert.Equal(t, loader.StateSignedOut, res.State)
		assert.Nil(t, res.Snapshot)
		assert.Empty(t, res.Error)
	}
	assert.Zero(t, src.calls.Load(), "no fetch without a user")
}

func TestLoad_FetchesAndCaches(t *testing.T) {
	src := &fakeSource{tasks: []domain.TaskRecord{
		{ID: "t1", CreatedAt: time.Now()},
		{ID: "", CreatedAt: time.Now()},
		{ID: "t3"},
	}}
	cache := loader.NewMemoryCache()
	l := newLoader(src, cache)

	res, err := l.Load(context.Background(), user("u1"), false)
	require.NoError(t, err)
	assert.Equal(t, loader.StateReady, res.State)
	assert.True(t, res.Fresh)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, "u1", res.Snapshot.UserID)
	assert.Equal(t, "Sam", res.Snapshot.User.Name)
	assert.Len(t, res.Snapshot.Tasks, 1, "malformed records dropped at the edge")
	assert.Equal(t, 2, res.Snapshot.UserStats.Level)

	res, err = l.Load(context.Background(), user("u1"), false)
	require.NoError(t, err)
	assert.False(t, res.Fresh, "second load served from cache")
	assert.Equal(t, int32(1), src.calls.Load())

	res, err = l.Load(context.Background(), user("u1"), true)
	require.NoError(t, err)
	assert.True(t, res.Fresh)
	assert.Equal(t, 2, res.Snapshot.Stats.TotalTasks)
}

func TestLoad_CachedSnapshotTakesCallerProfile(t *testing.T) {
	src := &fakeSource{}
	l := newLoader(src, loader.NewMemoryCache())

	// background refreshes only know the user id
	_, err := l.Refresh(context.Background(), domain.User{ID: "u1"})
	require.NoError(t, err)

	res, err := l.Load(context.Background(), loader.Identity{User: &domain.User{ID: "u1", Name: "Sam", Avatar: "a.png"}}, false)
	require.NoError(t, err)
	assert.False(t, res.Fresh)
	assert.Equal(t, "Sam", res.Snapshot.User.Name)
	assert.Equal(t, "a.png", res.Snapshot.User.Avatar)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestLoad_FailureKeepsPreviousSnapshot(t *testing.T) {
	src := &fakeSource{}
	cache := loader.NewMemoryCache()
	l := newLoader(src, cache)

	_, err := l.Load(context.Background(), user("u1"), false)
	require.NoError(t, err)

	src.err = errors.New("connection refused")
	res, err := l.Load(context.Background(), user("u1"), true)
	require.NoError(t, err)
	assert.Equal(t, "Failed to load analytics data: connection refused", res.Error)
	require.NotNil(t, res.Snapshot)
	assert.Equal(t, 1, res.Snapshot.Stats.TotalTasks, "previous data retained")
	assert.NotNil(t, res.Snapshot.FailedAt)

	cached, err := cache.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, res.Error, cached.Error)
}

func TestLoad_FailureWithoutPreviousSnapshot(t *testing.T) {
	src := &fakeSource{err: &domain.UpstreamError{Op: "task_stats", StatusCode: 502}}
	l := newLoader(src, loader.NewMemoryCache())

	res, err := l.Load(context.Background(), user("u1"), false)
	require.Error(t, err)
	var ue *domain.UpstreamError
	assert.ErrorAs(t, err, &ue)
	assert.Nil(t, res.Snapshot)
	assert.Contains(t, res.Error, loader.ErrorPrefix)
}

func TestLoad_DiscardsSupersededFetch(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), entered: make(chan struct{})}
	cache := loader.NewMemoryCache()
	l := newLoader(src, cache)

	type outcome struct {
		res loader.Result
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := l.Load(context.Background(), user("u1"), true)
		first <- outcome{res, err}
	}()
	<-src.entered

	second, err := l.Load(context.Background(), user("u1"), true)
	require.NoError(t, err)
	assert.True(t, second.Fresh)
	assert.Equal(t, 2, second.Snapshot.Stats.TotalTasks)

	close(src.gate)
	got := <-first
	require.NoError(t, got.err)
	assert.True(t, got.res.Superseded)
	assert.False(t, got.res.Fresh)
	require.NotNil(t, got.res.Snapshot)
	assert.Equal(t, 2, got.res.Snapshot.Stats.TotalTasks, "newer data wins")

	cached, err := cache.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, cached.Stats.TotalTasks, "superseded result never cached")
}

// profileSource also serves user profiles, as the Postgres source does.
type profileSource struct {
	fakeSource
	profiles   map[string]domain.User
	profileErr error
}

func (p *profileSource) User(_ context.Context, userID string) (*domain.User, error) {
	if p.profileErr != nil {
		return nil, p.profileErr
	}
	u, ok := p.profiles[userID]
	if !ok {
		return nil, &domain.UserNotFoundError{UserID: userID}
	}
	return &u, nil
}

func TestRefresh_FillsProfileFromSource(t *testing.T) {
	src := &profileSource{profiles: map[string]domain.User{
		"u1": {ID: "u1", Name: "Samira", Avatar: "https://cdn.lvl.ai/u1.png"},
	}}
	l := newLoader(src, loader.NewMemoryCache())

	res, err := l.Refresh(context.Background(), domain.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, domain.User{ID: "u1", Name: "Samira", Avatar: "https://cdn.lvl.ai/u1.png"}, res.Snapshot.User)

	// The caller's own name wins; the stored avatar is kept.
	res, err = l.Load(context.Background(), user("u1"), true)
	require.NoError(t, err)
	assert.Equal(t, "Sam", res.Snapshot.User.Name)
	assert.Equal(t, "https://cdn.lvl.ai/u1.png", res.Snapshot.User.Avatar)
}

func TestRefresh_ProfileLookupFailureIsNotFatal(t *testing.T) {
	src := &profileSource{profileErr: errors.New("statement timeout")}
	l := newLoader(src, loader.NewMemoryCache())

	res, err := l.Load(context.Background(), user("u1"), false)
	require.NoError(t, err)
	assert.True(t, res.Fresh)
	assert.Equal(t, "Sam", res.Snapshot.User.Name)
	assert.Empty(t, res.Snapshot.User.Avatar)
}

func TestLoad_UnknownUserEvictsSnapshot(t *testing.T) {
	src := &fakeSource{}
	cache := loader.NewMemoryCache()
	l := newLoader(src, cache)

	_, err := l.Load(context.Background(), user("u1"), false)
	require.NoError(t, err)

	src.err = &domain.UserNotFoundError{UserID: "u1"}
	res, err := l.Load(context.Background(), user("u1"), true)
	var nf *domain.UserNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Nil(t, res.Snapshot, "no stale data for a deleted user")
	assert.Contains(t, res.Error, loader.ErrorPrefix)

	_, err = cache.Get(context.Background(), "u1")
	var miss *domain.SnapshotNotFoundError
	assert.ErrorAs(t, err, &miss)
}

func TestMemoryCache(t *testing.T) {
	c := loader.NewMemoryCache()
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	var nf *domain.SnapshotNotFoundError
	require.ErrorAs(t, err, &nf)

	require.NoError(t, c.Put(ctx, &domain.Snapshot{UserID: "u1", Error: "x"}))
	snap, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	snap.Error = "mutated"

	again, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Error, "callers get copies")

	require.NoError(t, c.Delete(ctx, "u1"))
	_, err = c.Get(ctx, "u1")
	assert.Error(t, err)
}
