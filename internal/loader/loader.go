// Package loader fetches, validates and caches the inputs of the analytics
// engine for one user at a time.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

// ErrorPrefix starts every user-visible fetch failure message.
const ErrorPrefix = "Failed to load analytics data: "

// Source is the data-access collaborator: the REST client or the database.
type Source interface {
	TaskStats(ctx context.Context, userID string, windowDays int) (*domain.SummaryStats, error)
	Tasks(ctx context.Context, q domain.TaskQuery) (domain.TaskPage, error)
	UserStats(ctx context.Context, userID string) (*domain.UserStats, error)
}

// ProfileSource is implemented by sources that also hold user profiles. The
// loader then fills the snapshot's name and avatar from it, so background
// refreshes that only know a user id still produce a complete profile.
type ProfileSource interface {
	User(ctx context.Context, userID string) (*domain.User, error)
}

// Cache stores the last good snapshot per user.
type Cache interface {
	Get(ctx context.Context, userID string) (*domain.Snapshot, error)
	Put(ctx context.Context, snap *domain.Snapshot) error
	Delete(ctx context.Context, userID string) error
}

// Identity is the authentication context of a request.
type Identity struct {
	User    *domain.User
	Loading bool
}

// State tells the caller whether analytics can be computed.
type State string

const (
	StateReady       State = "ready"
	StateSignedOut   State = "signed_out"
	StateAuthPending State = "auth_pending"
)

// Result is the outcome of Load.
type Result struct {
	State    State
	Snapshot *domain.Snapshot
	// Fresh is set when Snapshot was fetched by this call.
	Fresh bool
	// Superseded is set when this call's fetch finished after a newer one
	// started for the same user; its data was discarded.
	Superseded bool
	// Error is the user-visible message of a failed fetch. Snapshot, when
	// non-nil, then holds the previous good data.
	Error string
}

// Options tune fetching.
type Options struct {
	StatsWindowDays int
	TaskLimit       int
	FetchTimeout    time.Duration
	// MaxAge is how long a cached snapshot is served without refetching.
	MaxAge time.Duration
}

// DefaultOptions mirror what the dashboard requests: 30 days of stats and the
// 100 most recently created tasks.
func DefaultOptions() Options {
	return Options{
		StatsWindowDays: 30,
		TaskLimit:       100,
		FetchTimeout:    15 * time.Second,
		MaxAge:          5 * time.Minute,
	}
}

// Loader coordinates fetches. Safe for concurrent use.
type Loader struct {
	source Source
	cache  Cache
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time

	profiles ProfileSource

	mu     sync.Mutex
	seq    uint64
	latest map[string]uint64
}

// New creates a Loader.
func New(source Source, cache Cache, opts Options, logger *slog.Logger) *Loader {
	def := DefaultOptions()
	if opts.StatsWindowDays <= 0 {
		opts.StatsWindowDays = def.StatsWindowDays
	}
	if opts.TaskLimit <= 0 {
		opts.TaskLimit = def.TaskLimit
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	l := &Loader{
		source: source,
		cache:  cache,
		opts:   opts,
		logger: logger,
		tracer: telemetry.Tracer("loader"),
		now:    time.Now,
		latest: make(map[string]uint64),
	}
	if ps, ok := source.(ProfileSource); ok {
		l.profiles = ps
	}
	return l
}

// Load returns the snapshot for the identity. A cached snapshot younger than
// MaxAge is returned as is unless force is set.
//
// A signed-out or still-authenticating identity yields a Result without a
// snapshot and no error. A failed fetch returns the previous snapshot with
// Result.Error set; the error is returned only when there is nothing to show.
func (l *Loader) Load(ctx context.Context, id Identity, force bool) (Result, error) {
	if id.Loading {
		return Result{State: StateAuthPending}, nil
	}
	userID, ok := domain.ValidUserID(id.User)
	if !ok {
		return Result{State: StateSignedOut}, nil
	}
	user := *id.User
	user.ID = userID

	if !force && l.opts.MaxAge > 0 {
		if snap := l.cached(ctx, userID); snap != nil && l.now().Sub(snap.FetchedAt) < l.opts.MaxAge {
			overlayProfile(&snap.User, user)
			return Result{State: StateReady, Snapshot: snap, Error: snap.Error}, nil
		}
	}
	return l.refresh(ctx, user)
}

// Refresh fetches unconditionally, for background refreshers.
func (l *Loader) Refresh(ctx context.Context, user domain.User) (Result, error) {
	return l.Load(ctx, Identity{User: &user}, true)
}

func (l *Loader) refresh(ctx context.Context, user domain.User) (Result, error) {
	gen := l.begin(user.ID)
	start := l.now()
	snap, fetchErr := l.fetch(ctx, user)
	telemetry.LoaderFetchDurationSeconds.Observe(l.now().Sub(start).Seconds())
	current := l.finish(user.ID, gen)

	if !current {
		telemetry.LoaderFetchesTotal.WithLabelValues("stale").Inc()
		l.logger.Info("discarding superseded fetch", slog.String("user_id", user.ID))
		res := Result{State: StateReady, Superseded: true, Snapshot: l.cached(ctx, user.ID)}
		if res.Snapshot != nil {
			res.Error = res.Snapshot.Error
		}
		return res, nil
	}

	if fetchErr != nil {
		telemetry.LoaderFetchesTotal.WithLabelValues("error").Inc()
		msg := ErrorPrefix + fetchErr.Error()
		l.logger.Error("analytics fetch failed",
			slog.String("user_id", user.ID),
			slog.String("error", fetchErr.Error()),
		)

		// A user the source no longer knows must not keep serving old data.
		var nf *domain.UserNotFoundError
		if errors.As(fetchErr, &nf) {
			l.evict(ctx, user.ID)
			return Result{State: StateReady, Error: msg}, fmt.Errorf("load analytics for %s: %w", user.ID, fetchErr)
		}

		prev := l.cached(ctx, user.ID)
		if prev == nil {
			return Result{State: StateReady, Error: msg}, fmt.Errorf("load analytics for %s: %w", user.ID, fetchErr)
		}
		failedAt := l.now()
		prev.Error = msg
		prev.FailedAt = &failedAt
		l.store(ctx, prev)
		return Result{State: StateReady, Snapshot: prev, Error: msg}, nil
	}

	telemetry.LoaderFetchesTotal.WithLabelValues("ok").Inc()
	l.store(ctx, snap)
	return Result{State: StateReady, Snapshot: snap, Fresh: true}, nil
}

// fetch pulls the three inputs concurrently.
func (l *Loader) fetch(ctx context.Context, user domain.User) (*domain.Snapshot, error) {
	ctx, span := l.tracer.Start(ctx, "loader.fetch", trace.WithAttributes(attribute.String("lvl.user_id", user.ID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.opts.FetchTimeout)
	defer cancel()

	snap := &domain.Snapshot{UserID: user.ID, User: user}
	var page domain.TaskPage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Stats, err = l.source.TaskStats(gctx, user.ID, l.opts.StatsWindowDays)
		return err
	})
	g.Go(func() error {
		var err error
		snap.UserStats, err = l.source.UserStats(gctx, user.ID)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = l.source.Tasks(gctx, domain.TaskQuery{
			UserID:   user.ID,
			SortBy:   "createdAt",
			SortDesc: true,
			Page:     1,
			PageSize: l.opts.TaskLimit,
		})
		return err
	})
	var profile *domain.User
	if l.profiles != nil {
		g.Go(func() error {
			p, err := l.profiles.User(gctx, user.ID)
			var nf *domain.UserNotFoundError
			switch {
			case errors.As(err, &nf):
				return err
			case err != nil:
				l.logger.Warn("profile lookup failed",
					slog.String("user_id", user.ID),
					slog.String("error", err.Error()),
				)
			default:
				profile = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	tasks, rejected := domain.SanitizeTasks(page.Tasks)
	if len(rejected) > 0 {
		telemetry.LoaderRecordsRejected.Add(float64(len(rejected)))
		l.logger.Warn("dropped malformed task records",
			slog.String("user_id", user.ID),
			slog.Int("count", len(rejected)),
			slog.String("first", rejected[0].Error()),
		)
	}
	if profile != nil {
		snap.User = domain.User{ID: user.ID, Name: profile.Name, Avatar: profile.Avatar}
		overlayProfile(&snap.User, user)
	}
	snap.Tasks = tasks
	snap.FetchedAt = l.now()
	span.SetAttributes(attribute.Int("lvl.tasks", len(tasks)))
	return snap, nil
}

func (l *Loader) cached(ctx context.Context, userID string) *domain.Snapshot {
	snap, err := l.cache.Get(ctx, userID)
	if err != nil {
		var nf *domain.SnapshotNotFoundError
		if errors.As(err, &nf) {
			telemetry.CacheLookupsTotal.WithLabelValues("miss").Inc()
			return nil
		}
		telemetry.CacheLookupsTotal.WithLabelValues("error").Inc()
		l.logger.Warn("snapshot cache read failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	telemetry.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return snap
}

func (l *Loader) store(ctx context.Context, snap *domain.Snapshot) {
	if err := l.cache.Put(ctx, snap); err != nil {
		l.logger.Warn("snapshot cache write failed",
			slog.String("user_id", snap.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (l *Loader) evict(ctx context.Context, userID string) {
	if err := l.cache.Delete(ctx, userID); err != nil {
		l.logger.Warn("snapshot cache delete failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// overlayProfile copies the caller's non-empty profile fields over dst.
func overlayProfile(dst *domain.User, src domain.User) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Avatar != "" {
		dst.Avatar = src.Avatar
	}
}

// begin registers a new fetch generation for userID.
func (l *Loader) begin(userID string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.latest[userID] = l.seq
	return l.seq
}

// finish reports whether gen is still the newest fetch for userID and forgets
// the user once its newest fetch is done.
func (l *Loader) finish(userID string, gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.latest[userID] != gen {
		return false
	}
	delete(l.latest, userID)
	return true
}
