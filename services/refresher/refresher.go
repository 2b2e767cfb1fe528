// Package refresher keeps per-user analytics snapshots warm. One leader
// instance refreshes recently active users on a cron schedule; every instance
// refreshes users named by task events from Kafka.
package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/kafka"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

// Refresh triggers, used as metric labels and in published events.
const (
	TriggerSchedule = "schedule"
	TriggerEvent    = "event"
)

// SnapshotRefresher fetches a fresh snapshot for one user.
type SnapshotRefresher interface {
	Refresh(ctx context.Context, user domain.User) (loader.Result, error)
}

// Leader is a renewable leadership lease.
type Leader interface {
	AcquireOrRenew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// UserLister returns the users worth refreshing on a scheduled tick.
type UserLister interface {
	ActiveUsers(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// StaticUsers is a fixed user list, for deployments without database access.
type StaticUsers []string

func (s StaticUsers) ActiveUsers(_ context.Context, _ time.Time, limit int) ([]string, error) {
	if limit > 0 && len(s) > limit {
		return s[:limit], nil
	}
	return s, nil
}

// Refresher runs scheduled and event-driven snapshot refreshes.
type Refresher struct {
	loader   SnapshotRefresher
	leader   Leader
	users    UserLister
	schedule cron.Schedule

	consumer kafka.Consumer
	producer kafka.Producer

	workers      int
	activeWindow time.Duration
	maxUsers     int
	leaseRenew   time.Duration
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

// Option configures a Refresher.
type Option func(*Refresher)

func WithWorkers(n int) Option                      { return func(r *Refresher) { r.workers = n } }
func WithActiveWindow(d time.Duration) Option       { return func(r *Refresher) { r.activeWindow = d } }
func WithMaxUsers(n int) Option                     { return func(r *Refresher) { r.maxUsers = n } }
func WithLeaseRenewInterval(d time.Duration) Option { return func(r *Refresher) { r.leaseRenew = d } }
func WithLogger(l *slog.Logger) Option              { return func(r *Refresher) { r.logger = l } }

// WithEvents enables the task-event listener. producer may be nil to skip
// publishing refresh notifications.
func WithEvents(consumer kafka.Consumer, producer kafka.Producer) Option {
	return func(r *Refresher) {
		r.consumer = consumer
		r.producer = producer
	}
}

// ParseSchedule parses a standard five-field cron expression or a descriptor
// such as "@every 5m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return s, nil
}

// NewRefresher constructs a Refresher with the given dependencies and options.
func NewRefresher(l SnapshotRefresher, leader Leader, users UserLister, schedule cron.Schedule, opts ...Option) *Refresher {
	r := &Refresher{
		loader:       l,
		leader:       leader,
		users:        users,
		schedule:     schedule,
		workers:      4,
		activeWindow: 7 * 24 * time.Hour,
		maxUsers:     500,
		leaseRenew:   10 * time.Second,
		logger:       slog.Default(),
		tracer:       telemetry.Tracer("refresher"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers < 1 {
		r.workers = 1
	}
	if r.leaseRenew <= 0 {
		r.leaseRenew = 10 * time.Second
	}
	return r
}

// Run blocks until ctx is cancelled. The event listener, when configured, runs
// alongside the schedule and its failure stops Run.
func (r *Refresher) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if r.consumer != nil {
		g.Go(func() error { return r.consumer.Subscribe(gctx, r.HandleEvent) })
	}
	g.Go(func() error {
		r.runSchedule(gctx)
		return nil
	})
	err := g.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if relErr := r.leader.Release(releaseCtx); relErr != nil {
		r.logger.Warn("leader release failed", slog.String("error", relErr.Error()))
	}
	telemetry.RefresherIsLeader.Set(0)
	return err
}

// runSchedule keeps the lease renewed and fires Tick at each scheduled time.
func (r *Refresher) runSchedule(ctx context.Context) {
	renew := time.NewTicker(r.leaseRenew)
	defer renew.Stop()

	r.isLeader(ctx)
	next := r.schedule.Next(r.now())
	timer := time.NewTimer(next.Sub(r.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-renew.C:
			r.isLeader(ctx)
		case <-timer.C:
			r.Tick(ctx)
			next = r.schedule.Next(r.now())
			timer.Reset(next.Sub(r.now()))
		}
	}
}

func (r *Refresher) isLeader(ctx context.Context) bool {
	ok, err := r.leader.AcquireOrRenew(ctx)
	if err != nil {
		r.logger.Error("leader election", slog.String("error", err.Error()))
		ok = false
	}
	if ok {
		telemetry.RefresherIsLeader.Set(1)
	} else {
		telemetry.RefresherIsLeader.Set(0)
	}
	return ok
}

// Tick refreshes every recently active user if this instance leads. It returns
// the number of users refreshed successfully.
func (r *Refresher) Tick(ctx context.Context) int {
	if !r.isLeader(ctx) {
		return 0
	}
	ctx, span := r.tracer.Start(ctx, "refresher.tick")
	defer span.End()

	ids, err := r.users.ActiveUsers(ctx, r.now().Add(-r.activeWindow), r.maxUsers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list users")
		r.logger.Error("list active users", slog.String("error", err.Error()))
		return 0
	}
	span.SetAttributes(attribute.Int("lvl.users", len(ids)))

	done := r.refreshAll(ctx, ids)
	r.logger.Info("scheduled refresh finished",
		slog.Int("users", len(ids)),
		slog.Int("refreshed", done),
	)
	return done
}

func (r *Refresher) refreshAll(ctx context.Context, ids []string) int {
	var g errgroup.Group
	g.SetLimit(r.workers)
	results := make([]bool, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			results[i] = r.refreshOne(ctx, id, TriggerSchedule)
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range results {
		if ok {
			n++
		}
	}
	return n
}

// HandleEvent is the Kafka HandlerFunc for task events. Malformed events are
// returned as errors wrapping kafka.ErrMalformedEvent so they get committed;
// refresh failures are logged and committed too, the previous snapshot stays.
func (r *Refresher) HandleEvent(ctx context.Context, msg kafka.Message) error {
	ev, err := kafka.DecodeTaskEvent(msg.Value)
	if err != nil {
		telemetry.RefresherEventsTotal.WithLabelValues("malformed").Inc()
		return err
	}
	if !ev.AffectsAnalytics() {
		telemetry.RefresherEventsTotal.WithLabelValues("ignored").Inc()
		return nil
	}
	telemetry.RefresherEventsTotal.WithLabelValues(string(ev.Type)).Inc()

	ctx, span := r.tracer.Start(ctx, "refresher.handle_event")
	defer span.End()
	span.SetAttributes(
		attribute.String("lvl.event_id", ev.EventID),
		attribute.String("lvl.event_type", string(ev.Type)),
	)

	r.refreshOne(ctx, ev.UserID, TriggerEvent)
	return nil
}

func (r *Refresher) refreshOne(ctx context.Context, userID, trigger string) bool {
	log := r.logger.With(slog.String("user_id", userID), slog.String("trigger", trigger))

	res, err := r.loader.Refresh(ctx, domain.User{ID: userID})
	switch {
	case err != nil:
		telemetry.RefresherSnapshotsTotal.WithLabelValues(trigger, "error").Inc()
		log.Warn("snapshot refresh failed", slog.String("error", err.Error()))
		return false
	case res.Superseded:
		telemetry.RefresherSnapshotsTotal.WithLabelValues(trigger, "superseded").Inc()
		log.Debug("snapshot refresh superseded")
		return false
	case !res.Fresh:
		// The loader kept the previous snapshot after a failed fetch.
		telemetry.RefresherSnapshotsTotal.WithLabelValues(trigger, "error").Inc()
		log.Warn("snapshot refresh failed", slog.String("error", res.Error))
		return false
	}

	telemetry.RefresherSnapshotsTotal.WithLabelValues(trigger, "ok").Inc()
	if r.producer != nil {
		ev := kafka.NewRefreshedEvent(userID, res.Snapshot.FetchedAt, trigger)
		if err := kafka.PublishJSON(ctx, r.producer, kafka.TopicAnalyticsRefreshed, userID, ev); err != nil {
			log.Error("publish refreshed event", slog.String("error", err.Error()))
		}
	}
	return true
}
