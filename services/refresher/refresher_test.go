package refresher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/kafka"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
)

// ── mocks ────────────────────────────────────────────────────────────────────

type fakeLoader struct {
	mu      sync.Mutex
	users   []string
	results map[string]loader.Result
	errs    map[string]error
	delay   time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (l *fakeLoader) Refresh(_ context.Context, user domain.User) (loader.Result, error) {
	n := l.inFlight.Add(1)
	defer l.inFlight.Add(-1)
	for {
		p := l.peak.Load()
		if n <= p || l.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(l.delay)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.users = append(l.users, user.ID)
	if err := l.errs[user.ID]; err != nil {
		return loader.Result{State: loader.StateReady, Error: loader.ErrorPrefix + err.Error()}, err
	}
	if res, ok := l.results[user.ID]; ok {
		return res, nil
	}
	return loader.Result{
		State:    loader.StateReady,
		Fresh:    true,
		Snapshot: &domain.Snapshot{UserID: user.ID, FetchedAt: time.Date(2024, 3, 13, 15, 0, 0, 0, time.UTC)},
	}, nil
}

func (l *fakeLoader) refreshed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]string(nil), l.users...)
	sort.Strings(out)
	return out
}

type fakeLeader struct {
	leader   bool
	err      error
	released atomic.Bool
}

func (l *fakeLeader) AcquireOrRenew(context.Context) (bool, error) { return l.leader, l.err }
func (l *fakeLeader) Release(context.Context) error {
	l.released.Store(true)
	return nil
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.RefreshedEvent
	keys []string
}

func (p *fakeProducer) Publish(_ context.Context, topic, key string, value []byte) error {
	if topic != kafka.TopicAnalyticsRefreshed {
		return errors.New("unexpected topic " + topic)
	}
	var ev kafka.RefreshedEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, ev)
	p.keys = append(p.keys, key)
	return nil
}
func (p *fakeProducer) Close() error { return nil }

// fakeConsumer hands its messages to the handler, then waits for shutdown.
type fakeConsumer struct {
	msgs    []kafka.Message
	results []error
	done    chan struct{}
}

func (c *fakeConsumer) Subscribe(ctx context.Context, h kafka.HandlerFunc) error {
	for _, m := range c.msgs {
		c.results = append(c.results, h(ctx, m))
	}
	close(c.done)
	<-ctx.Done()
	return nil
}
func (c *fakeConsumer) Close() error { return nil }

type failingUsers struct{}

func (failingUsers) ActiveUsers(context.Context, time.Time, int) ([]string, error) {
	return nil, errors.New("db down")
}

// ── helpers ───────────────────────────────────────────────────────────────────

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestRefresher(t *testing.T, l *fakeLoader, leader *fakeLeader, users UserLister, opts ...Option) *Refresher {
	t.Helper()
	sched, err := ParseSchedule("@every 1h")
	require.NoError(t, err)
	return NewRefresher(l, leader, users, sched, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

func taskEvent(t *testing.T, typ kafka.TaskEventType, userID string) kafka.Message {
	t.Helper()
	b, err := json.Marshal(kafka.TaskEvent{EventID: "e1", Type: typ, UserID: userID, TaskID: "t1", OccurredAt: time.Now()})
	require.NoError(t, err)
	return kafka.Message{Topic: kafka.TopicTaskEvents, Value: b}
}

// ── tests ─────────────────────────────────────────────────────────────────────

func TestTick_FollowerDoesNothing(t *testing.T) {
	l := &fakeLoader{}
	r := newTestRefresher(t, l, &fakeLeader{leader: false}, StaticUsers{"u1", "u2"})

	assert.Zero(t, r.Tick(context.Background()))
	assert.Empty(t, l.refreshed())
}

func TestTick_LeaderElectionErrorDoesNothing(t *testing.T) {
	l := &fakeLoader{}
	r := newTestRefresher(t, l, &fakeLeader{leader: true, err: errors.New("redis down")}, StaticUsers{"u1"})

	assert.Zero(t, r.Tick(context.Background()))
	assert.Empty(t, l.refreshed())
}

func TestTick_RefreshesActiveUsersWithBoundedWorkers(t *testing.T) {
	l := &fakeLoader{
		delay: 20 * time.Millisecond,
		errs:  map[string]error{"u3": errors.New("upstream 503")},
		results: map[string]loader.Result{
			"u4": {State: loader.StateReady, Superseded: true},
		},
	}
	prod := &fakeProducer{}
	users := StaticUsers{"u1", "u2", "u3", "u4", "u5", "u6"}
	r := newTestRefresher(t, l, &fakeLeader{leader: true}, users,
		WithWorkers(2),
		WithEvents(nil, prod),
	)

	n := r.Tick(context.Background())

	assert.Equal(t, 4, n)
	assert.Equal(t, []string{"u1", "u2", "u3", "u4", "u5", "u6"}, l.refreshed())
	assert.LessOrEqual(t, l.peak.Load(), int32(2))

	sort.Strings(prod.keys)
	assert.Equal(t, []string{"u1", "u2", "u5", "u6"}, prod.keys)
	for _, ev := range prod.msgs {
		assert.Equal(t, TriggerSchedule, ev.Trigger)
		assert.NotEmpty(t, ev.EventID)
	}
}

func TestTick_MaxUsers(t *testing.T) {
	l := &fakeLoader{}
	r := newTestRefresher(t, l, &fakeLeader{leader: true}, StaticUsers{"u1", "u2", "u3"}, WithMaxUsers(2))

	assert.Equal(t, 2, r.Tick(context.Background()))
	assert.Equal(t, []string{"u1", "u2"}, l.refreshed())
}

func TestTick_UserListFailure(t *testing.T) {
	l := &fakeLoader{}
	r := newTestRefresher(t, l, &fakeLeader{leader: true}, failingUsers{})

	assert.Zero(t, r.Tick(context.Background()))
	assert.Empty(t, l.refreshed())
}

func TestHandleEvent(t *testing.T) {
	l := &fakeLoader{}
	prod := &fakeProducer{}
	r := newTestRefresher(t, l, &fakeLeader{}, StaticUsers{}, WithEvents(nil, prod))

	err := r.HandleEvent(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.ErrorIs(t, err, kafka.ErrMalformedEvent)

	require.NoError(t, r.HandleEvent(context.Background(), taskEvent(t, "task.viewed", "u1")))
	assert.Empty(t, l.refreshed(), "unknown event types are ignored")

	require.NoError(t, r.HandleEvent(context.Background(), taskEvent(t, kafka.TaskCompleted, "u2")))
	assert.Equal(t, []string{"u2"}, l.refreshed())
	require.Len(t, prod.msgs, 1)
	assert.Equal(t, TriggerEvent, prod.msgs[0].Trigger)
	assert.Equal(t, "u2", prod.msgs[0].UserID)
}

func TestHandleEvent_RefreshFailureIsCommitted(t *testing.T) {
	l := &fakeLoader{errs: map[string]error{"u1": errors.New("boom")}}
	prod := &fakeProducer{}
	r := newTestRefresher(t, l, &fakeLeader{}, StaticUsers{}, WithEvents(nil, prod))

	assert.NoError(t, r.HandleEvent(context.Background(), taskEvent(t, kafka.TaskCreated, "u1")))
	assert.Empty(t, prod.msgs)
}

func TestRun_ConsumesEventsAndReleasesLease(t *testing.T) {
	l := &fakeLoader{}
	leader := &fakeLeader{leader: true}
	cons := &fakeConsumer{
		msgs: []kafka.Message{
			taskEvent(t, kafka.TaskUpdated, "u7"),
			{Value: []byte(`{"type":"task.created"}`)},
		},
		done: make(chan struct{}),
	}
	r := newTestRefresher(t, l, leader, StaticUsers{}, WithEvents(cons, nil))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()

	select {
	case <-cons.done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer never ran")
	}
	cancel()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Equal(t, []string{"u7"}, l.refreshed())
	require.Len(t, cons.results, 2)
	assert.NoError(t, cons.results[0])
	assert.ErrorIs(t, cons.results[1], kafka.ErrMalformedEvent)
	assert.True(t, leader.released.Load())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("*/5 * * * *")
	require.NoError(t, err)
	from := time.Date(2024, 3, 13, 15, 1, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 13, 15, 5, 0, 0, time.UTC), s.Next(from))

	_, err = ParseSchedule("every now and then")
	assert.Error(t, err)
}

func TestStaticUsers(t *testing.T) {
	u := StaticUsers{"a", "b", "c"}
	got, err := u.ActiveUsers(context.Background(), time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, _ = u.ActiveUsers(context.Background(), time.Time{}, 1)
	assert.Equal(t, []string{"a"}, got)
}
