package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Prajanya-g/lvl.ai/internal/analytics"
	"github.com/Prajanya-g/lvl.ai/internal/domain"
	"github.com/Prajanya-g/lvl.ai/internal/loader"
	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
	"github.com/Prajanya-g/lvl.ai/services/analytics-api/middleware"
)

const (
	msgSignedOut   = "Please log in to view analytics"
	msgAuthPending = "Authentication in progress"
)

// SnapshotLoader is the loader surface used by the handlers.
type SnapshotLoader interface {
	Load(ctx context.Context, id loader.Identity, force bool) (loader.Result, error)
}

// REST serves the analytics engine over HTTP.
type REST struct {
	loader   SnapshotLoader
	fallback analytics.FallbackPolicy
	ready    http.Handler
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewREST creates a new REST handler. checks back /readyz.
func NewREST(l SnapshotLoader, fallback analytics.FallbackPolicy, logger *slog.Logger, checks ...telemetry.ReadyCheck) *REST {
	return &REST{
		loader:   l,
		fallback: fallback,
		ready:    telemetry.ReadyHandler(checks...),
		logger:   logger,
		tracer:   telemetry.Tracer("analytics-api"),
		now:      time.Now,
	}
}

// Response wraps every analytics payload. Error carries the last refresh
// failure when Data was built from an older snapshot.
type Response struct {
	Data      any       `json:"data"`
	FetchedAt time.Time `json:"fetchedAt"`
	Error     string    `json:"error,omitempty"`
}

// Analytics handles GET /api/v1/analytics.
func (h *REST) Analytics(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "report", forceRefresh(r), func(in analytics.Input, now time.Time) any {
		return analytics.Build(in, now)
	})
}

// Refresh handles POST /api/v1/analytics/refresh.
func (h *REST) Refresh(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "report", true, func(in analytics.Input, now time.Time) any {
		return analytics.Build(in, now)
	})
}

// Dashboard handles GET /api/v1/dashboard.
func (h *REST) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "dashboard", forceRefresh(r), func(in analytics.Input, now time.Time) any {
		return analytics.BuildDashboard(in, now)
	})
}

// PlayerCard handles GET /api/v1/player-card.
func (h *REST) PlayerCard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "player_card", forceRefresh(r), func(in analytics.Input, _ time.Time) any {
		return analytics.BuildPlayerCard(in.User, in.UserStats, in.Stats, h.fallback)
	})
}

func (h *REST) serve(w http.ResponseWriter, r *http.Request, kind string, force bool, build func(analytics.Input, time.Time) any) {
	ctx, span := h.tracer.Start(r.Context(), "analytics_api."+kind)
	defer span.End()

	res, err := h.loader.Load(ctx, middleware.IdentityFrom(ctx), force)
	switch res.State {
	case loader.StateSignedOut:
		writeError(w, http.StatusUnauthorized, msgSignedOut)
		return
	case loader.StateAuthPending:
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, msgAuthPending)
		return
	}
	if err != nil || res.Snapshot == nil {
		if err == nil {
			err = errors.New(res.Error)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		h.writeLoadError(w, err, res.Error)
		return
	}

	snap := res.Snapshot
	span.SetAttributes(
		attribute.String("lvl.user_id", snap.UserID),
		attribute.Bool("lvl.fresh", res.Fresh),
	)

	now := h.now()
	start := time.Now()
	payload := build(analytics.Input{
		User:      snap.User,
		Stats:     snap.Stats,
		UserStats: snap.UserStats,
		Tasks:     snap.Tasks,
	}, now)
	telemetry.EngineBuildDurationSeconds.Observe(time.Since(start).Seconds())
	telemetry.APIReportsServed.WithLabelValues(kind).Inc()

	writeJSON(w, http.StatusOK, Response{Data: payload, FetchedAt: snap.FetchedAt, Error: res.Error})
}

// writeLoadError maps a failed load with nothing to fall back on.
func (h *REST) writeLoadError(w http.ResponseWriter, err error, msg string) {
	if msg == "" {
		msg = loader.ErrorPrefix + err.Error()
	}
	h.logger.Warn("no snapshot to serve", slog.String("error", err.Error()))

	var notFound *domain.UserNotFoundError
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, msg)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, msg)
	default:
		writeError(w, http.StatusBadGateway, msg)
	}
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Readyz handles GET /readyz: every configured dependency must answer.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	h.ready.ServeHTTP(w, r)
}

func forceRefresh(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
