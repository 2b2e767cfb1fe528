package telemetry_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Prajanya-g/lvl.ai/pkg/telemetry"
)

func TestReadyHandler(t *testing.T) {
	ok := telemetry.ReadyCheck{Name: "redis", Check: func(context.Context) error { return nil }}
	down := telemetry.ReadyCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }}

	rec := httptest.NewRecorder()
	telemetry.ReadyHandler(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	telemetry.ReadyHandler(ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
	assert.NotContains(t, rec.Body.String(), `"redis"`)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, "AlwaysOnSampler", telemetry.Sampler(0).Description())
	assert.Equal(t, "AlwaysOnSampler", telemetry.Sampler(1).Description())
	assert.Contains(t, telemetry.Sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestInitTracer_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := telemetry.InitTracer(context.Background(), telemetry.TracingConfig{Service: "test"})
	assert.NoError(t, err)
	shutdown()
}
