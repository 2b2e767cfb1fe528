package telemetry

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// UpdateHealth runs checks once and publishes the result on hs. Each check is
// its own health service, and the overall service ("") serves only while
// every check passes. It returns the failing checks like /readyz does.
func UpdateHealth(ctx context.Context, hs *health.Server, checks ...ReadyCheck) map[string]string {
	failed := runChecks(ctx, checks)
	for _, c := range checks {
		hs.SetServingStatus(c.Name, servingStatus(failed[c.Name] == ""))
	}
	hs.SetServingStatus("", servingStatus(len(failed) == 0))
	return failed
}

// WatchHealth keeps hs in step with checks, re-running them every interval.
// When ctx ends every service is marked NOT_SERVING so clients drain before
// the server stops.
func WatchHealth(ctx context.Context, hs *health.Server, interval time.Duration, logger *slog.Logger, checks ...ReadyCheck) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	healthy := true
	for {
		failed := UpdateHealth(ctx, hs, checks...)
		if ok := len(failed) == 0; ok != healthy {
			healthy = ok
			if ok {
				logger.Info("grpc health serving")
			} else {
				logger.Warn("grpc health not serving", slog.Any("failed", failed))
			}
		}

		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
