package monitor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/cave.view/internal/monitoring"
	"github.com/banshee-data/cave.view/internal/timeutil"
)

// HealthService is the gRPC service name reported alongside the overall
// ("") status.
const HealthService = "cave.view.Viewpoint"

// Health publishes the pipeline's liveness over the standard gRPC health
// protocol: SERVING while frames flow, NOT_SERVING otherwise.
type Health struct {
	srv     *health.Server
	healthy func() bool
	last    healthpb.HealthCheckResponse_ServingStatus
}

// NewHealth returns a Health polling healthy. It reports NOT_SERVING until
// the first Update.
func NewHealth(healthy func() bool) *Health {
	h := &Health{srv: health.NewServer(), healthy: healthy, last: healthpb.HealthCheckResponse_NOT_SERVING}
	h.set(h.last)
	return h
}

// Register adds the health service to s.
func (h *Health) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, h.srv)
}

func (h *Health) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.srv.SetServingStatus("", status)
	h.srv.SetServingStatus(HealthService, status)
}

// Update polls the pipeline and publishes the result. It must not be
// called concurrently with itself or Run.
func (h *Health) Update() healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.healthy() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	if status != h.last {
		monitoring.Opsf("monitor: health %s -> %s", h.last, status)
		h.last = status
	}
	h.set(status)
	return status
}

// Run updates on every tick until ctx is done, then marks every service
// NOT_SERVING.
func (h *Health) Run(ctx context.Context, ticker timeutil.Ticker) error {
	defer ticker.Stop()
	h.Update()
	for {
		select {
		case <-ctx.Done():
			h.srv.Shutdown()
			return ctx.Err()
		case <-ticker.C():
			h.Update()
		}
	}
}
