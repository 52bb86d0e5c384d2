package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client *redis.Client, interval, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}, interval, timeout)
}

// EngineState is the part of the engine the health check looks at.
type EngineState interface {
	Initialized() bool
}

// AddEngineCheck reports unhealthy while the media engine is not initialized.
func (h *HealthChecker) AddEngineCheck(engine EngineState, interval, timeout time.Duration) {
	h.AddCheck("engine", func(ctx context.Context) (bool, error) {
		if !engine.Initialized() {
			return false, fmt.Errorf("media engine not initialized")
		}
		return true, nil
	}, interval, timeout)
}

// GetReadinessStatus returns readiness status for load balancer
func (h *HealthChecker) GetReadinessStatus(ctx context.Context) HealthStatus {
	return h.CheckAll(ctx)
}

// IsReady checks if the service is ready to accept traffic
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	status := h.CheckAll(ctx)
	return status.Status == "healthy"
}
