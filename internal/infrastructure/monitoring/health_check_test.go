package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestHealthChecker_CheckAll(t *testing.T) {
	h := NewHealthChecker(zaptest.NewLogger(t).Sugar())
	h.AddCheck("ok", func(context.Context) (bool, error) { return true, nil }, time.Second, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["ok"])
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck("broken", func(context.Context) (bool, error) { return false, errors.New("down") }, time.Second, time.Second)
	h.AddCheck("false", func(context.Context) (bool, error) { return false, nil }, time.Second, time.Second)

	status = h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "down", status.Checks["broken"])
	assert.Equal(t, "check failed", status.Checks["false"])
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_TimeoutReachesCheck(t *testing.T) {
	h := NewHealthChecker(zaptest.NewLogger(t).Sugar())
	h.AddCheck("slow", func(ctx context.Context) (bool, error) {
		<-ctx.Done()
		return false, ctx.Err()
	}, time.Second, 10*time.Millisecond)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Contains(t, status.Checks["slow"], "deadline")
}

type engineState bool

func (e engineState) Initialized() bool { return bool(e) }

func TestHealthChecker_EngineCheck(t *testing.T) {
	h := NewHealthChecker(zaptest.NewLogger(t).Sugar())
	h.AddEngineCheck(engineState(true), time.Second, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	h = NewHealthChecker(zaptest.NewLogger(t).Sugar())
	h.AddEngineCheck(engineState(false), time.Second, time.Second)
	status := h.GetReadinessStatus(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "media engine not initialized", status.Checks["engine"])
}

func TestHealthChecker_RedisCheckUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	h := NewHealthChecker(zaptest.NewLogger(t).Sugar())
	h.AddRedisCheck(client, time.Second, time.Second)

	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.NotEqual(t, "healthy", status.Checks["redis"])
}
