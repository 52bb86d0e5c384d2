package distributed

import (
	"context"
	"os"
	"testing"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/pkg/circuitbreaker"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testChange() domain.AdaptationChange {
	return domain.AdaptationChange{
		SenderID: "video-1",
		Previous: domain.NewAdaptationState(domain.OutboundStreamStats{FrameWidth: 1280, FrameHeight: 720}),
		Current: domain.NewAdaptationState(domain.OutboundStreamStats{
			FrameWidth:                 640,
			FrameHeight:                360,
			QualityLimitationReason:    "cpu",
			QualityLimitationDurations: map[string]float64{"cpu": 3, "bandwidth": 12.5},
		}),
		ObservedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEventBus_EncodeDecode(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	local := NewEventBus(nil, "instance-a", "sendctl:test", logger)
	remote := NewEventBus(nil, "instance-b", "sendctl:test", logger)

	data, err := local.encode(testChange())
	require.NoError(t, err)

	_, ok, err := local.decode(data)
	require.NoError(t, err)
	assert.False(t, ok, "own events are skipped")

	got, ok, err := remote.decode(data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.SenderID("video-1"), got.SenderID)
	assert.Equal(t, uint32(640), got.Current.FrameWidth)
	assert.Equal(t, domain.QualityLimitationCPU, got.Current.QualityLimitationReason)
	assert.True(t, got.ObservedAt.Equal(testChange().ObservedAt))
	assert.Equal(t, map[domain.QualityLimitationReason]float64{
		domain.QualityLimitationCPU:       3,
		domain.QualityLimitationBandwidth: 12.5,
	}, got.Current.QualityLimitationDurations())
	assert.Empty(t, got.Previous.QualityLimitationDurations())
}

func TestEventBus_DecodeRejects(t *testing.T) {
	bus := NewEventBus(nil, "instance-a", "sendctl:test", zaptest.NewLogger(t).Sugar())

	_, _, err := bus.decode([]byte("not json"))
	assert.Error(t, err)

	_, ok, err := bus.decode([]byte(`{"type":"something.else","instance_id":"instance-b"}`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = bus.decode([]byte(`{"type":"adaptation.changed","instance_id":"instance-b"}`))
	require.NoError(t, err)
	assert.False(t, ok, "missing change payload")
}

func TestEventBus_Redis(t *testing.T) {
	addr := os.Getenv("SENDCTL_TEST_REDIS")
	if addr == "" {
		t.Skip("SENDCTL_TEST_REDIS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	logger := zaptest.NewLogger(t).Sugar()
	channel := "sendctl:test:" + uuid.NewString()
	publisher := NewEventBus(client, "instance-a", channel, logger)
	subscriber := NewEventBus(client, "instance-b", channel, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan domain.AdaptationChange, 1)
	go func() {
		_ = subscriber.Subscribe(ctx, func(change domain.AdaptationChange) {
			received <- change
		})
	}()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, channel).Result()
		return err == nil && n[channel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, publisher.Publish(ctx, testChange()))

	select {
	case change := <-received:
		assert.Equal(t, domain.SenderID("video-1"), change.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("change not delivered")
	}
}

func TestEventBus_PublishFailsFastWhenRedisIsDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	bus := NewEventBus(client, "instance-a", "sendctl:test", zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := bus.Publish(ctx, testChange())
		require.Error(t, err)
		assert.NotErrorIs(t, err, circuitbreaker.ErrOpen)
	}

	err := bus.Publish(ctx, testChange())
	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
}
