package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"sendctl/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedSource returns queued snapshots in order, then repeats the last.
type scriptedSource struct {
	mu    sync.Mutex
	queue []domain.OutboundStreamStats
	last  *domain.OutboundStreamStats
}

func (s *scriptedSource) push(stats ...domain.OutboundStreamStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, stats...)
}

func (s *scriptedSource) Latest(_ context.Context, _ domain.SenderID) (domain.OutboundStreamStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.last = &next
	}
	if s.last == nil {
		return domain.OutboundStreamStats{}, domain.ErrNoSnapshot
	}
	return *s.last, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	changes []domain.AdaptationChange
}

func (p *recordingPublisher) Publish(_ context.Context, change domain.AdaptationChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.changes)
}

func TestAdaptationMonitor_ForwardsChanges(t *testing.T) {
	source := &scriptedSource{}
	metrics := &recordingMetrics{}
	publisher := &recordingPublisher{}
	monitor := NewAdaptationMonitor(source, 5*time.Millisecond, metrics, publisher, zaptest.NewLogger(t).Sugar())
	defer monitor.Stop()

	received := make(chan domain.AdaptationChange, 4)
	monitor.Subscribe(func(change domain.AdaptationChange) { received <- change })

	tracker, err := monitor.Watch(context.Background(), "video-1")
	require.NoError(t, err)

	source.push(snapshot(1280, 720, 30, "none"), snapshot(640, 360, 30, "bandwidth"))

	select {
	case change := <-received:
		assert.Equal(t, domain.SenderID("video-1"), change.SenderID)
		assert.Equal(t, uint32(640), change.Current.FrameWidth)
	case <-time.After(2 * time.Second):
		t.Fatal("no adaptation change delivered")
	}

	assert.Eventually(t, func() bool { return publisher.count() == 1 && metrics.changeCount() == 1 },
		time.Second, 5*time.Millisecond)

	state, ok := tracker.LastState()
	require.True(t, ok)
	assert.Equal(t, domain.QualityLimitationBandwidth, state.QualityLimitationReason)
}

func TestAdaptationMonitor_WatchIsIdempotent(t *testing.T) {
	monitor := NewAdaptationMonitor(&scriptedSource{}, time.Hour, nil, nil, zaptest.NewLogger(t).Sugar())
	defer monitor.Stop()

	first, err := monitor.Watch(context.Background(), "a")
	require.NoError(t, err)
	second, err := monitor.Watch(context.Background(), "a")
	require.NoError(t, err)
	assert.Same(t, first, second)

	got, ok := monitor.Tracker("a")
	assert.True(t, ok)
	assert.Same(t, first, got)

	assert.True(t, monitor.Unwatch("a"))
	assert.False(t, monitor.Unwatch("a"))
	_, ok = monitor.Tracker("a")
	assert.False(t, ok)

	_, err = monitor.Watch(context.Background(), "")
	assert.Error(t, err)
}

func TestAdaptationMonitor_Ingest(t *testing.T) {
	monitor := NewAdaptationMonitor(&scriptedSource{}, time.Hour, nil, nil, zaptest.NewLogger(t).Sugar())
	defer monitor.Stop()

	_, err := monitor.Ingest("a", snapshot(1280, 720, 30, "none"))
	assert.Error(t, err, "unwatched sender")

	_, err = monitor.Watch(context.Background(), "a")
	require.NoError(t, err)

	changed, err := monitor.Ingest("a", snapshot(1280, 720, 30, "none"))
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = monitor.Ingest("a", snapshot(1280, 720, 60, "none"))
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestAdaptationMonitor_StopRejectsNewWatches(t *testing.T) {
	monitor := NewAdaptationMonitor(&scriptedSource{}, time.Millisecond, nil, nil, zaptest.NewLogger(t).Sugar())
	_, err := monitor.Watch(context.Background(), "a")
	require.NoError(t, err)

	monitor.Stop()

	_, err = monitor.Watch(context.Background(), "b")
	assert.Error(t, err)
	_, ok := monitor.Tracker("a")
	assert.False(t, ok)
}
