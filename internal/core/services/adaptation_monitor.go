package services

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/pkg/errors"

	"go.uber.org/zap"
)

// AdaptationMonitor polls a StatsSource for every watched sender and feeds
// the snapshots into that sender's AdaptationTracker. Changes are forwarded
// to metrics, the publisher and monitor-level listeners.
type AdaptationMonitor struct {
	source    ports.StatsSource
	interval  time.Duration
	metrics   ports.MetricsCollector
	publisher ports.AdaptationPublisher
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	watches map[domain.SenderID]*watch
	stopped bool
	wg      sync.WaitGroup

	listeners subscribers
}

type watch struct {
	tracker *AdaptationTracker
	cancel  context.CancelFunc
	// observeMu serializes Observe between the poll loop and Ingest.
	observeMu sync.Mutex
}

// NewAdaptationMonitor; metrics and publisher may be nil.
func NewAdaptationMonitor(
	source ports.StatsSource,
	interval time.Duration,
	metrics ports.MetricsCollector,
	publisher ports.AdaptationPublisher,
	logger *zap.SugaredLogger,
) *AdaptationMonitor {
	return &AdaptationMonitor{
		source:    source,
		interval:  interval,
		metrics:   metrics,
		publisher: publisher,
		logger:    logger,
		watches:   make(map[domain.SenderID]*watch),
	}
}

// Watch starts polling senderID until Unwatch or Stop. Cancelling ctx does
// not stop the poll loop; ctx only carries values such as the trace. Watching
// an already watched sender returns its existing tracker.
func (m *AdaptationMonitor) Watch(ctx context.Context, senderID domain.SenderID) (*AdaptationTracker, error) {
	if senderID == "" {
		return nil, errors.NewValidationError("sender id must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, errors.NewInternalError("adaptation monitor stopped")
	}
	if w, ok := m.watches[senderID]; ok {
		return w.tracker, nil
	}

	base := context.WithoutCancel(ctx)
	tracker := NewAdaptationTracker(senderID)
	tracker.Subscribe(func(change domain.AdaptationChange) {
		m.forward(base, change)
	})

	pollCtx, cancel := context.WithCancel(base)
	w := &watch{tracker: tracker, cancel: cancel}
	m.watches[senderID] = w

	m.wg.Add(1)
	go m.poll(pollCtx, senderID, w)

	m.logger.Infow("Watching sender adaptation",
		"sender_id", senderID,
		"interval", m.interval,
	)
	return tracker, nil
}

// Unwatch stops polling senderID and reports whether it was watched.
func (m *AdaptationMonitor) Unwatch(senderID domain.SenderID) bool {
	m.mu.Lock()
	w, ok := m.watches[senderID]
	delete(m.watches, senderID)
	m.mu.Unlock()

	if ok {
		w.cancel()
		m.logger.Infow("Stopped watching sender adaptation", "sender_id", senderID)
	}
	return ok
}

func (m *AdaptationMonitor) Tracker(senderID domain.SenderID) (*AdaptationTracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.watches[senderID]
	if !ok {
		return nil, false
	}
	return w.tracker, true
}

// Ingest observes a snapshot pushed by a caller instead of waiting for the
// next poll.
func (m *AdaptationMonitor) Ingest(senderID domain.SenderID, stats domain.OutboundStreamStats) (bool, error) {
	m.mu.Lock()
	w, ok := m.watches[senderID]
	m.mu.Unlock()

	if !ok {
		return false, errors.NewNotFoundError("adaptation watch for sender " + string(senderID))
	}
	return w.observe(stats), nil
}

// Subscribe registers fn for changes of every watched sender.
func (m *AdaptationMonitor) Subscribe(fn AdaptationHandler) SubscriptionID {
	return m.listeners.add(fn)
}

func (m *AdaptationMonitor) Unsubscribe(id SubscriptionID) bool {
	return m.listeners.remove(id)
}

// Stop cancels every poll loop and waits for them to exit.
func (m *AdaptationMonitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	watches := m.watches
	m.watches = make(map[domain.SenderID]*watch)
	m.mu.Unlock()

	for _, w := range watches {
		w.cancel()
	}
	m.wg.Wait()
}

func (m *AdaptationMonitor) poll(ctx context.Context, senderID domain.SenderID, w *watch) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.source.Latest(ctx, senderID)
			if err != nil {
				if stderrors.Is(err, domain.ErrNoSnapshot) {
					m.logger.Debugw("No statistics yet", "sender_id", senderID)
					continue
				}
				if ctx.Err() != nil {
					return
				}
				m.logger.Warnw("Failed to read sender statistics",
					"sender_id", senderID,
					"error", err,
				)
				continue
			}
			w.observe(stats)
		}
	}
}

func (w *watch) observe(stats domain.OutboundStreamStats) bool {
	w.observeMu.Lock()
	defer w.observeMu.Unlock()
	return w.tracker.Observe(stats)
}

func (m *AdaptationMonitor) forward(ctx context.Context, change domain.AdaptationChange) {
	m.logger.Infow("Sender adaptation changed",
		"sender_id", change.SenderID,
		"previous_width", change.Previous.FrameWidth,
		"previous_height", change.Previous.FrameHeight,
		"width", change.Current.FrameWidth,
		"height", change.Current.FrameHeight,
		"fps", change.Current.FramesPerSecond,
		"reason", change.Current.QualityLimitationReason.String(),
	)

	if m.metrics != nil {
		m.metrics.RecordAdaptationChange(change)
	}
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, change); err != nil {
			m.logger.Warnw("Failed to publish adaptation change",
				"sender_id", change.SenderID,
				"error", err,
			)
		}
	}
	m.listeners.notify(change)
}
