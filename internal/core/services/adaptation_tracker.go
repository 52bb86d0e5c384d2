package services

import (
	"math"
	"sync"
	"time"

	"sendctl/internal/core/domain"
)

// FramerateTolerance is the largest framerate difference between two
// consecutive observations that is not reported as a change.
const FramerateTolerance = 1.0

// AdaptationTracker detects changes in a sender's encoder adaptation from a
// feed of statistics snapshots. It never calls the engine.
//
// Observe must not be called concurrently for the same tracker; confine it
// to one polling loop per sender. Subscribe, Unsubscribe and LastState are
// safe from any goroutine.
type AdaptationTracker struct {
	senderID domain.SenderID
	now      func() time.Time

	stateMu  sync.RWMutex
	last     domain.AdaptationState
	observed bool

	subs subscribers
}

func NewAdaptationTracker(senderID domain.SenderID) *AdaptationTracker {
	return &AdaptationTracker{senderID: senderID, now: time.Now}
}

func (t *AdaptationTracker) SenderID() domain.SenderID {
	return t.senderID
}

// Observe projects stats into an AdaptationState and compares it to the
// last one. The first observation only sets the baseline and reports false.
// Afterwards a change is reported when width, height or reason differ, or
// framerate moved by more than FramerateTolerance; subscribers are notified
// in registration order before the baseline is replaced. The baseline is
// replaced on every observation, changed or not.
func (t *AdaptationTracker) Observe(stats domain.OutboundStreamStats) bool {
	current := domain.NewAdaptationState(stats)

	t.stateMu.RLock()
	previous, observed := t.last, t.observed
	t.stateMu.RUnlock()

	changed := observed && adaptationChanged(previous, current)
	if changed {
		t.subs.notify(domain.AdaptationChange{
			SenderID:   t.senderID,
			Previous:   previous,
			Current:    current,
			ObservedAt: t.now(),
		})
	}

	t.stateMu.Lock()
	t.last = current
	t.observed = true
	t.stateMu.Unlock()

	return changed
}

// LastState returns false until the first observation.
func (t *AdaptationTracker) LastState() (domain.AdaptationState, bool) {
	t.stateMu.RLock()
	defer t.stateMu.RUnlock()
	return t.last, t.observed
}

func (t *AdaptationTracker) Subscribe(fn AdaptationHandler) SubscriptionID {
	return t.subs.add(fn)
}

// Unsubscribe reports whether id was registered.
func (t *AdaptationTracker) Unsubscribe(id SubscriptionID) bool {
	return t.subs.remove(id)
}

func adaptationChanged(previous, current domain.AdaptationState) bool {
	return previous.FrameWidth != current.FrameWidth ||
		previous.FrameHeight != current.FrameHeight ||
		previous.QualityLimitationReason != current.QualityLimitationReason ||
		math.Abs(previous.FramesPerSecond-current.FramesPerSecond) > FramerateTolerance
}
