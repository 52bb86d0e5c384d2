package services

import (
	"context"
	"sync"

	"sendctl/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockSenderEngine struct {
	mock.Mock
}

func (m *MockSenderEngine) Initialized() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockSenderEngine) Capabilities(ctx context.Context, kind domain.MediaKind) (domain.SenderCapabilities, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).(domain.SenderCapabilities), args.Error(1)
}

func (m *MockSenderEngine) Parameters(ctx context.Context, sender domain.SenderHandle) (domain.SendParameters, error) {
	args := m.Called(ctx, sender)
	return args.Get(0).(domain.SendParameters), args.Error(1)
}

func (m *MockSenderEngine) SetParameters(ctx context.Context, sender domain.SenderHandle, params domain.SendParameters) error {
	args := m.Called(ctx, sender, params)
	return args.Error(0)
}

func (m *MockSenderEngine) DegradationPreference(ctx context.Context, sender domain.SenderHandle) (domain.DegradationPreference, error) {
	args := m.Called(ctx, sender)
	return args.Get(0).(domain.DegradationPreference), args.Error(1)
}

func (m *MockSenderEngine) SetDegradationPreference(ctx context.Context, sender domain.SenderHandle, pref domain.DegradationPreference) error {
	args := m.Called(ctx, sender, pref)
	return args.Error(0)
}

func (m *MockSenderEngine) ReplaceTrack(ctx context.Context, sender domain.SenderHandle, track domain.TrackHandle) (bool, error) {
	args := m.Called(ctx, sender, track)
	return args.Bool(0), args.Error(1)
}

func (m *MockSenderEngine) Track(ctx context.Context, sender domain.SenderHandle) (*domain.Track, error) {
	args := m.Called(ctx, sender)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Track), args.Error(1)
}

func (m *MockSenderEngine) ReleaseSender(ctx context.Context, sender domain.SenderHandle) error {
	args := m.Called(ctx, sender)
	return args.Error(0)
}

// recordingMetrics counts calls instead of exporting them.
type recordingMetrics struct {
	mu                 sync.Mutex
	attached           int
	disposed           int
	engineFailures     []int32
	validationFailures []string
	changes            []domain.AdaptationChange
}

func (r *recordingMetrics) RecordSenderAttached(domain.MediaKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attached++
}

func (r *recordingMetrics) RecordSenderDisposed(domain.MediaKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed++
}

func (r *recordingMetrics) RecordEngineFailure(_ string, status int32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engineFailures = append(r.engineFailures, status)
}

func (r *recordingMetrics) RecordValidationFailure(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validationFailures = append(r.validationFailures, op)
}

func (r *recordingMetrics) RecordAdaptationChange(change domain.AdaptationChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *recordingMetrics) changeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

func float64Ptr(v float64) *float64 { return &v }
func uint64Ptr(v uint64) *uint64    { return &v }
