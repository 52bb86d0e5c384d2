package services

import (
	"context"
	"fmt"
	"math"
	"sync"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
	"sendctl/pkg/errors"

	"go.uber.org/zap"
)

// TextureBounds are the platform's supported texture sizes, inclusive.
type TextureBounds struct {
	Min int
	Max int
}

// Sender controls one outgoing media stream. It is Active until Dispose,
// after which every operation fails with an invalid-handle error.
// Parameters and preference are never cached; each call asks the engine.
type Sender struct {
	id      domain.SenderID
	kind    domain.MediaKind
	engine  ports.SenderEngine
	bounds  TextureBounds
	metrics ports.MetricsCollector
	logger  *zap.SugaredLogger

	// mu is held shared for the duration of each engine call and exclusively
	// by Dispose, so the handle is never released under an in-flight call.
	mu     sync.RWMutex
	handle domain.SenderHandle
}

func newSender(
	id domain.SenderID,
	handle domain.SenderHandle,
	kind domain.MediaKind,
	engine ports.SenderEngine,
	bounds TextureBounds,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
) *Sender {
	return &Sender{
		id:      id,
		kind:    kind,
		engine:  engine,
		bounds:  bounds,
		metrics: metrics,
		logger:  logger.With("sender_id", id),
		handle:  handle,
	}
}

func (s *Sender) ID() domain.SenderID {
	return s.id
}

func (s *Sender) Kind() domain.MediaKind {
	return s.kind
}

func (s *Sender) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle == 0
}

// Handle returns the engine handle and false once disposed.
func (s *Sender) Handle() (domain.SenderHandle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle, s.handle != 0
}

func (s *Sender) GetCapabilities(ctx context.Context, kind domain.MediaKind) (domain.SenderCapabilities, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.active("GetCapabilities"); err != nil {
		return domain.SenderCapabilities{}, err
	}
	if !kind.Valid() {
		return domain.SenderCapabilities{}, s.invalid("GetCapabilities", fmt.Sprintf("unknown media kind %d", uint32(kind)))
	}

	caps, err := s.engine.Capabilities(ctx, kind)
	if err != nil {
		return domain.SenderCapabilities{}, s.engineFailed("GetCapabilities", err)
	}
	return caps, nil
}

func (s *Sender) GetParameters(ctx context.Context) (domain.SendParameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("GetParameters")
	if err != nil {
		return domain.SendParameters{}, err
	}

	params, err := s.engine.Parameters(ctx, handle)
	if err != nil {
		return domain.SendParameters{}, s.engineFailed("GetParameters", err)
	}
	return params, nil
}

// SetParameters hands params back to the engine. params must come from
// GetParameters with only field values changed. Scale factors are checked
// locally first: a factor below 1, or one that takes the video track outside
// the texture bounds, is rejected without calling the engine's set.
func (s *Sender) SetParameters(ctx context.Context, params domain.SendParameters) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("SetParameters")
	if err != nil {
		return err
	}

	if scaled(params.Encodings) {
		if err := s.validateScale(ctx, handle, params.Encodings); err != nil {
			return err
		}
	}

	if err := s.engine.SetParameters(ctx, handle, params); err != nil {
		return s.engineFailed("SetParameters", err)
	}

	s.logger.Debugw("Send parameters updated",
		"encodings", len(params.Encodings),
		"degradation_preference", params.DegradationPreference.String(),
	)
	return nil
}

func (s *Sender) GetDegradationPreference(ctx context.Context) (domain.DegradationPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("GetDegradationPreference")
	if err != nil {
		return domain.DegradationPreferenceUnset, err
	}

	pref, err := s.engine.DegradationPreference(ctx, handle)
	if err != nil {
		return domain.DegradationPreferenceUnset, s.engineFailed("GetDegradationPreference", err)
	}
	return pref, nil
}

// SetDegradationPreference accepts DegradationPreferenceUnset to clear it.
func (s *Sender) SetDegradationPreference(ctx context.Context, pref domain.DegradationPreference) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("SetDegradationPreference")
	if err != nil {
		return err
	}
	if !pref.Valid() {
		return s.invalid("SetDegradationPreference", fmt.Sprintf("unknown degradation preference %d", int32(pref)))
	}

	if err := s.engine.SetDegradationPreference(ctx, handle, pref); err != nil {
		return s.engineFailed("SetDegradationPreference", err)
	}
	s.logger.Debugw("Degradation preference updated", "degradation_preference", pref.String())
	return nil
}

// ReplaceTrack swaps the sender's source. nil clears it: transmission stops
// but the sender stays Active. A track the engine does not accept for this
// sender yields false with the engine's error.
func (s *Sender) ReplaceTrack(ctx context.Context, track *domain.Track) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("ReplaceTrack")
	if err != nil {
		return false, err
	}

	var trackHandle domain.TrackHandle
	if track != nil {
		trackHandle = track.Handle
	}

	ok, err := s.engine.ReplaceTrack(ctx, handle, trackHandle)
	if err != nil {
		return false, s.engineFailed("ReplaceTrack", err)
	}

	s.logger.Infow("Track replaced", "track_handle", uint64(trackHandle), "accepted", ok)
	return ok, nil
}

// Track returns nil when no track is attached.
func (s *Sender) Track(ctx context.Context) (*domain.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handle, err := s.active("GetTrack")
	if err != nil {
		return nil, err
	}

	track, err := s.engine.Track(ctx, handle)
	if err != nil {
		return nil, s.engineFailed("GetTrack", err)
	}
	return track, nil
}

// Dispose releases the engine handle. It is idempotent; only the first call
// reaches the engine. The sender is Disposed afterwards even if the engine
// reports an error.
func (s *Sender) Dispose(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == 0 {
		return nil
	}
	handle := s.handle
	s.handle = 0

	if s.metrics != nil {
		s.metrics.RecordSenderDisposed(s.kind)
	}

	if err := s.engine.ReleaseSender(ctx, handle); err != nil {
		s.logger.Warnw("Engine failed to release sender", "sender_handle", uint64(handle), "error", err)
		return s.engineFailed("ReleaseSender", err)
	}
	s.logger.Infow("Sender disposed", "sender_handle", uint64(handle))
	return nil
}

// active returns the live handle. Callers hold s.mu.
func (s *Sender) active(op string) (domain.SenderHandle, error) {
	if s.handle == 0 {
		return 0, errors.NewInvalidHandleError(op).WithContext("sender_id", string(s.id))
	}
	return s.handle, nil
}

func (s *Sender) validateScale(ctx context.Context, handle domain.SenderHandle, encodings []domain.EncodingParameters) error {
	// A factor below 1 is refused for every sender, audio or trackless ones
	// included. Only the texture bounds below depend on a video track.
	for i, enc := range encodings {
		if enc.ScaleResolutionDownBy == nil {
			continue
		}
		if scale := *enc.ScaleResolutionDownBy; !(scale >= 1) {
			return s.invalid("SetParameters", fmt.Sprintf("encoding %d: scale_resolution_down_by %v must be >= 1", i, scale))
		}
	}

	if s.kind != domain.MediaKindVideo {
		return nil
	}

	track, err := s.engine.Track(ctx, handle)
	if err != nil {
		return s.engineFailed("GetTrack", err)
	}
	if track == nil || track.Kind != domain.MediaKindVideo || track.Width <= 0 || track.Height <= 0 {
		return nil
	}

	for i, enc := range encodings {
		if enc.ScaleResolutionDownBy == nil {
			continue
		}
		scale := *enc.ScaleResolutionDownBy
		width := scaledDimension(track.Width, scale)
		height := scaledDimension(track.Height, scale)
		if !s.bounds.contains(width) || !s.bounds.contains(height) {
			return s.invalid("SetParameters", fmt.Sprintf(
				"encoding %d: %dx%d scaled by %v gives %dx%d, outside texture bounds [%d, %d]",
				i, track.Width, track.Height, scale, width, height, s.bounds.Min, s.bounds.Max,
			))
		}
	}
	return nil
}

func (b TextureBounds) contains(size int) bool {
	return size >= b.Min && size <= b.Max
}

func scaledDimension(size int, scale float64) int {
	v := math.Floor(float64(size) / scale)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0
	}
	return int(v)
}

func scaled(encodings []domain.EncodingParameters) bool {
	for _, enc := range encodings {
		if enc.ScaleResolutionDownBy != nil {
			return true
		}
	}
	return false
}

func (s *Sender) invalid(op, msg string) error {
	if s.metrics != nil {
		s.metrics.RecordValidationFailure(op)
	}
	s.logger.Debugw("Rejected before engine call", "operation", op, "reason", msg)
	return errors.NewValidationError(msg).WithContext("operation", op)
}

func (s *Sender) engineFailed(op string, err error) error {
	if appErr := errors.GetAppError(err); appErr != nil && appErr.Code == errors.ErrCodeNativeCall && s.metrics != nil {
		s.metrics.RecordEngineFailure(op, appErr.NativeStatus)
	}
	return err
}
