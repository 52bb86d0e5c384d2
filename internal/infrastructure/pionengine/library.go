package pionengine

import (
	"errors"

	"sendctl/internal/core/domain"
	"sendctl/internal/infrastructure/native"
	"sendctl/pkg/fieldtrial"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

func (e *Engine) Initialize(fieldTrials *string, nativeLogging bool) native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return e.fail(native.StatusAlreadyInitialized, "engine already initialized")
	}

	var trials fieldtrial.Set
	if fieldTrials != nil {
		set, err := fieldtrial.Parse(*fieldTrials)
		if err != nil {
			return e.fail(native.StatusInvalidParameter, "field trials: %v", err)
		}
		trials = set
	}

	pc, err := e.api.NewPeerConnection(webrtc.Configuration{ICEServers: e.config.ICEServers})
	if err != nil {
		return e.fail(native.StatusError, "create peer connection: %v", err)
	}

	e.pc = pc
	e.fieldTrials = trials
	e.nativeLogging = nativeLogging
	e.initialized = true
	e.lastErr = ""

	e.logger.Infow("Engine initialized",
		"field_trials", trials.String(),
		"codecs", len(e.config.Codecs),
		"native_logging", nativeLogging,
	)
	return native.StatusOK
}

func (e *Engine) Shutdown() native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return e.fail(native.StatusNotInitialized, "engine not initialized")
	}

	err := e.pc.Close()
	e.pc = nil
	e.initialized = false
	e.fieldTrials = nil
	e.tracks = make(map[domain.TrackHandle]*localTrack)
	e.senders = make(map[domain.SenderHandle]*senderState)

	if err != nil {
		return e.fail(native.StatusError, "close peer connection: %v", err)
	}
	e.logger.Infow("Engine shut down")
	return native.StatusOK
}

func (e *Engine) Alloc(size int) (native.Buffer, native.Status) {
	if size < 0 {
		e.mu.Lock()
		defer e.mu.Unlock()
		return nil, e.fail(native.StatusInvalidParameter, "negative allocation size %d", size)
	}
	return e.buffer(make([]byte, size)), native.StatusOK
}

func (e *Engine) SenderCapabilities(kind uint32) (native.Buffer, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, e.fail(native.StatusNotInitialized, "engine not initialized")
	}
	mediaKind := domain.MediaKind(kind)
	if !mediaKind.Valid() {
		return nil, e.fail(native.StatusInvalidParameter, "unknown media kind %d", kind)
	}

	caps := domain.SenderCapabilities{Kind: mediaKind}
	for _, c := range e.config.Codecs {
		if c.Kind != mediaKind {
			continue
		}
		caps.Codecs = append(caps.Codecs, domain.CodecCapability{
			MimeType:    c.Params.MimeType,
			ClockRate:   c.Params.ClockRate,
			Channels:    c.Params.Channels,
			SDPFmtpLine: c.Params.SDPFmtpLine,
		})
	}
	caps.HeaderExtensions = append(caps.HeaderExtensions, e.config.HeaderExtensions[mediaKind]...)

	return e.buffer(native.EncodeCapabilities(caps)), native.StatusOK
}

// SenderParameters issues a fresh transaction id; only the most recent one
// is accepted by SetSenderParameters.
func (e *Engine) SenderParameters(sender uint64) (native.Buffer, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return nil, status
	}

	state.transactionID = uuid.NewString()
	params := domain.SendParameters{
		TransactionID:         state.transactionID,
		Encodings:             copyEncodings(state.encodings),
		DegradationPreference: state.preference,
	}
	return e.buffer(native.EncodeParameters(params)), native.StatusOK
}

func (e *Engine) SetSenderParameters(sender uint64, buf native.Buffer) native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return status
	}
	if buf == nil {
		return e.fail(native.StatusInvalidParameter, "no parameter buffer")
	}

	params, err := native.DecodeParameters(buf.Bytes())
	if err != nil {
		return e.fail(native.StatusInvalidParameter, "%v", err)
	}

	if state.transactionID == "" || params.TransactionID != state.transactionID {
		return e.fail(native.StatusInvalidModification, "transaction id %q is not the current one", params.TransactionID)
	}
	if len(params.Encodings) != len(state.encodings) {
		return e.fail(native.StatusInvalidModification, "encoding count changed from %d to %d", len(state.encodings), len(params.Encodings))
	}
	for i, enc := range params.Encodings {
		if enc.RID != state.encodings[i].RID {
			return e.fail(native.StatusInvalidModification, "encoding %d rid changed from %q to %q", i, state.encodings[i].RID, enc.RID)
		}
		if enc.ScaleResolutionDownBy != nil && *enc.ScaleResolutionDownBy < 1 {
			return e.fail(native.StatusInvalidParameter, "encoding %d scale %.2f is below 1", i, *enc.ScaleResolutionDownBy)
		}
		if enc.MaxBitrate != nil && enc.MinBitrate != nil && *enc.MinBitrate > *enc.MaxBitrate {
			return e.fail(native.StatusInvalidParameter, "encoding %d min bitrate exceeds max bitrate", i)
		}
		if enc.MaxFramerate != nil && *enc.MaxFramerate < 0 {
			return e.fail(native.StatusInvalidParameter, "encoding %d max framerate is negative", i)
		}
	}

	state.encodings = copyEncodings(params.Encodings)
	state.preference = params.DegradationPreference
	state.transactionID = ""

	e.logger.Debugw("Sender parameters applied",
		"sender_handle", sender,
		"encodings", len(params.Encodings),
		"degradation_preference", params.DegradationPreference.String(),
	)
	return native.StatusOK
}

func (e *Engine) SenderDegradationPreference(sender uint64) (int32, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return native.DegradationPreferenceUnset, status
	}
	return native.EncodePreference(state.preference), native.StatusOK
}

func (e *Engine) SetSenderDegradationPreference(sender uint64, pref int32) native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return status
	}

	p, ok := native.DecodePreference(pref)
	if !ok {
		return e.fail(native.StatusInvalidParameter, "unknown degradation preference %d", pref)
	}
	state.preference = p
	return native.StatusOK
}

func (e *Engine) SenderReplaceTrack(sender uint64, track uint64) native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return status
	}

	var local webrtc.TrackLocal
	if track != 0 {
		t, ok := e.tracks[domain.TrackHandle(track)]
		if !ok {
			return e.fail(native.StatusInvalidParameter, "unknown track handle %d", track)
		}
		local = t.local
	}

	if err := state.rtp.ReplaceTrack(local); err != nil {
		if errors.Is(err, webrtc.ErrRTPSenderNewTrackHasIncorrectKind) {
			return e.fail(native.StatusInvalidParameter, "track %d does not match %s sender", track, state.kind)
		}
		return e.fail(native.StatusError, "replace track: %v", err)
	}
	state.track = domain.TrackHandle(track)
	return native.StatusOK
}

func (e *Engine) SenderTrack(sender uint64) (native.Buffer, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return nil, status
	}

	var track *domain.Track
	if t, ok := e.tracks[state.track]; ok && state.rtp.Track() != nil {
		track = &domain.Track{
			Handle: t.handle,
			ID:     t.local.ID(),
			Kind:   t.kind,
			Width:  t.width,
			Height: t.height,
		}
	}
	return e.buffer(native.EncodeTrack(track)), native.StatusOK
}

func (e *Engine) ReleaseSender(sender uint64) native.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, status := e.sender(sender)
	if status != native.StatusOK {
		return status
	}
	delete(e.senders, state.handle)

	if err := e.pc.RemoveTrack(state.rtp); err != nil {
		return e.fail(native.StatusError, "remove track: %v", err)
	}
	return native.StatusOK
}

func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// sender looks up a live sender. Callers hold e.mu.
func (e *Engine) sender(handle uint64) (*senderState, native.Status) {
	if !e.initialized {
		return nil, e.fail(native.StatusNotInitialized, "engine not initialized")
	}
	state, ok := e.senders[domain.SenderHandle(handle)]
	if !ok {
		return nil, e.fail(native.StatusInvalidHandle, "unknown sender handle %d", handle)
	}
	return state, native.StatusOK
}

func copyEncodings(in []domain.EncodingParameters) []domain.EncodingParameters {
	out := make([]domain.EncodingParameters, len(in))
	for i, enc := range in {
		out[i] = domain.EncodingParameters{RID: enc.RID, Active: enc.Active}
		if enc.MaxBitrate != nil {
			v := *enc.MaxBitrate
			out[i].MaxBitrate = &v
		}
		if enc.MinBitrate != nil {
			v := *enc.MinBitrate
			out[i].MinBitrate = &v
		}
		if enc.MaxFramerate != nil {
			v := *enc.MaxFramerate
			out[i].MaxFramerate = &v
		}
		if enc.ScaleResolutionDownBy != nil {
			v := *enc.ScaleResolutionDownBy
			out[i].ScaleResolutionDownBy = &v
		}
	}
	return out
}
