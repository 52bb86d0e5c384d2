package native

import (
	"context"
	"sync"
	"testing"

	"sendctl/internal/core/domain"
	"sendctl/pkg/errors"
	"sendctl/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeLibrary serves canned buffers and counts how many of them are
// outstanding.
type fakeLibrary struct {
	mu          sync.Mutex
	outstanding int
	released    []*HeapBuffer

	caps       domain.SenderCapabilities
	params     domain.SendParameters
	track      *domain.Track
	pref       int32
	status     Status
	rawParams  []byte
	lastSet    []byte
	allocSlack int

	initCalls    int
	shutdowns    int
	releaseCalls int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{pref: DegradationPreferenceUnset}
}

func (f *fakeLibrary) newBuffer(data []byte) *HeapBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outstanding++

	var buf *HeapBuffer
	buf = NewHeapBuffer(data, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.outstanding--
		f.released = append(f.released, buf)
	})
	return buf
}

func (f *fakeLibrary) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outstanding
}

func (f *fakeLibrary) Initialize(fieldTrials *string, nativeLogging bool) Status {
	f.initCalls++
	return f.status
}

func (f *fakeLibrary) Shutdown() Status {
	f.shutdowns++
	return StatusOK
}

func (f *fakeLibrary) Alloc(size int) (Buffer, Status) {
	return f.newBuffer(make([]byte, size+f.allocSlack)), StatusOK
}

func (f *fakeLibrary) SenderCapabilities(kind uint32) (Buffer, Status) {
	if f.status != StatusOK {
		return nil, f.status
	}
	caps := f.caps
	caps.Kind = domain.MediaKind(kind)
	return f.newBuffer(EncodeCapabilities(caps)), StatusOK
}

func (f *fakeLibrary) SenderParameters(sender uint64) (Buffer, Status) {
	if f.status != StatusOK {
		return nil, f.status
	}
	if f.rawParams != nil {
		return f.newBuffer(f.rawParams), StatusOK
	}
	return f.newBuffer(EncodeParameters(f.params)), StatusOK
}

func (f *fakeLibrary) SetSenderParameters(sender uint64, params Buffer) Status {
	f.lastSet = append([]byte(nil), params.Bytes()...)
	return f.status
}

func (f *fakeLibrary) SenderDegradationPreference(sender uint64) (int32, Status) {
	return f.pref, f.status
}

func (f *fakeLibrary) SetSenderDegradationPreference(sender uint64, pref int32) Status {
	if f.status == StatusOK {
		f.pref = pref
	}
	return f.status
}

func (f *fakeLibrary) SenderReplaceTrack(sender uint64, track uint64) Status {
	return f.status
}

func (f *fakeLibrary) SenderTrack(sender uint64) (Buffer, Status) {
	if f.status != StatusOK {
		return nil, f.status
	}
	return f.newBuffer(EncodeTrack(f.track)), StatusOK
}

func (f *fakeLibrary) ReleaseSender(sender uint64) Status {
	f.releaseCalls++
	return f.status
}

func (f *fakeLibrary) LastError() string {
	if f.status == StatusOK {
		return ""
	}
	return "fake failure"
}

func newTestBridge(lib Library) *Bridge {
	return NewBridge(lib, zap.NewNop().Sugar())
}

func TestBridge_GetsReleaseBufferExactlyOnce(t *testing.T) {
	lib := newFakeLibrary()
	lib.caps = domain.SenderCapabilities{Codecs: []domain.CodecCapability{{MimeType: "audio/opus", ClockRate: 48000, Channels: 2}}}
	lib.params = domain.SendParameters{TransactionID: "t1", Encodings: []domain.EncodingParameters{{Active: true}}}
	lib.track = &domain.Track{Handle: 3, ID: "mic", Kind: domain.MediaKindAudio}
	b := newTestBridge(lib)
	ctx := context.Background()

	caps, err := b.Capabilities(ctx, domain.MediaKindAudio)
	require.NoError(t, err)
	assert.Equal(t, "audio/opus", caps.Codecs[0].MimeType)

	params, err := b.Parameters(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "t1", params.TransactionID)

	track, err := b.Track(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, lib.track, track)

	assert.Zero(t, lib.Outstanding())
	assert.Len(t, lib.released, 3)
	for _, buf := range lib.released {
		assert.True(t, buf.Released())
	}
}

func TestBridge_UnreadableBufferIsStillReleased(t *testing.T) {
	lib := newFakeLibrary()
	lib.rawParams = []byte{1, 0}
	b := newTestBridge(lib)

	_, err := b.Parameters(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNativeCall))
	assert.ErrorIs(t, err, ErrShortBuffer)
	assert.Zero(t, lib.Outstanding())
}

func TestBridge_FailureStatusIsNotRead(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		code   errors.ErrorCode
	}{
		{"invalid handle", StatusInvalidHandle, errors.ErrCodeInvalidHandle},
		{"not initialized", StatusNotInitialized, errors.ErrCodeNotInitialized},
		{"generic failure", StatusError, errors.ErrCodeNativeCall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib := newFakeLibrary()
			lib.status = tt.status
			b := newTestBridge(lib)

			_, err := b.Parameters(context.Background(), 1)
			require.Error(t, err)
			appErr := errors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, tt.code, appErr.Code)
			assert.Equal(t, int32(tt.status), appErr.NativeStatus)
			assert.Zero(t, lib.Outstanding())
		})
	}
}

func TestBridge_SetParametersUsesScopedTransientBuffer(t *testing.T) {
	lib := newFakeLibrary()
	lib.allocSlack = 8
	b := newTestBridge(lib)

	params := domain.SendParameters{TransactionID: "t2", Encodings: []domain.EncodingParameters{{RID: "f", Active: true}}}
	require.NoError(t, b.SetParameters(context.Background(), 1, params))

	encoded := EncodeParameters(params)
	assert.Equal(t, encoded, lib.lastSet[:len(encoded)])
	assert.Zero(t, lib.Outstanding())

	lib.status = StatusInvalidModification
	err := b.SetParameters(context.Background(), 1, params)
	require.Error(t, err)
	assert.Equal(t, int32(StatusInvalidModification), errors.GetAppError(err).NativeStatus)
	assert.Contains(t, err.Error(), "fake failure")
	assert.Zero(t, lib.Outstanding(), "transient buffer is released on failure too")
}

func TestBridge_DegradationPreference(t *testing.T) {
	lib := newFakeLibrary()
	b := newTestBridge(lib)
	ctx := context.Background()

	pref, err := b.DegradationPreference(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DegradationPreferenceUnset, pref)

	require.NoError(t, b.SetDegradationPreference(ctx, 1, domain.DegradationPreferenceMaintainResolution))
	pref, err = b.DegradationPreference(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.DegradationPreferenceMaintainResolution, pref)

	require.NoError(t, b.SetDegradationPreference(ctx, 1, domain.DegradationPreferenceUnset))
	assert.Equal(t, DegradationPreferenceUnset, lib.pref)

	err = b.SetDegradationPreference(ctx, 1, domain.DegradationPreference(42))
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	lib.pref = 99
	_, err = b.DegradationPreference(ctx, 1)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNativeCall))
}

func TestBridge_ReplaceTrack(t *testing.T) {
	lib := newFakeLibrary()
	b := newTestBridge(lib)

	ok, err := b.ReplaceTrack(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	lib.status = StatusInvalidParameter
	ok, err = b.ReplaceTrack(context.Background(), 1, 5)
	assert.False(t, ok)
	assert.Equal(t, int32(StatusInvalidParameter), errors.GetAppError(err).NativeStatus)
}

func TestBridge_CapabilitiesRejectsUnknownKind(t *testing.T) {
	lib := newFakeLibrary()
	b := newTestBridge(lib)

	_, err := b.Capabilities(context.Background(), domain.MediaKind(7))
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	assert.Zero(t, lib.Outstanding())
}

func TestOwned_ReleaseIsIdempotent(t *testing.T) {
	calls := 0
	buf := NewHeapBuffer([]byte{1}, func() { calls++ })
	guard := own(buf)

	guard.Release()
	guard.Release()
	buf.Release()

	assert.Equal(t, 1, calls)
	assert.Nil(t, buf.Bytes())
}

func TestBridge_FailureLogCarriesContextIDs(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lib := newFakeLibrary()
	lib.status = StatusInvalidModification
	b := NewBridge(lib, zap.New(core).Sugar())

	ctx := logger.WithSenderID(logger.WithTraceID(context.Background(), "trace-1"), "video-1")
	err := b.SetParameters(ctx, 1, domain.SendParameters{TransactionID: "t"})
	require.Error(t, err)

	entries := logs.FilterMessage("Engine call failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "video-1", fields["sender_id"])
	assert.Equal(t, "trace-1", fields["trace_id"])
	assert.Equal(t, "SetParameters", fields["operation"])
	assert.Equal(t, StatusInvalidModification.String(), fields["status"])
}
