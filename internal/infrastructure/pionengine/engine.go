// Package pionengine runs the sender engine in-process on top of a pion
// PeerConnection and exposes it through the native.Library boundary.
package pionengine

import (
	"fmt"
	"sync"
	"sync/atomic"

	"sendctl/internal/core/domain"
	"sendctl/internal/infrastructure/native"
	"sendctl/pkg/fieldtrial"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Codec is one entry of the engine's codec registry.
type Codec struct {
	Kind   domain.MediaKind
	Params webrtc.RTPCodecParameters
}

// DefaultCodecs is the registry used when Config.Codecs is empty.
var DefaultCodecs = []Codec{
	{Kind: domain.MediaKindAudio, Params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"},
		PayloadType:        111,
	}},
	{Kind: domain.MediaKindVideo, Params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		PayloadType:        96,
	}},
	{Kind: domain.MediaKindVideo, Params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, SDPFmtpLine: "profile-id=0"},
		PayloadType:        98,
	}},
	{Kind: domain.MediaKindVideo, Params: webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		},
		PayloadType: 102,
	}},
}

// DefaultHeaderExtensions maps each kind to the RTP header extensions
// offered for it.
var DefaultHeaderExtensions = map[domain.MediaKind][]string{
	domain.MediaKindAudio: {
		"urn:ietf:params:rtp-hdrext:sdes:mid",
		"urn:ietf:params:rtp-hdrext:ssrc-audio-level",
	},
	domain.MediaKindVideo: {
		"urn:ietf:params:rtp-hdrext:sdes:mid",
		"http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time",
		"http://www.ietf.org/id/draft-holmer-rmcat-transport-wide-cc-extensions-01",
	},
}

type Config struct {
	Codecs           []Codec
	HeaderExtensions map[domain.MediaKind][]string
	ICEServers       []webrtc.ICEServer
}

type localTrack struct {
	handle domain.TrackHandle
	local  *webrtc.TrackLocalStaticSample
	kind   domain.MediaKind
	width  int
	height int
}

type senderState struct {
	handle domain.SenderHandle
	kind   domain.MediaKind
	rtp    *webrtc.RTPSender
	track  domain.TrackHandle

	encodings     []domain.EncodingParameters
	preference    domain.DegradationPreference
	transactionID string

	feedback feedbackCounters
}

// Engine is safe for concurrent use.
type Engine struct {
	mu sync.Mutex

	config Config
	api    *webrtc.API
	pc     *webrtc.PeerConnection

	initialized   bool
	fieldTrials   fieldtrial.Set
	nativeLogging bool

	nextHandle uint64
	tracks     map[domain.TrackHandle]*localTrack
	senders    map[domain.SenderHandle]*senderState

	lastErr     string
	outstanding atomic.Int64

	logger *zap.SugaredLogger
}

var _ native.Library = (*Engine)(nil)

// New registers the codec registry with a pion MediaEngine. The
// PeerConnection is created by Initialize.
func New(config Config, logger *zap.SugaredLogger) (*Engine, error) {
	if len(config.Codecs) == 0 {
		config.Codecs = DefaultCodecs
	}
	if config.HeaderExtensions == nil {
		config.HeaderExtensions = DefaultHeaderExtensions
	}

	m := &webrtc.MediaEngine{}
	for _, c := range config.Codecs {
		if err := m.RegisterCodec(c.Params, codecType(c.Kind)); err != nil {
			return nil, fmt.Errorf("failed to register codec %s: %w", c.Params.MimeType, err)
		}
	}
	for kind, uris := range config.HeaderExtensions {
		for _, uri := range uris {
			if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: uri}, codecType(kind)); err != nil {
				return nil, fmt.Errorf("failed to register header extension %s: %w", uri, err)
			}
		}
	}

	return &Engine{
		config:  config,
		api:     webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		tracks:  make(map[domain.TrackHandle]*localTrack),
		senders: make(map[domain.SenderHandle]*senderState),
		logger:  logger,
	}, nil
}

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.MediaKindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// CreateTrack creates a local sample track using the first registered codec
// of the given kind.
func (e *Engine) CreateTrack(kind domain.MediaKind, id string, width, height int) (domain.TrackHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return 0, fmt.Errorf("engine not initialized")
	}

	var capability *webrtc.RTPCodecCapability
	for _, c := range e.config.Codecs {
		if c.Kind == kind {
			capability = &c.Params.RTPCodecCapability
			break
		}
	}
	if capability == nil {
		return 0, fmt.Errorf("no codec registered for %s", kind)
	}

	local, err := webrtc.NewTrackLocalStaticSample(*capability, id, "sendctl")
	if err != nil {
		return 0, fmt.Errorf("failed to create %s track: %w", kind, err)
	}

	handle := domain.TrackHandle(e.allocHandle())
	e.tracks[handle] = &localTrack{handle: handle, local: local, kind: kind, width: width, height: height}

	e.logger.Debugw("Track created", "track_handle", uint64(handle), "track_id", id, "kind", kind.String())
	return handle, nil
}

// AddSender adds the track to the PeerConnection and returns the handle of
// the new sender.
func (e *Engine) AddSender(track domain.TrackHandle) (domain.SenderHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return 0, fmt.Errorf("engine not initialized")
	}
	t, ok := e.tracks[track]
	if !ok {
		return 0, fmt.Errorf("unknown track handle %d", track)
	}

	rtpSender, err := e.pc.AddTrack(t.local)
	if err != nil {
		return 0, fmt.Errorf("failed to add track: %w", err)
	}

	state := &senderState{
		handle:     domain.SenderHandle(e.allocHandle()),
		kind:       t.kind,
		rtp:        rtpSender,
		track:      track,
		preference: domain.DegradationPreferenceUnset,
	}
	for _, enc := range rtpSender.GetParameters().Encodings {
		state.encodings = append(state.encodings, domain.EncodingParameters{RID: enc.RID, Active: true})
	}
	e.senders[state.handle] = state

	go e.readRTCP(state)

	e.logger.Infow("Sender added",
		"sender_handle", uint64(state.handle),
		"track_handle", uint64(track),
		"kind", t.kind.String(),
		"encodings", len(state.encodings),
	)
	return state.handle, nil
}

// FieldTrials returns the trials applied at initialization.
func (e *Engine) FieldTrials() fieldtrial.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append(fieldtrial.Set(nil), e.fieldTrials...)
}

// OutstandingBuffers counts buffers handed out and not yet released.
func (e *Engine) OutstandingBuffers() int64 {
	return e.outstanding.Load()
}

func (e *Engine) allocHandle() uint64 {
	e.nextHandle++
	return e.nextHandle
}

func (e *Engine) buffer(data []byte) *native.HeapBuffer {
	e.outstanding.Add(1)
	return native.NewHeapBuffer(data, func() { e.outstanding.Add(-1) })
}

// fail records msg for LastError. Callers hold e.mu.
func (e *Engine) fail(status native.Status, format string, args ...interface{}) native.Status {
	e.lastErr = fmt.Sprintf(format, args...)
	if e.nativeLogging {
		e.logger.Debugw("Engine call rejected", "status", status.String(), "reason", e.lastErr)
	}
	return status
}
