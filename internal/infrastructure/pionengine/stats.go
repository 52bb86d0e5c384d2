package pionengine

import (
	"context"

	"sendctl/internal/core/domain"
	"sendctl/pkg/stats"

	"github.com/pion/webrtc/v4"
)

// OutboundStats returns the outbound-rtp stats of the sender's first
// encoding, if the PeerConnection reports any.
func (e *Engine) OutboundStats(handle domain.SenderHandle) (webrtc.OutboundRTPStreamStats, bool) {
	e.mu.Lock()
	state, ok := e.senders[handle]
	pc := e.pc
	e.mu.Unlock()
	if !ok || pc == nil {
		return webrtc.OutboundRTPStreamStats{}, false
	}

	encodings := state.rtp.GetParameters().Encodings
	if len(encodings) == 0 {
		return webrtc.OutboundRTPStreamStats{}, false
	}
	ssrc := encodings[0].SSRC

	for _, s := range pc.GetStats() {
		if out, ok := s.(webrtc.OutboundRTPStreamStats); ok && out.SSRC == ssrc {
			return out, true
		}
	}
	return webrtc.OutboundRTPStreamStats{}, false
}

// StatsSource serves the adaptation monitor from the engine's own stats.
type StatsSource struct {
	engine *Engine
	lookup func(domain.SenderID) (domain.SenderHandle, bool)
}

// NewStatsSource resolves sender ids to handles with lookup.
func NewStatsSource(engine *Engine, lookup func(domain.SenderID) (domain.SenderHandle, bool)) *StatsSource {
	return &StatsSource{engine: engine, lookup: lookup}
}

func (s *StatsSource) Latest(ctx context.Context, senderID domain.SenderID) (domain.OutboundStreamStats, error) {
	handle, ok := s.lookup(senderID)
	if !ok {
		return domain.OutboundStreamStats{}, domain.ErrSenderNotFound
	}
	out, ok := s.engine.OutboundStats(handle)
	if !ok {
		return domain.OutboundStreamStats{}, domain.ErrNoSnapshot
	}
	return stats.FromOutboundRTP(out), nil
}
