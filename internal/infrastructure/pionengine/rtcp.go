package pionengine

import (
	"math"
	"sync/atomic"

	"sendctl/internal/core/domain"

	"github.com/pion/rtcp"
)

// Feedback summarises RTCP received for one sender.
type Feedback struct {
	PictureLossIndications uint64  `json:"pli_count"`
	FullIntraRequests      uint64  `json:"fir_count"`
	Nacks                  uint64  `json:"nack_count"`
	ReceiverReports        uint64  `json:"receiver_reports"`
	LastFractionLost       uint8   `json:"last_fraction_lost"`
	EstimatedBitrate       float32 `json:"estimated_bitrate"`
}

type feedbackCounters struct {
	pli, fir, nack, reports atomic.Uint64
	fractionLost            atomic.Uint32
	remb                    atomic.Uint32 // float32 bits
}

func (c *feedbackCounters) snapshot() Feedback {
	return Feedback{
		PictureLossIndications: c.pli.Load(),
		FullIntraRequests:      c.fir.Load(),
		Nacks:                  c.nack.Load(),
		ReceiverReports:        c.reports.Load(),
		LastFractionLost:       uint8(c.fractionLost.Load()),
		EstimatedBitrate:       math.Float32frombits(c.remb.Load()),
	}
}

// readRTCP drains RTCP for a sender until it is stopped. pion only runs its
// interceptors when RTCP is read.
func (e *Engine) readRTCP(state *senderState) {
	for {
		packets, _, err := state.rtp.ReadRTCP()
		if err != nil {
			e.logger.Debugw("RTCP reader stopped", "sender_handle", uint64(state.handle), "error", err)
			return
		}
		e.processRTCPPackets(state, packets)
	}
}

func (e *Engine) processRTCPPackets(state *senderState, packets []rtcp.Packet) {
	c := &state.feedback
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.PictureLossIndication:
			c.pli.Add(1)
		case *rtcp.FullIntraRequest:
			c.fir.Add(1)
		case *rtcp.TransportLayerNack:
			c.nack.Add(uint64(len(p.Nacks)))
		case *rtcp.ReceiverEstimatedMaximumBitrate:
			c.remb.Store(math.Float32bits(p.Bitrate))
		case *rtcp.ReceiverReport:
			c.reports.Add(1)
			for _, report := range p.Reports {
				c.fractionLost.Store(uint32(report.FractionLost))
			}
		}
	}
}

// Feedback returns the RTCP counters of a live sender.
func (e *Engine) Feedback(handle domain.SenderHandle) (Feedback, bool) {
	e.mu.Lock()
	state, ok := e.senders[handle]
	e.mu.Unlock()
	if !ok {
		return Feedback{}, false
	}
	return state.feedback.snapshot(), true
}
