// Package stats converts outbound stream statistics from pion into the
// record the adaptation tracker consumes.
package stats

import (
	"sendctl/internal/core/domain"

	"github.com/pion/webrtc/v4"
)

// FromOutboundRTP keeps only the fields adaptation tracking reads.
func FromOutboundRTP(s webrtc.OutboundRTPStreamStats) domain.OutboundStreamStats {
	var durations map[string]float64
	if len(s.QualityLimitationDurations) > 0 {
		durations = make(map[string]float64, len(s.QualityLimitationDurations))
		for reason, seconds := range s.QualityLimitationDurations {
			durations[reason] = seconds
		}
	}

	return domain.OutboundStreamStats{
		FrameWidth:                         s.FrameWidth,
		FrameHeight:                        s.FrameHeight,
		FramesPerSecond:                    s.FramesPerSecond,
		QualityLimitationReason:            string(s.QualityLimitationReason),
		QualityLimitationResolutionChanges: s.QualityLimitationResolutionChanges,
		QualityLimitationDurations:         durations,
		EncoderImplementation:              s.EncoderImplementation,
		PowerEfficientEncoder:              s.PowerEfficientEncoder,
	}
}
