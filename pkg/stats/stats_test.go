package stats

import (
	"testing"

	"sendctl/internal/core/domain"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
)

func TestFromOutboundRTP(t *testing.T) {
	in := webrtc.OutboundRTPStreamStats{
		SSRC:                               1234,
		Kind:                               "video",
		BytesSent:                          1 << 20,
		FrameWidth:                         1280,
		FrameHeight:                        720,
		FramesPerSecond:                    29.5,
		QualityLimitationReason:            webrtc.QualityLimitationReasonBandwidth,
		QualityLimitationResolutionChanges: 3,
		QualityLimitationDurations:         map[string]float64{"none": 10, "bandwidth": 2.5},
		EncoderImplementation:              "libvpx",
		PowerEfficientEncoder:              false,
	}

	out := FromOutboundRTP(in)
	assert.Equal(t, uint32(1280), out.FrameWidth)
	assert.Equal(t, uint32(720), out.FrameHeight)
	assert.Equal(t, 29.5, out.FramesPerSecond)
	assert.Equal(t, "bandwidth", out.QualityLimitationReason)
	assert.Equal(t, uint32(3), out.QualityLimitationResolutionChanges)
	assert.Equal(t, "libvpx", out.EncoderImplementation)

	// the duration map is not shared with the input
	in.QualityLimitationDurations["bandwidth"] = 99
	assert.Equal(t, 2.5, out.QualityLimitationDurations["bandwidth"])

	state := domain.NewAdaptationState(out)
	assert.Equal(t, domain.QualityLimitationBandwidth, state.QualityLimitationReason)
}

func TestFromOutboundRTP_EmptyReasonIsNone(t *testing.T) {
	out := FromOutboundRTP(webrtc.OutboundRTPStreamStats{})
	assert.Nil(t, out.QualityLimitationDurations)
	assert.Equal(t, domain.QualityLimitationNone, domain.ParseQualityLimitationReason(out.QualityLimitationReason))
}
