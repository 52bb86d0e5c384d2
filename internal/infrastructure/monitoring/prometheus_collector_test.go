package monitoring

import (
	"testing"

	"sendctl/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector_Senders(t *testing.T) {
	collector := NewPrometheusCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordSenderAttached(domain.MediaKindVideo)
	collector.RecordSenderAttached(domain.MediaKindVideo)
	collector.RecordSenderDisposed(domain.MediaKindVideo)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.sendersActive.WithLabelValues("video")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.sendersAttached.WithLabelValues("video")))
}

func TestPrometheusCollector_Failures(t *testing.T) {
	collector := NewPrometheusCollectorWithRegistry(prometheus.NewRegistry())

	collector.RecordEngineFailure("SetParameters", -3)
	collector.RecordEngineFailure("SetParameters", -3)
	collector.RecordValidationFailure("SetParameters")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.engineFailures.WithLabelValues("SetParameters", "-3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.validationFailures.WithLabelValues("SetParameters")))
}

func TestPrometheusCollector_AdaptationChange(t *testing.T) {
	collector := NewPrometheusCollectorWithRegistry(prometheus.NewRegistry())

	current := domain.NewAdaptationState(domain.OutboundStreamStats{
		FrameWidth:                 640,
		FrameHeight:                360,
		FramesPerSecond:            24,
		QualityLimitationReason:    "bandwidth",
		QualityLimitationDurations: map[string]float64{"bandwidth": 3},
	})
	collector.RecordAdaptationChange(domain.AdaptationChange{SenderID: "video-1", Current: current})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.adaptationChanges.WithLabelValues("video-1", "bandwidth")))
	assert.Equal(t, 640.0, testutil.ToFloat64(collector.frameWidth.WithLabelValues("video-1")))
	assert.Equal(t, 24.0, testutil.ToFloat64(collector.framesPerSecond.WithLabelValues("video-1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.limitedSeconds.WithLabelValues("video-1", "bandwidth")))

	collector.ForgetSender("video-1")
	assert.Equal(t, 0, testutil.CollectAndCount(collector.frameWidth))
	assert.Equal(t, 0, testutil.CollectAndCount(collector.adaptationChanges))
}

func TestNewPrometheusCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewPrometheusCollectorWithRegistry(prometheus.NewRegistry())
		NewPrometheusCollectorWithRegistry(prometheus.NewRegistry())
	})
}
