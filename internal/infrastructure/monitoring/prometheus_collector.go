package monitoring

import (
	"strconv"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

type PrometheusCollector struct {
	// Senders
	sendersActive   *prometheus.GaugeVec
	sendersAttached *prometheus.CounterVec

	// Engine boundary
	engineFailures     *prometheus.CounterVec
	validationFailures *prometheus.CounterVec

	// Adaptation
	adaptationChanges *prometheus.CounterVec
	frameWidth        *prometheus.GaugeVec
	frameHeight       *prometheus.GaugeVec
	framesPerSecond   *prometheus.GaugeVec
	limitedSeconds    *prometheus.GaugeVec
}

// NewPrometheusCollector registers with the default registerer.
func NewPrometheusCollector() *PrometheusCollector {
	return NewPrometheusCollectorWithRegistry(prometheus.DefaultRegisterer)
}

func NewPrometheusCollectorWithRegistry(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		sendersActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendctl_senders_active",
			Help: "Number of senders attached and not yet disposed",
		}, []string{"kind"}),

		sendersAttached: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sendctl_senders_attached_total",
			Help: "Total number of senders attached",
		}, []string{"kind"}),

		engineFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sendctl_engine_call_failures_total",
			Help: "Engine calls that returned a non-success status",
		}, []string{"operation", "status"}),

		validationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sendctl_validation_failures_total",
			Help: "Calls rejected locally before reaching the engine",
		}, []string{"operation"}),

		adaptationChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sendctl_adaptation_changes_total",
			Help: "Encoder adaptation changes by resulting limitation reason",
		}, []string{"sender_id", "reason"}),

		frameWidth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendctl_sender_frame_width",
			Help: "Encoded frame width after the last adaptation change",
		}, []string{"sender_id"}),

		frameHeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendctl_sender_frame_height",
			Help: "Encoded frame height after the last adaptation change",
		}, []string{"sender_id"}),

		framesPerSecond: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendctl_sender_frames_per_second",
			Help: "Encoded framerate after the last adaptation change",
		}, []string{"sender_id"}),

		limitedSeconds: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sendctl_sender_quality_limitation_seconds",
			Help: "Cumulative time the encoder spent limited, by reason",
		}, []string{"sender_id", "reason"}),
	}
}

func (p *PrometheusCollector) RecordSenderAttached(kind domain.MediaKind) {
	p.sendersAttached.WithLabelValues(kind.String()).Inc()
	p.sendersActive.WithLabelValues(kind.String()).Inc()
}

func (p *PrometheusCollector) RecordSenderDisposed(kind domain.MediaKind) {
	p.sendersActive.WithLabelValues(kind.String()).Dec()
}

func (p *PrometheusCollector) RecordEngineFailure(operation string, status int32) {
	p.engineFailures.WithLabelValues(operation, strconv.Itoa(int(status))).Inc()
}

func (p *PrometheusCollector) RecordValidationFailure(operation string) {
	p.validationFailures.WithLabelValues(operation).Inc()
}

func (p *PrometheusCollector) RecordAdaptationChange(change domain.AdaptationChange) {
	id := string(change.SenderID)
	current := change.Current

	p.adaptationChanges.WithLabelValues(id, current.QualityLimitationReason.String()).Inc()
	p.frameWidth.WithLabelValues(id).Set(float64(current.FrameWidth))
	p.frameHeight.WithLabelValues(id).Set(float64(current.FrameHeight))
	p.framesPerSecond.WithLabelValues(id).Set(current.FramesPerSecond)

	for reason, seconds := range current.QualityLimitationDurations() {
		p.limitedSeconds.WithLabelValues(id, reason.String()).Set(seconds)
	}
}

// ForgetSender drops the per-sender series once a sender is gone.
func (p *PrometheusCollector) ForgetSender(senderID domain.SenderID) {
	id := string(senderID)
	p.frameWidth.DeleteLabelValues(id)
	p.frameHeight.DeleteLabelValues(id)
	p.framesPerSecond.DeleteLabelValues(id)
	p.adaptationChanges.DeletePartialMatch(prometheus.Labels{"sender_id": id})
	p.limitedSeconds.DeletePartialMatch(prometheus.Labels{"sender_id": id})
}
