package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// QualityLimitationReason is why the encoder currently limits resolution
// and/or framerate.
type QualityLimitationReason int

const (
	QualityLimitationNone QualityLimitationReason = iota
	QualityLimitationCPU
	QualityLimitationBandwidth
	QualityLimitationOther
)

func (r QualityLimitationReason) String() string {
	switch r {
	case QualityLimitationNone:
		return "none"
	case QualityLimitationCPU:
		return "cpu"
	case QualityLimitationBandwidth:
		return "bandwidth"
	default:
		return "other"
	}
}

func (r QualityLimitationReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *QualityLimitationReason) UnmarshalText(b []byte) error {
	*r = ParseQualityLimitationReason(string(b))
	return nil
}

// ParseQualityLimitationReason maps the free-text reason reported in
// statistics, ignoring case. Empty text is None, unknown text is Other.
func ParseQualityLimitationReason(s string) QualityLimitationReason {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return QualityLimitationNone
	case "cpu":
		return QualityLimitationCPU
	case "bandwidth":
		return QualityLimitationBandwidth
	default:
		return QualityLimitationOther
	}
}

// OutboundStreamStats is the subset of outbound stream statistics the
// adaptation tracker consumes. It is produced outside this module.
type OutboundStreamStats struct {
	FrameWidth                         uint32             `json:"frame_width"`
	FrameHeight                        uint32             `json:"frame_height"`
	FramesPerSecond                    float64            `json:"frames_per_second"`
	QualityLimitationReason            string             `json:"quality_limitation_reason"`
	QualityLimitationResolutionChanges uint32             `json:"quality_limitation_resolution_changes"`
	QualityLimitationDurations         map[string]float64 `json:"quality_limitation_durations,omitempty"`
	EncoderImplementation              string             `json:"encoder_implementation,omitempty"`
	PowerEfficientEncoder              bool               `json:"power_efficient_encoder"`
}

// AdaptationState is an immutable snapshot of encoder adaptation.
type AdaptationState struct {
	FrameWidth                         uint32                  `json:"frame_width"`
	FrameHeight                        uint32                  `json:"frame_height"`
	FramesPerSecond                    float64                 `json:"frames_per_second"`
	QualityLimitationReason            QualityLimitationReason `json:"quality_limitation_reason"`
	QualityLimitationResolutionChanges uint32                  `json:"quality_limitation_resolution_changes"`
	EncoderImplementation              string                  `json:"encoder_implementation,omitempty"`
	PowerEfficientEncoder              bool                    `json:"power_efficient_encoder"`

	durations map[QualityLimitationReason]float64
}

// NewAdaptationState projects a statistics record. The duration map is
// copied so later changes to stats do not leak into the state.
func NewAdaptationState(stats OutboundStreamStats) AdaptationState {
	durations := make(map[QualityLimitationReason]float64, len(stats.QualityLimitationDurations))
	for reason, seconds := range stats.QualityLimitationDurations {
		durations[ParseQualityLimitationReason(reason)] += seconds
	}

	return AdaptationState{
		FrameWidth:                         stats.FrameWidth,
		FrameHeight:                        stats.FrameHeight,
		FramesPerSecond:                    stats.FramesPerSecond,
		QualityLimitationReason:            ParseQualityLimitationReason(stats.QualityLimitationReason),
		QualityLimitationResolutionChanges: stats.QualityLimitationResolutionChanges,
		EncoderImplementation:              stats.EncoderImplementation,
		PowerEfficientEncoder:              stats.PowerEfficientEncoder,
		durations:                          durations,
	}
}

// QualityLimitationDuration returns the cumulative time spent limited by reason.
func (s AdaptationState) QualityLimitationDuration(reason QualityLimitationReason) time.Duration {
	return time.Duration(s.durations[reason] * float64(time.Second))
}

// QualityLimitationDurations returns a copy of the per-reason durations in seconds.
func (s AdaptationState) QualityLimitationDurations() map[QualityLimitationReason]float64 {
	out := make(map[QualityLimitationReason]float64, len(s.durations))
	for k, v := range s.durations {
		out[k] = v
	}
	return out
}

// adaptationStateFields has the exported fields of AdaptationState without
// its JSON methods.
type adaptationStateFields AdaptationState

type adaptationStateJSON struct {
	adaptationStateFields
	QualityLimitationDurations map[string]float64 `json:"quality_limitation_durations,omitempty"`
}

// MarshalJSON writes the per-reason durations keyed by reason name.
func (s AdaptationState) MarshalJSON() ([]byte, error) {
	out := adaptationStateJSON{adaptationStateFields: adaptationStateFields(s)}
	if len(s.durations) > 0 {
		out.QualityLimitationDurations = make(map[string]float64, len(s.durations))
		for reason, seconds := range s.durations {
			out.QualityLimitationDurations[reason.String()] = seconds
		}
	}
	return json.Marshal(out)
}

func (s *AdaptationState) UnmarshalJSON(b []byte) error {
	var in adaptationStateJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = AdaptationState(in.adaptationStateFields)
	s.durations = make(map[QualityLimitationReason]float64, len(in.QualityLimitationDurations))
	for reason, seconds := range in.QualityLimitationDurations {
		s.durations[ParseQualityLimitationReason(reason)] += seconds
	}
	return nil
}

// AdaptationChange is delivered to subscribers when a sender's adaptation
// state changes between two consecutive observations.
type AdaptationChange struct {
	SenderID   SenderID        `json:"sender_id"`
	Previous   AdaptationState `json:"previous"`
	Current    AdaptationState `json:"current"`
	ObservedAt time.Time       `json:"observed_at"`
}
