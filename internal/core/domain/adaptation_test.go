package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQualityLimitationReason(t *testing.T) {
	tests := []struct {
		in   string
		want QualityLimitationReason
	}{
		{"", QualityLimitationNone},
		{"none", QualityLimitationNone},
		{"NONE", QualityLimitationNone},
		{"cpu", QualityLimitationCPU},
		{"CPU", QualityLimitationCPU},
		{"Cpu", QualityLimitationCPU},
		{"bandwidth", QualityLimitationBandwidth},
		{"BandWidth", QualityLimitationBandwidth},
		{"other", QualityLimitationOther},
		{"throttled", QualityLimitationOther},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseQualityLimitationReason(tt.in))
		})
	}
}

func TestNewAdaptationState_MergesDurationsByReason(t *testing.T) {
	stats := OutboundStreamStats{
		QualityLimitationDurations: map[string]float64{"cpu": 1, "CPU": 2, "bandwidth": 0.5},
	}
	state := NewAdaptationState(stats)
	stats.QualityLimitationDurations["cpu"] = 100

	assert.Equal(t, 3*time.Second, state.QualityLimitationDuration(QualityLimitationCPU))
	assert.Equal(t, 500*time.Millisecond, state.QualityLimitationDuration(QualityLimitationBandwidth))
	assert.Zero(t, state.QualityLimitationDuration(QualityLimitationOther))
}

func TestAdaptationState_JSONKeepsDurations(t *testing.T) {
	state := NewAdaptationState(OutboundStreamStats{
		FrameWidth:                 640,
		FrameHeight:                360,
		FramesPerSecond:            15,
		QualityLimitationReason:    "bandwidth",
		QualityLimitationDurations: map[string]float64{"bandwidth": 12.5, "cpu": 3},
		EncoderImplementation:      "libvpx",
	})

	data, err := json.Marshal(state)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quality_limitation_durations":{"bandwidth":12.5,"cpu":3}`)
	assert.Contains(t, string(data), `"quality_limitation_reason":"bandwidth"`)

	var got AdaptationState
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, state.QualityLimitationDurations(), got.QualityLimitationDurations())
	assert.Equal(t, uint32(640), got.FrameWidth)
	assert.Equal(t, QualityLimitationBandwidth, got.QualityLimitationReason)
	assert.Equal(t, "libvpx", got.EncoderImplementation)
}

func TestAdaptationState_JSONOmitsEmptyDurations(t *testing.T) {
	data, err := json.Marshal(NewAdaptationState(OutboundStreamStats{FrameWidth: 320}))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quality_limitation_durations")
}

func TestDegradationPreference_ZeroValueIsUnset(t *testing.T) {
	var params SendParameters
	require.NoError(t, json.Unmarshal([]byte(`{"transaction_id":"tx","encodings":[{"active":true}]}`), &params))
	assert.Equal(t, DegradationPreferenceUnset, params.DegradationPreference)

	_, err := ParseDegradationPreference("fastest")
	assert.Error(t, err)
}
