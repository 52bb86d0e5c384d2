package domain

import "fmt"

// CodecCapability describes one codec the engine can send.
type CodecCapability struct {
	MimeType    string `json:"mime_type"`
	ClockRate   uint32 `json:"clock_rate"`
	Channels    uint16 `json:"channels,omitempty"`
	SDPFmtpLine string `json:"sdp_fmtp_line,omitempty"`
}

// SenderCapabilities is a read-only snapshot for one media kind. It is
// recomputed on every query.
type SenderCapabilities struct {
	Kind             MediaKind         `json:"kind"`
	Codecs           []CodecCapability `json:"codecs"`
	HeaderExtensions []string          `json:"header_extensions,omitempty"`
}

// EncodingParameters are the per-encoding transmission settings. Optional
// values are nil when the engine default applies.
type EncodingParameters struct {
	RID                   string   `json:"rid,omitempty"`
	Active                bool     `json:"active"`
	MaxBitrate            *uint64  `json:"max_bitrate,omitempty"`
	MinBitrate            *uint64  `json:"min_bitrate,omitempty"`
	MaxFramerate          *float64 `json:"max_framerate,omitempty"`
	ScaleResolutionDownBy *float64 `json:"scale_resolution_down_by,omitempty"`
}

// SendParameters is what a get-parameters call returns. It must be handed
// back to set-parameters with the same shape and an untouched TransactionID.
type SendParameters struct {
	TransactionID         string                `json:"transaction_id"`
	Encodings             []EncodingParameters  `json:"encodings"`
	DegradationPreference DegradationPreference `json:"degradation_preference"`
}

// DegradationPreference decides what the encoder gives up first under
// CPU or bandwidth pressure.
type DegradationPreference int32

// The zero value is Unset, so a request that omits the preference leaves it
// unset. Engine values are offset by one at the native boundary.
const (
	// DegradationPreferenceUnset is an observable state of its own, not a
	// stand-in for any default.
	DegradationPreferenceUnset DegradationPreference = iota
	DegradationPreferenceMaintainFramerateAndResolution
	DegradationPreferenceMaintainFramerate
	DegradationPreferenceMaintainResolution
	DegradationPreferenceBalanced
)

var degradationPreferenceNames = map[DegradationPreference]string{
	DegradationPreferenceUnset:                          "unset",
	DegradationPreferenceMaintainFramerateAndResolution: "maintain-framerate-and-resolution",
	DegradationPreferenceMaintainFramerate:              "maintain-framerate",
	DegradationPreferenceMaintainResolution:             "maintain-resolution",
	DegradationPreferenceBalanced:                       "balanced",
}

func (p DegradationPreference) String() string {
	if name, ok := degradationPreferenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("DegradationPreference(%d)", int32(p))
}

// Valid reports whether p is one of the known values, Unset included.
func (p DegradationPreference) Valid() bool {
	_, ok := degradationPreferenceNames[p]
	return ok
}

// ParseDegradationPreference is the inverse of String.
func ParseDegradationPreference(s string) (DegradationPreference, error) {
	for p, name := range degradationPreferenceNames {
		if name == s {
			return p, nil
		}
	}
	return DegradationPreferenceUnset, fmt.Errorf("unknown degradation preference %q", s)
}

func (p DegradationPreference) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *DegradationPreference) UnmarshalText(b []byte) error {
	parsed, err := ParseDegradationPreference(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
