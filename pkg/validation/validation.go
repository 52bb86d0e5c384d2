package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"sendctl/internal/core/domain"
)

var (
	// SenderIDRegex validates sender ID format
	SenderIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// RIDRegex follows the RID grammar: alphanumerics, at most 16 characters.
	RIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]{1,16}$`)

	operatorRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

// ValidateSenderID validates sender ID
func ValidateSenderID(id string) error {
	if id == "" {
		return fmt.Errorf("sender id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("sender id is too long (max 64 characters)")
	}
	if !SenderIDRegex.MatchString(id) {
		return fmt.Errorf("sender id contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateOperator validates the operator name a token is issued for
func ValidateOperator(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("operator is required")
	}
	if len(name) < 3 {
		return fmt.Errorf("operator must be at least 3 characters")
	}
	if len(name) > 50 {
		return fmt.Errorf("operator is too long (max 50 characters)")
	}
	if !operatorRegex.MatchString(name) {
		return fmt.Errorf("operator contains invalid characters (only letters, numbers, _, -, . allowed)")
	}
	return nil
}

// ValidateTrackID validates a track identifier
func ValidateTrackID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("track id is required")
	}
	if len(id) > 255 {
		return fmt.Errorf("track id is too long (max 255 characters)")
	}
	return nil
}

// ValidateDimensions checks a video source resolution
func ValidateDimensions(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("dimensions must not be negative")
	}
	if (width == 0) != (height == 0) {
		return fmt.Errorf("width and height must both be set or both be zero")
	}
	return nil
}

// ValidateEncoding checks field values of one encoding. Scale factor bounds
// are enforced by the sender, which knows the track resolution.
func ValidateEncoding(enc domain.EncodingParameters) error {
	if enc.RID != "" && !RIDRegex.MatchString(enc.RID) {
		return fmt.Errorf("rid %q is invalid (1-16 alphanumeric characters)", enc.RID)
	}
	if enc.MaxBitrate != nil && enc.MinBitrate != nil && *enc.MinBitrate > *enc.MaxBitrate {
		return fmt.Errorf("min bitrate %d exceeds max bitrate %d", *enc.MinBitrate, *enc.MaxBitrate)
	}
	if enc.MaxFramerate != nil {
		if fps := *enc.MaxFramerate; math.IsNaN(fps) || math.IsInf(fps, 0) || fps < 0 {
			return fmt.Errorf("max framerate %v is invalid", fps)
		}
	}
	if enc.ScaleResolutionDownBy != nil {
		if scale := *enc.ScaleResolutionDownBy; math.IsNaN(scale) || math.IsInf(scale, 0) {
			return fmt.Errorf("scale resolution down by %v is invalid", scale)
		}
	}
	return nil
}

// ValidateSendParameters validates every encoding and the preference
func ValidateSendParameters(params domain.SendParameters) error {
	if params.TransactionID == "" {
		return fmt.Errorf("transaction id is required")
	}
	for i, enc := range params.Encodings {
		if err := ValidateEncoding(enc); err != nil {
			return fmt.Errorf("encoding %d: %w", i, err)
		}
	}
	if !params.DegradationPreference.Valid() {
		return fmt.Errorf("unknown degradation preference %d", int32(params.DegradationPreference))
	}
	return nil
}
