package native

import (
	"fmt"

	"sendctl/internal/core/domain"
)

// Status is the result code of a call across the engine boundary.
type Status int32

const (
	StatusOK                  Status = 0
	StatusError               Status = -1
	StatusInvalidParameter    Status = -2
	StatusInvalidModification Status = -3
	StatusInvalidHandle       Status = -4
	StatusAlreadyInitialized  Status = -5
	StatusNotInitialized      Status = -6
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusInvalidModification:
		return "invalid modification"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusAlreadyInitialized:
		return "already initialized"
	case StatusNotInitialized:
		return "not initialized"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// DegradationPreferenceUnset is the value the engine reports for a sender
// whose preference was never set. It lies outside the range of real values.
const DegradationPreferenceUnset int32 = -1

// EncodePreference maps a preference to the engine's numbering, where real
// preferences start at 0 and Unset is DegradationPreferenceUnset.
func EncodePreference(p domain.DegradationPreference) int32 {
	if p == domain.DegradationPreferenceUnset {
		return DegradationPreferenceUnset
	}
	return int32(p) - 1
}

// DecodePreference is the inverse of EncodePreference. ok is false for a
// value outside the engine's numbering.
func DecodePreference(v int32) (domain.DegradationPreference, bool) {
	if v == DegradationPreferenceUnset {
		return domain.DegradationPreferenceUnset, true
	}
	if v < 0 {
		return domain.DegradationPreferenceUnset, false
	}
	p := domain.DegradationPreference(v + 1)
	if !p.Valid() {
		return domain.DegradationPreferenceUnset, false
	}
	return p, true
}
