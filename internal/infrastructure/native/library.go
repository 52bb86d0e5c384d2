package native

// Library is the raw engine boundary. Handles are opaque; buffers returned
// from getters are owned by the engine and must be released by the caller.
// A getter that reports a non-OK status returns no buffer.
type Library interface {
	// Initialize applies field trials. fieldTrials nil means "none given".
	Initialize(fieldTrials *string, nativeLogging bool) Status
	Shutdown() Status

	// Alloc returns a transient buffer of at least size bytes for set calls.
	Alloc(size int) (Buffer, Status)

	SenderCapabilities(kind uint32) (Buffer, Status)
	SenderParameters(sender uint64) (Buffer, Status)
	SetSenderParameters(sender uint64, params Buffer) Status
	// SenderDegradationPreference reports DegradationPreferenceUnset when
	// the preference was never set.
	SenderDegradationPreference(sender uint64) (int32, Status)
	SetSenderDegradationPreference(sender uint64, pref int32) Status
	// SenderReplaceTrack clears the track when track is 0.
	SenderReplaceTrack(sender uint64, track uint64) Status
	SenderTrack(sender uint64) (Buffer, Status)
	ReleaseSender(sender uint64) Status

	// LastError describes the most recent failure, or "".
	LastError() string
}
