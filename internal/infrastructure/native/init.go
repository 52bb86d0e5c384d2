package native

import (
	"sync"

	"sendctl/pkg/errors"
	"sendctl/pkg/fieldtrial"
)

// InitOptions are applied once, when the engine starts.
type InitOptions struct {
	// FieldTrials is nil when no overrides are given.
	FieldTrials   *string
	NativeLogging bool
}

var (
	initMu sync.Mutex
	active Library
)

// Initialize starts the engine for the lifetime of the process. It must run
// before any session is created. A second call while the engine is running
// fails with an already-initialized error and does not reach the engine.
func Initialize(lib Library, opts InitOptions) error {
	if lib == nil {
		return errors.NewValidationError("engine library is nil")
	}
	if !fieldtrial.Validate(opts.FieldTrials) {
		return errors.NewValidationError("malformed field trial string").
			WithContext("field_trials", *opts.FieldTrials)
	}

	initMu.Lock()
	defer initMu.Unlock()

	if active != nil {
		return errors.NewAlreadyInitializedError()
	}

	switch status := lib.Initialize(opts.FieldTrials, opts.NativeLogging); status {
	case StatusOK:
	case StatusAlreadyInitialized:
		return errors.NewAlreadyInitializedError()
	default:
		return errors.NewNativeCallError("Initialize", int32(status), lib.LastError())
	}

	active = lib
	return nil
}

// Shutdown stops the engine started by Initialize.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if active == nil {
		return errors.NewNotInitializedError()
	}

	lib := active
	active = nil
	if status := lib.Shutdown(); status != StatusOK {
		return errors.NewNativeCallError("Shutdown", int32(status), lib.LastError())
	}
	return nil
}

func Initialized() bool {
	initMu.Lock()
	defer initMu.Unlock()
	return active != nil
}
