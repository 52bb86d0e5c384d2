package native

import (
	"context"
	"fmt"
	"net/http"

	"sendctl/internal/core/domain"
	"sendctl/pkg/errors"
	"sendctl/pkg/logger"
	"sendctl/pkg/tracing"

	"go.uber.org/zap"
)

// Bridge implements ports.SenderEngine on top of a Library. Every buffer a
// getter hands out is released before the call returns, and every set call
// uses a transient buffer scoped to that call.
type Bridge struct {
	lib Library
	log *logger.ContextLogger
}

// NewBridge logs failures with the trace and sender ids found in the call
// context.
func NewBridge(lib Library, log *zap.SugaredLogger) *Bridge {
	return &Bridge{lib: lib, log: logger.NewContextLogger(log.Desugar())}
}

func (b *Bridge) Initialized() bool {
	return Initialized()
}

func (b *Bridge) Capabilities(ctx context.Context, kind domain.MediaKind) (domain.SenderCapabilities, error) {
	if !kind.Valid() {
		return domain.SenderCapabilities{}, errors.NewValidationError(fmt.Sprintf("unknown media kind %d", uint32(kind)))
	}

	ctx, span := tracing.TraceEngineCall(ctx, "GetCapabilities", tracing.MediaKindKey.String(kind.String()))
	defer span.End()

	var caps domain.SenderCapabilities
	err := b.withBuffer(ctx, "GetCapabilities",
		func() (Buffer, Status) { return b.lib.SenderCapabilities(uint32(kind)) },
		func(data []byte) (err error) {
			caps, err = DecodeCapabilities(data)
			return err
		})
	return caps, err
}

func (b *Bridge) Parameters(ctx context.Context, sender domain.SenderHandle) (domain.SendParameters, error) {
	ctx, span := tracing.TraceEngineCall(ctx, "GetParameters", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	var params domain.SendParameters
	err := b.withBuffer(ctx, "GetParameters",
		func() (Buffer, Status) { return b.lib.SenderParameters(uint64(sender)) },
		func(data []byte) (err error) {
			params, err = DecodeParameters(data)
			return err
		})
	return params, err
}

func (b *Bridge) SetParameters(ctx context.Context, sender domain.SenderHandle, params domain.SendParameters) error {
	ctx, span := tracing.TraceEngineCall(ctx, "SetParameters", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	return b.withTransient(ctx, "SetParameters", EncodeParameters(params), func(buf Buffer) Status {
		return b.lib.SetSenderParameters(uint64(sender), buf)
	})
}

func (b *Bridge) DegradationPreference(ctx context.Context, sender domain.SenderHandle) (domain.DegradationPreference, error) {
	ctx, span := tracing.TraceEngineCall(ctx, "GetDegradationPreference", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	value, status := b.lib.SenderDegradationPreference(uint64(sender))
	if status != StatusOK {
		return domain.DegradationPreferenceUnset, b.fail(ctx, "GetDegradationPreference", status)
	}
	pref, ok := DecodePreference(value)
	if !ok {
		err := errors.NewNativeCallError("GetDegradationPreference", int32(StatusError),
			fmt.Sprintf("engine returned unknown degradation preference %d", value))
		tracing.RecordError(ctx, err)
		return domain.DegradationPreferenceUnset, err
	}
	return pref, nil
}

func (b *Bridge) SetDegradationPreference(ctx context.Context, sender domain.SenderHandle, pref domain.DegradationPreference) error {
	if !pref.Valid() {
		return errors.NewValidationError(fmt.Sprintf("unknown degradation preference %d", int32(pref)))
	}

	ctx, span := tracing.TraceEngineCall(ctx, "SetDegradationPreference", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	if status := b.lib.SetSenderDegradationPreference(uint64(sender), EncodePreference(pref)); status != StatusOK {
		return b.fail(ctx, "SetDegradationPreference", status)
	}
	return nil
}

func (b *Bridge) ReplaceTrack(ctx context.Context, sender domain.SenderHandle, track domain.TrackHandle) (bool, error) {
	ctx, span := tracing.TraceEngineCall(ctx, "ReplaceTrack",
		tracing.SenderHandleKey.Int64(int64(sender)),
		tracing.TrackHandleKey.Int64(int64(track)),
	)
	defer span.End()

	if status := b.lib.SenderReplaceTrack(uint64(sender), uint64(track)); status != StatusOK {
		return false, b.fail(ctx, "ReplaceTrack", status)
	}
	return true, nil
}

func (b *Bridge) Track(ctx context.Context, sender domain.SenderHandle) (*domain.Track, error) {
	ctx, span := tracing.TraceEngineCall(ctx, "GetTrack", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	var track *domain.Track
	err := b.withBuffer(ctx, "GetTrack",
		func() (Buffer, Status) { return b.lib.SenderTrack(uint64(sender)) },
		func(data []byte) (err error) {
			track, err = DecodeTrack(data)
			return err
		})
	return track, err
}

func (b *Bridge) ReleaseSender(ctx context.Context, sender domain.SenderHandle) error {
	ctx, span := tracing.TraceEngineCall(ctx, "ReleaseSender", tracing.SenderHandleKey.Int64(int64(sender)))
	defer span.End()

	if status := b.lib.ReleaseSender(uint64(sender)); status != StatusOK {
		return b.fail(ctx, "ReleaseSender", status)
	}
	b.log.LogDebug(ctx, "Sender released", zap.Uint64("sender_handle", uint64(sender)))
	return nil
}

// withBuffer runs a getter and hands its buffer to read. The buffer is
// released on every path once the getter succeeded; on failure it is never
// read.
func (b *Bridge) withBuffer(ctx context.Context, op string, get func() (Buffer, Status), read func([]byte) error) error {
	buf, status := get()
	if status != StatusOK {
		if buf != nil {
			buf.Release()
		}
		return b.fail(ctx, op, status)
	}
	if buf == nil {
		err := errors.NewNativeCallError(op, int32(StatusError), "engine returned no buffer")
		tracing.RecordError(ctx, err)
		return err
	}

	guard := own(buf)
	defer guard.Release()

	if err := read(guard.Bytes()); err != nil {
		appErr := errors.WrapError(err, errors.ErrCodeNativeCall, fmt.Sprintf("%s returned an unreadable buffer", op), http.StatusBadGateway)
		tracing.RecordError(ctx, appErr)
		b.log.LogError(ctx, err, "Failed to decode engine buffer", zap.String("operation", op))
		return appErr
	}
	return nil
}

// withTransient copies data into a buffer from the engine allocator, runs
// call with it and releases the buffer when call returns.
func (b *Bridge) withTransient(ctx context.Context, op string, data []byte, call func(Buffer) Status) error {
	buf, status := b.lib.Alloc(len(data))
	if status != StatusOK {
		if buf != nil {
			buf.Release()
		}
		return b.fail(ctx, op, status)
	}
	if buf == nil {
		err := errors.NewNativeCallError(op, int32(StatusError), "engine allocator returned no buffer")
		tracing.RecordError(ctx, err)
		return err
	}

	guard := own(buf)
	defer guard.Release()

	if n := copy(guard.Bytes(), data); n != len(data) {
		err := errors.NewNativeCallError(op, int32(StatusError),
			fmt.Sprintf("engine allocated %d bytes, need %d", n, len(data)))
		tracing.RecordError(ctx, err)
		return err
	}

	if status := call(buf); status != StatusOK {
		return b.fail(ctx, op, status)
	}
	return nil
}

func (b *Bridge) fail(ctx context.Context, op string, status Status) error {
	var err *errors.AppError
	switch status {
	case StatusInvalidHandle:
		err = errors.NewInvalidHandleError(op)
	case StatusNotInitialized:
		err = errors.NewNotInitializedError()
	case StatusAlreadyInitialized:
		err = errors.NewAlreadyInitializedError()
	default:
		err = errors.NewNativeCallError(op, int32(status), b.lib.LastError())
	}
	err.NativeStatus = int32(status)

	tracing.AddSpanAttributes(ctx, tracing.NativeStatusKey.Int64(int64(status)))
	tracing.RecordError(ctx, err)
	b.log.LogWarn(ctx, "Engine call failed",
		zap.String("operation", op),
		zap.String("status", status.String()),
		zap.String("engine_error", err.Message),
	)
	return err
}
