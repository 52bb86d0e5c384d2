package ports

import (
	"context"

	"sendctl/internal/core/domain"
)

// MetricsCollector receives counters from the core services.
type MetricsCollector interface {
	RecordSenderAttached(kind domain.MediaKind)
	RecordSenderDisposed(kind domain.MediaKind)
	RecordEngineFailure(operation string, status int32)
	RecordValidationFailure(operation string)
	RecordAdaptationChange(change domain.AdaptationChange)
}

// AdaptationPublisher forwards change events outside the process.
type AdaptationPublisher interface {
	Publish(ctx context.Context, change domain.AdaptationChange) error
}
