package ports

import (
	"context"

	"sendctl/internal/core/domain"
)

// SenderEngine is the boundary to the media engine as seen by the sender
// facade. Calls are synchronous and may block; ctx is used for tracing only,
// engine calls cannot be cancelled once issued.
type SenderEngine interface {
	Initialized() bool

	Capabilities(ctx context.Context, kind domain.MediaKind) (domain.SenderCapabilities, error)
	Parameters(ctx context.Context, sender domain.SenderHandle) (domain.SendParameters, error)
	SetParameters(ctx context.Context, sender domain.SenderHandle, params domain.SendParameters) error
	DegradationPreference(ctx context.Context, sender domain.SenderHandle) (domain.DegradationPreference, error)
	SetDegradationPreference(ctx context.Context, sender domain.SenderHandle, pref domain.DegradationPreference) error

	// ReplaceTrack attaches track to the sender, or clears it when track is 0.
	// A false result means the engine refused the track.
	ReplaceTrack(ctx context.Context, sender domain.SenderHandle, track domain.TrackHandle) (bool, error)
	// Track returns nil when no track is attached.
	Track(ctx context.Context, sender domain.SenderHandle) (*domain.Track, error)
	ReleaseSender(ctx context.Context, sender domain.SenderHandle) error
}

// TrackFactory creates local tracks and senders inside the engine. Only the
// in-process backend provides one; with a loaded library senders are created
// by the host application.
type TrackFactory interface {
	CreateTrack(kind domain.MediaKind, id string, width, height int) (domain.TrackHandle, error)
	AddSender(track domain.TrackHandle) (domain.SenderHandle, error)
}
