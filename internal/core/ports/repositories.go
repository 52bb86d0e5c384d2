package ports

import (
	"context"

	"sendctl/internal/core/domain"
)

// StatsRepository keeps the latest outbound statistics snapshot per sender.
// Latest returns domain.ErrNoSnapshot when nothing was saved yet.
type StatsRepository interface {
	Save(ctx context.Context, senderID domain.SenderID, stats domain.OutboundStreamStats) error
	Latest(ctx context.Context, senderID domain.SenderID) (domain.OutboundStreamStats, error)
	Delete(ctx context.Context, senderID domain.SenderID) error
}

// StatsSource is what the adaptation monitor polls.
type StatsSource interface {
	Latest(ctx context.Context, senderID domain.SenderID) (domain.OutboundStreamStats, error)
}
