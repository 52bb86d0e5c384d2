package memory

import (
	"context"
	"sync"

	"sendctl/internal/core/domain"
	"sendctl/internal/core/ports"
)

type MemoryStatsRepository struct {
	stats map[domain.SenderID]domain.OutboundStreamStats
	mu    sync.RWMutex
}

func NewMemoryStatsRepository() ports.StatsRepository {
	return &MemoryStatsRepository{
		stats: make(map[domain.SenderID]domain.OutboundStreamStats),
	}
}

func (r *MemoryStatsRepository) Save(ctx context.Context, senderID domain.SenderID, stats domain.OutboundStreamStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats[senderID] = cloneStats(stats)
	return nil
}

func (r *MemoryStatsRepository) Latest(ctx context.Context, senderID domain.SenderID) (domain.OutboundStreamStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats, exists := r.stats[senderID]
	if !exists {
		return domain.OutboundStreamStats{}, domain.ErrNoSnapshot
	}
	return cloneStats(stats), nil
}

func (r *MemoryStatsRepository) Delete(ctx context.Context, senderID domain.SenderID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.stats, senderID)
	return nil
}

func cloneStats(s domain.OutboundStreamStats) domain.OutboundStreamStats {
	if s.QualityLimitationDurations != nil {
		durations := make(map[string]float64, len(s.QualityLimitationDurations))
		for k, v := range s.QualityLimitationDurations {
			durations[k] = v
		}
		s.QualityLimitationDurations = durations
	}
	return s
}
