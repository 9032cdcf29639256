package badges

import (
	"context"
	"fmt"
)

// Store はバッジ判定に必要な集計と記録を提供します。
type Store interface {
	BadgeStats(ctx context.Context, userID string) (Stats, error)
	UnlockBadges(ctx context.Context, userID string, ids []string) ([]string, error)
}

// Service は集計値からバッジを判定し、新たに解除したものを記録します。
type Service struct {
	store Store
	defs  []Definition
}

// NewService は組み込み定義を使う Service を作成します。
func NewService(store Store) *Service {
	return &Service{store: store, defs: Defaults()}
}

// Definitions はバッジ定義の一覧を返します。
func (s *Service) Definitions() []Definition {
	return s.defs
}

// Refresh は userID のバッジを再判定し、今回新たに解除したバッジを返します。
func (s *Service) Refresh(ctx context.Context, userID string) ([]Definition, error) {
	stats, err := s.store.BadgeStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load badge stats: %w", err)
	}
	eligible := Evaluate(s.defs, stats)
	if len(eligible) == 0 {
		return nil, nil
	}
	ids := make([]string, len(eligible))
	for i, d := range eligible {
		ids[i] = d.ID
	}
	newIDs, err := s.store.UnlockBadges(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to unlock badges: %w", err)
	}
	byID := make(map[string]Definition, len(s.defs))
	for _, d := range s.defs {
		byID[d.ID] = d
	}
	unlocked := make([]Definition, 0, len(newIDs))
	for _, id := range newIDs {
		unlocked = append(unlocked, byID[id])
	}
	return unlocked, nil
}
