package service

import (
	"context"
	"time"

	"github.com/stockflow/stockflow-backend/pkg/tenant"
)

// Suggest derives the reorder suggestion for a (product, location) pair.
// Returns false when the level needs no reorder. Suggestions are cached for
// their validity window and recomputed on demand after that.
func (s *StockService) Suggest(ctx context.Context, productID, locationID string) (*ReorderSuggestion, bool, error) {
	tenantID, err := tenant.TenantID(ctx)
	if err != nil {
		return nil, false, err
	}

	key := reorderCacheKey(tenantID, productID, locationID)
	if s.cache != nil {
		var cached ReorderSuggestion
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn().Err(err).Str("product_id", productID).Msg("reorder suggestion cache read failed")
		}
		if hit && cached.ExpiresAt.After(time.Now()) {
			return &cached, true, nil
		}
	}

	lvl, err := s.levelRepo.Get(ctx, productID, locationID)
	if err != nil {
		return nil, false, err
	}

	s.checkConsistency(ctx, productID, locationID, lvl.Quantity)

	suggestion, ok := SuggestFor(lvl, time.Now(), s.cfg.SuggestionTTL)
	if !ok {
		return nil, false, nil
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, suggestion, s.cfg.SuggestionTTL); err != nil {
			s.logger.Warn().Err(err).Str("product_id", productID).Msg("reorder suggestion cache write failed")
		}
	}

	return suggestion, true, nil
}

// ListSuggestions derives suggestions for every level at or below its
// reorder threshold
func (s *StockService) ListSuggestions(ctx context.Context) ([]*ReorderSuggestion, error) {
	levels, err := s.levelRepo.ListBelowReorderPoint(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	suggestions := make([]*ReorderSuggestion, 0, len(levels))
	for _, lvl := range levels {
		if suggestion, ok := SuggestFor(lvl, now, s.cfg.SuggestionTTL); ok {
			suggestions = append(suggestions, suggestion)
		}
	}
	return suggestions, nil
}

// checkConsistency compares a batch-tracked level against its batch sum.
// A mismatch is a data-quality signal, not a failure: it is logged and
// published, and the read proceeds with best-effort data.
func (s *StockService) checkConsistency(ctx context.Context, productID, locationID string, levelQty int) {
	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil || !product.BatchTracked {
		return
	}

	batchSum, err := s.batchRepo.SumNonExpired(ctx, productID, locationID)
	if err != nil {
		s.logger.Warn().Err(err).Str("product_id", productID).Msg("batch sum check failed")
		return
	}

	if batchSum != levelQty {
		s.logger.Warn().
			Str("product_id", productID).
			Str("location_id", locationID).
			Int("level_quantity", levelQty).
			Int("batch_sum", batchSum).
			Msg("stock level disagrees with batch sum")
		s.publisher.PublishConsistencyWarning(ctx, productID, locationID, levelQty, batchSum)
	}
}
