package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/billbuddy/backend/internal/domain"
)

// AggregationConfig holds configuration for the aggregation service
type AggregationConfig struct {
	MaxRetries         int
	RetryBackoff       time.Duration
	EnableDebugLogging bool
}

// AggregationService is the sole writer of the three price-statistics
// projections. One call aggregates one batch of line items from a single
// shop visit; the whole batch lands in one atomic store transaction or not
// at all.
type AggregationService struct {
	store              domain.StatsStore
	maxRetries         int
	retryBackoff       time.Duration
	enableDebugLogging bool
	now                func() time.Time
}

// NewAggregationService creates a new aggregation service with the given
// store and configuration
func NewAggregationService(store domain.StatsStore, config AggregationConfig) *AggregationService {
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5 // Default retry budget
	}

	retryBackoff := config.RetryBackoff
	if retryBackoff <= 0 {
		retryBackoff = 50 * time.Millisecond
	}

	return &AggregationService{
		store:              store,
		maxRetries:         maxRetries,
		retryBackoff:       retryBackoff,
		enableDebugLogging: config.EnableDebugLogging,
		now:                time.Now,
	}
}

// ApplyBillItems folds one batch of observations into the per-shop stats,
// the global stats and the raw-name examples. Items with a non-positive
// unit price are parse noise and are excluded; if nothing valid remains the
// call returns without opening a transaction.
//
// Two committed calls with the same item double-count by contract: dedup by
// bill identity is the caller's job (it deletes previously derived items
// before re-ingesting a bill).
func (s *AggregationService) ApplyBillItems(ctx context.Context, shopID string, items []domain.BillItemObservation) error {
	var valid []domain.BillItemObservation
	for _, item := range items {
		if item.UnitPrice > 0 {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		if s.enableDebugLogging {
			log.Printf("[AGG] Shop %s: no valid items, skipping", shopID)
		}
		return nil
	}

	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := s.retryBackoff * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := s.store.Update(ctx, func(tx domain.StatsTx) error {
			now := s.now()
			for _, item := range valid {
				if err := applyShopStat(tx, shopID, item, now); err != nil {
					return err
				}
				if err := applyGlobalStat(tx, item, now); err != nil {
					return err
				}
				if err := applyRawExample(tx, item, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			if s.enableDebugLogging {
				log.Printf("[AGG] Shop %s: committed %d item(s) on attempt %d", shopID, len(valid), attempt+1)
			}
			return nil
		}
		if !errors.Is(err, domain.ErrTxConflict) {
			return err
		}
		lastErr = err
		if s.enableDebugLogging {
			log.Printf("[AGG] Shop %s: transaction conflict on attempt %d, retrying", shopID, attempt+1)
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", domain.ErrRetryExhausted, s.maxRetries, lastErr)
}

func applyShopStat(tx domain.StatsTx, shopID string, item domain.BillItemObservation, now time.Time) error {
	stat, err := tx.ShopItemStat(shopID, item.NormalizedName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		stat = &domain.ShopItemStat{
			ShopID:         shopID,
			NormalizedName: item.NormalizedName,
			Category:       item.Category,
			Unit:           item.Unit,
			Occurrences:    1,
			SumUnitPrice:   item.UnitPrice,
			MinUnitPrice:   item.UnitPrice,
			AvgUnitPrice:   item.UnitPrice,
			LastUpdatedAt:  now,
		}
	case err != nil:
		return err
	default:
		stat.Occurrences++
		stat.SumUnitPrice += item.UnitPrice
		if item.UnitPrice < stat.MinUnitPrice {
			stat.MinUnitPrice = item.UnitPrice
		}
		stat.AvgUnitPrice = stat.SumUnitPrice / float64(stat.Occurrences)
		stat.LastUpdatedAt = now
	}
	return tx.PutShopItemStat(stat)
}

func applyGlobalStat(tx domain.StatsTx, item domain.BillItemObservation, now time.Time) error {
	stat, err := tx.GlobalItemStat(item.NormalizedName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		stat = &domain.GlobalItemStat{
			NormalizedName: item.NormalizedName,
			Category:       item.Category,
			Unit:           item.Unit,
			Occurrences:    1,
			SumUnitPrice:   item.UnitPrice,
			MinUnitPrice:   item.UnitPrice,
			AvgUnitPrice:   item.UnitPrice,
			LastUpdatedAt:  now,
		}
	case err != nil:
		return err
	default:
		stat.Occurrences++
		stat.SumUnitPrice += item.UnitPrice
		if item.UnitPrice < stat.MinUnitPrice {
			stat.MinUnitPrice = item.UnitPrice
		}
		stat.AvgUnitPrice = stat.SumUnitPrice / float64(stat.Occurrences)
		stat.LastUpdatedAt = now
	}
	return tx.PutGlobalItemStat(stat)
}

func applyRawExample(tx domain.StatsTx, item domain.BillItemObservation, now time.Time) error {
	exampleID := domain.ExampleID(item.NormalizedName, item.RawName)

	example, err := tx.RawExample(item.NormalizedName, exampleID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		example = &domain.RawExample{
			RawName:    item.RawName,
			Count:      1,
			LastSeenAt: now,
		}
	case err != nil:
		return err
	default:
		example.Count++
		example.LastSeenAt = now
	}
	return tx.PutRawExample(item.NormalizedName, exampleID, example)
}
