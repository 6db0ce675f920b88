package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/billbuddy/backend/internal/domain"
)

// QueryConfig holds configuration for the query service
type QueryConfig struct {
	SimilarityThreshold float64
	SimilarTopN         int
	CandidateLimit      int
	ExampleLimit        int
	CheapestTopN        int
	CheaperShopLimit    int
	LookupConcurrency   int
	CacheTTL            time.Duration
	EnableDebugLogging  bool
}

// QueryService answers read-only questions over the aggregated projections:
// similar products, cheapest shops for an item, and per-bill price
// comparison. It never mutates the projections.
type QueryService struct {
	store               domain.StatsStore
	bills               domain.BillRepository
	shops               domain.ShopRepository
	cache               domain.CacheRepository
	similarityThreshold float64
	similarTopN         int
	candidateLimit      int
	exampleLimit        int
	cheapestTopN        int
	cheaperShopLimit    int
	lookupConcurrency   int
	cacheTTL            time.Duration
	enableDebugLogging  bool
}

// NewQueryService creates a new query service with dependencies
func NewQueryService(
	store domain.StatsStore,
	bills domain.BillRepository,
	shops domain.ShopRepository,
	cache domain.CacheRepository,
	config QueryConfig,
) *QueryService {
	threshold := config.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.3
	}

	topN := config.SimilarTopN
	if topN <= 0 {
		topN = 10
	}

	candidateLimit := config.CandidateLimit
	if candidateLimit <= 0 {
		candidateLimit = 200
	}

	exampleLimit := config.ExampleLimit
	if exampleLimit <= 0 {
		exampleLimit = 5
	}

	cheapestTopN := config.CheapestTopN
	if cheapestTopN <= 0 {
		cheapestTopN = 20
	}

	cheaperShopLimit := config.CheaperShopLimit
	if cheaperShopLimit <= 0 {
		cheaperShopLimit = 5
	}

	concurrency := config.LookupConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	cacheTTL := config.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	return &QueryService{
		store:               store,
		bills:               bills,
		shops:               shops,
		cache:               cache,
		similarityThreshold: threshold,
		similarTopN:         topN,
		candidateLimit:      candidateLimit,
		exampleLimit:        exampleLimit,
		cheapestTopN:        cheapestTopN,
		cheaperShopLimit:    cheaperShopLimit,
		lookupConcurrency:   concurrency,
		cacheTTL:            cacheTTL,
		enableDebugLogging:  config.EnableDebugLogging,
	}
}

// SimilarProduct is one similar-product suggestion with its price summary
// and up to a few raw-name examples for display
type SimilarProduct struct {
	NormalizedName  string   `json:"normalizedName"`
	Unit            string   `json:"unit"`
	AvgUnitPrice    float64  `json:"avgUnitPrice"`
	MinUnitPrice    float64  `json:"minUnitPrice"`
	Occurrences     int      `json:"occurrences"`
	ExampleRawNames []string `json:"exampleRawNames"`
	SimilarityScore float64  `json:"similarityScore"`
}

// ShopPrice is one shop's price point for a normalized product name
type ShopPrice struct {
	ShopID       string  `json:"shopId"`
	ShopName     string  `json:"shopName"`
	MinUnitPrice float64 `json:"minUnitPrice"`
	AvgUnitPrice float64 `json:"avgUnitPrice"`
	Occurrences  int     `json:"occurrences"`
}

// ComparisonItem compares one bill item against the aggregated stats
type ComparisonItem struct {
	NormalizedName    string      `json:"normalizedName"`
	RawName           string      `json:"rawName"`
	UserUnitPrice     float64     `json:"userUnitPrice"`
	MinUnitPrice      float64     `json:"minUnitPrice"`
	AvgUnitPrice      float64     `json:"avgUnitPrice"`
	CheaperShopPrices []ShopPrice `json:"cheaperShopPrices"`
}

// BillComparisonResult is the full comparison response for one bill
type BillComparisonResult struct {
	BillID string           `json:"billId"`
	Items  []ComparisonItem `json:"items"`
}

// SimilarProducts scans the global stats for products whose names score
// above the similarity threshold against the given normalized name, sorted
// by score descending, top-N truncated, each with example raw names.
func (s *QueryService) SimilarProducts(ctx context.Context, normalizedName, category string) ([]SimilarProduct, error) {
	if normalizedName == "" {
		return nil, domain.ErrInvalidArgument
	}

	cacheKey := fmt.Sprintf("similar:%s:%s", normalizedName, category)
	if cached, ok := s.cachedSimilar(ctx, cacheKey); ok {
		return cached, nil
	}

	candidates, err := s.store.ListGlobalItemStats(ctx, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("listing global stats: %w", err)
	}

	var results []SimilarProduct
	for _, candidate := range candidates {
		if candidate.NormalizedName == normalizedName {
			continue
		}
		if category != "" && candidate.Category != category {
			continue
		}
		score := CombinedSimilarity(normalizedName, candidate.NormalizedName)
		if score <= s.similarityThreshold {
			continue
		}
		results = append(results, SimilarProduct{
			NormalizedName:  candidate.NormalizedName,
			Unit:            candidate.Unit,
			AvgUnitPrice:    candidate.AvgUnitPrice,
			MinUnitPrice:    candidate.MinUnitPrice,
			Occurrences:     candidate.Occurrences,
			SimilarityScore: score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].SimilarityScore > results[j].SimilarityScore
	})
	if len(results) > s.similarTopN {
		results = results[:s.similarTopN]
	}

	for i := range results {
		examples, err := s.store.ListRawExamples(ctx, results[i].NormalizedName, s.exampleLimit)
		if err != nil {
			return nil, fmt.Errorf("listing raw examples: %w", err)
		}
		names := make([]string, 0, len(examples))
		for _, example := range examples {
			names = append(names, example.RawName)
		}
		results[i].ExampleRawNames = names
	}

	if s.enableDebugLogging {
		log.Printf("[QUERY] Similar to %q: %d result(s)", normalizedName, len(results))
	}

	s.storeCachedSimilar(ctx, cacheKey, results)
	return results, nil
}

// CheapestShops lists the shops selling the item, cheapest first. When an
// origin is given, shops outside the bounding box around it are excluded;
// the radius is clamped to [0.5, 25] km and defaults to 5 km.
func (s *QueryService) CheapestShops(ctx context.Context, normalizedName string, origin *domain.GeoPoint, radiusKm float64) ([]ShopPrice, error) {
	if normalizedName == "" {
		return nil, domain.ErrInvalidArgument
	}

	stats, err := s.store.ListShopStatsForItem(ctx, normalizedName)
	if err != nil {
		return nil, fmt.Errorf("listing shop stats: %w", err)
	}

	var bounds *boundingBox
	if origin != nil {
		if radiusKm <= 0 {
			radiusKm = 5
		}
		radiusKm = math.Max(0.5, math.Min(25, radiusKm))
		b := geoBoundingBox(origin.Lat, origin.Lng, radiusKm)
		bounds = &b
	}

	var results []ShopPrice
	for _, stat := range stats {
		if stat.Occurrences <= 0 || stat.MinUnitPrice <= 0 {
			continue
		}

		shopName := "Unknown Shop"
		shop, err := s.shops.GetShop(ctx, stat.ShopID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Stats for shops we never stored a record for still count,
			// but a shop we cannot place is never inside a radius
			if bounds != nil {
				continue
			}
		case err != nil:
			return nil, fmt.Errorf("loading shop %s: %w", stat.ShopID, err)
		default:
			shopName = shop.Name
			if bounds != nil {
				if shop.Location == (domain.GeoPoint{}) || !bounds.contains(shop.Location) {
					continue
				}
			}
		}

		results = append(results, ShopPrice{
			ShopID:       stat.ShopID,
			ShopName:     shopName,
			MinUnitPrice: stat.MinUnitPrice,
			AvgUnitPrice: stat.AvgUnitPrice,
			Occurrences:  stat.Occurrences,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].MinUnitPrice < results[j].MinUnitPrice
	})
	if len(results) > s.cheapestTopN {
		results = results[:s.cheapestTopN]
	}

	return results, nil
}

// BillComparison compares every item on the user's bill against the global
// stats and lists shops selling it cheaper than the user paid. Per-item
// lookups fan out concurrently with a small limit.
func (s *QueryService) BillComparison(ctx context.Context, userID, billID string) (*BillComparisonResult, error) {
	if billID == "" {
		return nil, domain.ErrInvalidArgument
	}

	bill, err := s.bills.GetBill(ctx, billID)
	if err != nil {
		return nil, err
	}
	if bill.UserID != userID {
		return nil, domain.ErrPermissionDenied
	}

	billItems, err := s.bills.ListBillItems(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("listing bill items: %w", err)
	}

	items := make([]ComparisonItem, len(billItems))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.lookupConcurrency)
	for i, billItem := range billItems {
		g.Go(func() error {
			item, err := s.compareItem(gctx, billItem)
			if err != nil {
				return err
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &BillComparisonResult{BillID: billID, Items: items}, nil
}

func (s *QueryService) compareItem(ctx context.Context, billItem *domain.BillItem) (ComparisonItem, error) {
	item := ComparisonItem{
		NormalizedName: billItem.NormalizedName,
		RawName:        billItem.RawName,
		UserUnitPrice:  billItem.UnitPrice,
	}

	global, err := s.store.GetGlobalItemStat(ctx, billItem.NormalizedName)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// No stats yet for this product; min/avg stay zero
	case err != nil:
		return item, fmt.Errorf("loading global stat: %w", err)
	default:
		item.MinUnitPrice = global.MinUnitPrice
		item.AvgUnitPrice = global.AvgUnitPrice
	}

	shopStats, err := s.store.ListShopStatsForItem(ctx, billItem.NormalizedName)
	if err != nil {
		return item, fmt.Errorf("listing shop stats: %w", err)
	}

	var cheaper []ShopPrice
	for _, stat := range shopStats {
		if stat.MinUnitPrice <= 0 || stat.MinUnitPrice >= billItem.UnitPrice {
			continue
		}

		shopName := "Unknown Shop"
		if shop, err := s.shops.GetShop(ctx, stat.ShopID); err == nil {
			shopName = shop.Name
		}
		cheaper = append(cheaper, ShopPrice{
			ShopID:       stat.ShopID,
			ShopName:     shopName,
			MinUnitPrice: stat.MinUnitPrice,
			AvgUnitPrice: stat.AvgUnitPrice,
			Occurrences:  stat.Occurrences,
		})
	}
	sort.Slice(cheaper, func(i, j int) bool {
		return cheaper[i].MinUnitPrice < cheaper[j].MinUnitPrice
	})
	if len(cheaper) > s.cheaperShopLimit {
		cheaper = cheaper[:s.cheaperShopLimit]
	}
	item.CheaperShopPrices = cheaper

	return item, nil
}

// boundingBox is a simple lat/lng box around an origin
type boundingBox struct {
	minLat, maxLat float64
	minLng, maxLng float64
}

func (b boundingBox) contains(p domain.GeoPoint) bool {
	return p.Lat >= b.minLat && p.Lat <= b.maxLat &&
		p.Lng >= b.minLng && p.Lng <= b.maxLng
}

// geoBoundingBox approximates a radius around a point: one degree of
// latitude is ~111.32 km, longitude shrinks with cos(lat)
func geoBoundingBox(lat, lng, radiusKm float64) boundingBox {
	latDelta := radiusKm / 111.32
	lngDelta := radiusKm / (111.32 * math.Cos(lat*(math.Pi/180)))
	return boundingBox{
		minLat: lat - latDelta,
		maxLat: lat + latDelta,
		minLng: lng - lngDelta,
		maxLng: lng + lngDelta,
	}
}

// cachedSimilar reads a similar-products response back from the cache.
// Cached values went through a JSON round trip, so they come back as
// generic structures and are re-decoded here.
func (s *QueryService) cachedSimilar(ctx context.Context, key string) ([]SimilarProduct, bool) {
	if s.cache == nil {
		return nil, false
	}

	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return nil, false
	}
	var results []SimilarProduct
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (s *QueryService) storeCachedSimilar(ctx context.Context, key string, results []SimilarProduct) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, results, s.cacheTTL); err != nil && s.enableDebugLogging {
		log.Printf("[QUERY] Failed to cache %q: %v", key, err)
	}
}
