package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/billbuddy/backend/internal/domain"
)

// fakeCache is a TTL-less cache for query tests
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]interface{})}
}

func (c *fakeCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return value, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.sets++
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok, nil
}

func seedGlobalStat(t *testing.T, store *fakeStatsStore, stat *domain.GlobalItemStat) {
	t.Helper()
	err := store.Update(context.Background(), func(tx domain.StatsTx) error {
		return tx.PutGlobalItemStat(stat)
	})
	if err != nil {
		t.Fatalf("Seeding global stat: %v", err)
	}
}

func seedShopStat(t *testing.T, store *fakeStatsStore, stat *domain.ShopItemStat) {
	t.Helper()
	err := store.Update(context.Background(), func(tx domain.StatsTx) error {
		return tx.PutShopItemStat(stat)
	})
	if err != nil {
		t.Fatalf("Seeding shop stat: %v", err)
	}
}

func seedRawExample(t *testing.T, store *fakeStatsStore, normalizedName, rawName string) {
	t.Helper()
	err := store.Update(context.Background(), func(tx domain.StatsTx) error {
		id := domain.ExampleID(normalizedName, rawName)
		return tx.PutRawExample(normalizedName, id, &domain.RawExample{RawName: rawName, Count: 1})
	})
	if err != nil {
		t.Fatalf("Seeding raw example: %v", err)
	}
}

func TestSimilarProducts_ThresholdAndOrdering(t *testing.T) {
	store := newFakeStatsStore()
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples", Occurrences: 5, MinUnitPrice: 100, AvgUnitPrice: 120})
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples juice", Occurrences: 3, MinUnitPrice: 80, AvgUnitPrice: 90})
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "fresh apples", Occurrences: 2, MinUnitPrice: 110, AvgUnitPrice: 115})
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "banana", Occurrences: 4, MinUnitPrice: 40, AvgUnitPrice: 45})

	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	results, err := service.SimilarProducts(context.Background(), "apples", "")
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d: %+v", len(results), results)
	}
	// The identical name is excluded, the unrelated one scores below the
	// threshold, and the prefix match outranks the token-overlap match
	if results[0].NormalizedName != "apples juice" {
		t.Errorf("First result = %q, want apples juice", results[0].NormalizedName)
	}
	if results[1].NormalizedName != "fresh apples" {
		t.Errorf("Second result = %q, want fresh apples", results[1].NormalizedName)
	}
	if results[0].SimilarityScore <= results[1].SimilarityScore {
		t.Errorf("Results not sorted by score: %v <= %v", results[0].SimilarityScore, results[1].SimilarityScore)
	}
	if results[0].MinUnitPrice != 80 || results[0].Occurrences != 3 {
		t.Errorf("Price summary not carried over: %+v", results[0])
	}
}

func TestSimilarProducts_TopNTruncation(t *testing.T) {
	store := newFakeStatsStore()
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples juice", Occurrences: 1, MinUnitPrice: 80})
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "fresh apples", Occurrences: 1, MinUnitPrice: 110})

	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{SimilarTopN: 1})
	results, err := service.SimilarProducts(context.Background(), "apples", "")
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].NormalizedName != "apples juice" {
		t.Errorf("Kept result = %q, want the highest-scoring one", results[0].NormalizedName)
	}
}

func TestSimilarProducts_CategoryFilter(t *testing.T) {
	store := newFakeStatsStore()
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples juice", Category: "beverages", Occurrences: 1, MinUnitPrice: 80})
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "fresh apples", Category: "produce", Occurrences: 1, MinUnitPrice: 110})

	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	results, err := service.SimilarProducts(context.Background(), "apples", "produce")
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}
	if len(results) != 1 || results[0].NormalizedName != "fresh apples" {
		t.Fatalf("Expected only the produce match, got %+v", results)
	}
}

func TestSimilarProducts_IncludesRawExamples(t *testing.T) {
	store := newFakeStatsStore()
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples juice", Occurrences: 1, MinUnitPrice: 80})
	seedRawExample(t, store, "apples juice", "Apples Juice 1L")
	seedRawExample(t, store, "apples juice", "APPLES JUICE TETRA")

	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	results, err := service.SimilarProducts(context.Background(), "apples", "")
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if len(results[0].ExampleRawNames) != 2 {
		t.Errorf("Expected 2 example raw names, got %v", results[0].ExampleRawNames)
	}
}

func TestSimilarProducts_EmptyNameRejected(t *testing.T) {
	service := NewQueryService(newFakeStatsStore(), newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	if _, err := service.SimilarProducts(context.Background(), "", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestSimilarProducts_CachesResponses(t *testing.T) {
	store := newFakeStatsStore()
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples juice", Occurrences: 1, MinUnitPrice: 80})

	cache := newFakeCache()
	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), cache, QueryConfig{})
	ctx := context.Background()

	first, err := service.SimilarProducts(ctx, "apples", "")
	if err != nil {
		t.Fatalf("First SimilarProducts() error = %v", err)
	}
	if cache.sets != 1 {
		t.Fatalf("Expected one cache write, got %d", cache.sets)
	}

	// A candidate added after the first call is invisible until the cache
	// entry expires
	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "fresh apples", Occurrences: 1, MinUnitPrice: 110})

	second, err := service.SimilarProducts(ctx, "apples", "")
	if err != nil {
		t.Fatalf("Second SimilarProducts() error = %v", err)
	}
	if len(second) != len(first) {
		t.Errorf("Expected cached response of %d result(s), got %d", len(first), len(second))
	}
	if cache.sets != 1 {
		t.Errorf("Expected no second cache write, got %d", cache.sets)
	}
}

func TestCheapestShops_SortedAndFiltered(t *testing.T) {
	store := newFakeStatsStore()
	shops := newFakeShopRepo()
	ctx := context.Background()

	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "shopA", NormalizedName: "apples", Occurrences: 3, MinUnitPrice: 120, AvgUnitPrice: 130})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "shopB", NormalizedName: "apples", Occurrences: 5, MinUnitPrice: 100, AvgUnitPrice: 110})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "shopC", NormalizedName: "apples", Occurrences: 0, MinUnitPrice: 90})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "shopD", NormalizedName: "apples", Occurrences: 2, MinUnitPrice: 0})

	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "shopA", Name: "Shop A"})
	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "shopB", Name: "Shop B"})

	service := NewQueryService(store, newFakeBillRepo(), shops, nil, QueryConfig{})
	results, err := service.CheapestShops(ctx, "apples", nil, 0)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 shops, got %d: %+v", len(results), results)
	}
	if results[0].ShopID != "shopB" || results[1].ShopID != "shopA" {
		t.Errorf("Shops not sorted cheapest first: %+v", results)
	}
	if results[0].ShopName != "Shop B" {
		t.Errorf("ShopName = %q, want Shop B", results[0].ShopName)
	}
}

func TestCheapestShops_UnknownShopRecord(t *testing.T) {
	store := newFakeStatsStore()
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "ghost", NormalizedName: "apples", Occurrences: 1, MinUnitPrice: 50})

	service := NewQueryService(store, newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	results, err := service.CheapestShops(context.Background(), "apples", nil, 0)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 shop, got %d", len(results))
	}
	if results[0].ShopName != "Unknown Shop" {
		t.Errorf("ShopName = %q, want Unknown Shop", results[0].ShopName)
	}
}

func TestCheapestShops_GeoFilter(t *testing.T) {
	store := newFakeStatsStore()
	shops := newFakeShopRepo()
	ctx := context.Background()

	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "near", NormalizedName: "apples", Occurrences: 1, MinUnitPrice: 100})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "far", NormalizedName: "apples", Occurrences: 1, MinUnitPrice: 50})

	origin := domain.GeoPoint{Lat: 12.97, Lng: 77.59}
	// ~2 km north of the origin
	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "near", Name: "Near Shop", Location: domain.GeoPoint{Lat: 12.988, Lng: 77.59}})
	// ~30 km north of the origin
	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "far", Name: "Far Shop", Location: domain.GeoPoint{Lat: 13.24, Lng: 77.59}})

	service := NewQueryService(store, newFakeBillRepo(), shops, nil, QueryConfig{})

	results, err := service.CheapestShops(ctx, "apples", &origin, 5)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}
	if len(results) != 1 || results[0].ShopID != "near" {
		t.Fatalf("Expected only the nearby shop, got %+v", results)
	}

	// The radius is capped at 25 km, so the far shop stays excluded even
	// with an oversized radius
	results, err = service.CheapestShops(ctx, "apples", &origin, 1000)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}
	if len(results) != 1 || results[0].ShopID != "near" {
		t.Fatalf("Expected the radius cap to exclude the far shop, got %+v", results)
	}
}

func TestCheapestShops_GeoFilterExcludesUnplacedShops(t *testing.T) {
	store := newFakeStatsStore()
	shops := newFakeShopRepo()
	ctx := context.Background()

	// One stat with no shop record at all, one whose record has no location
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "ghost", NormalizedName: "apples", Occurrences: 1, MinUnitPrice: 50})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "homeless", NormalizedName: "apples", Occurrences: 1, MinUnitPrice: 60})
	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "homeless", Name: "Homeless Shop"})

	service := NewQueryService(store, newFakeBillRepo(), shops, nil, QueryConfig{})

	// Without an origin both are listed
	results, err := service.CheapestShops(ctx, "apples", nil, 0)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected both shops without a geo filter, got %+v", results)
	}

	// With an origin neither can be placed inside the radius
	origin := domain.GeoPoint{Lat: 12.97, Lng: 77.59}
	results, err = service.CheapestShops(ctx, "apples", &origin, 5)
	if err != nil {
		t.Fatalf("CheapestShops() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("Expected no shops under a geo filter, got %+v", results)
	}
}

func TestCheapestShops_EmptyNameRejected(t *testing.T) {
	service := NewQueryService(newFakeStatsStore(), newFakeBillRepo(), newFakeShopRepo(), nil, QueryConfig{})
	if _, err := service.CheapestShops(context.Background(), "", nil, 0); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}

func TestBillComparison_CheaperShops(t *testing.T) {
	store := newFakeStatsStore()
	bills := newFakeBillRepo()
	shops := newFakeShopRepo()
	ctx := context.Background()

	_ = bills.SaveBill(ctx, &domain.Bill{ID: "bill1", UserID: "user1", Status: domain.BillStatusProcessed})
	_ = bills.ReplaceBillItems(ctx, "bill1", []*domain.BillItem{
		{ID: "bill1_0", BillID: "bill1", UserID: "user1", RawName: "Apples 1kg", NormalizedName: "apples", UnitPrice: 150},
	})

	seedGlobalStat(t, store, &domain.GlobalItemStat{NormalizedName: "apples", Occurrences: 10, MinUnitPrice: 100, AvgUnitPrice: 130})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "cheap", NormalizedName: "apples", Occurrences: 4, MinUnitPrice: 100, AvgUnitPrice: 110})
	seedShopStat(t, store, &domain.ShopItemStat{ShopID: "pricey", NormalizedName: "apples", Occurrences: 2, MinUnitPrice: 160, AvgUnitPrice: 170})
	_ = shops.UpsertShop(ctx, &domain.Shop{ID: "cheap", Name: "Cheap Shop"})

	service := NewQueryService(store, bills, shops, nil, QueryConfig{})
	result, err := service.BillComparison(ctx, "user1", "bill1")
	if err != nil {
		t.Fatalf("BillComparison() error = %v", err)
	}

	if result.BillID != "bill1" {
		t.Errorf("BillID = %q, want bill1", result.BillID)
	}
	if len(result.Items) != 1 {
		t.Fatalf("Expected 1 comparison item, got %d", len(result.Items))
	}
	item := result.Items[0]
	if item.UserUnitPrice != 150 || item.MinUnitPrice != 100 || item.AvgUnitPrice != 130 {
		t.Errorf("Unexpected price summary: %+v", item)
	}
	if len(item.CheaperShopPrices) != 1 {
		t.Fatalf("Expected 1 cheaper shop, got %+v", item.CheaperShopPrices)
	}
	if item.CheaperShopPrices[0].ShopID != "cheap" {
		t.Errorf("Cheaper shop = %q, want cheap", item.CheaperShopPrices[0].ShopID)
	}
}

func TestBillComparison_NoStatsYet(t *testing.T) {
	bills := newFakeBillRepo()
	ctx := context.Background()

	_ = bills.SaveBill(ctx, &domain.Bill{ID: "bill1", UserID: "user1"})
	_ = bills.ReplaceBillItems(ctx, "bill1", []*domain.BillItem{
		{ID: "bill1_0", BillID: "bill1", UserID: "user1", RawName: "Obscure Item", NormalizedName: "obscure item", UnitPrice: 42},
	})

	service := NewQueryService(newFakeStatsStore(), bills, newFakeShopRepo(), nil, QueryConfig{})
	result, err := service.BillComparison(ctx, "user1", "bill1")
	if err != nil {
		t.Fatalf("BillComparison() error = %v", err)
	}
	item := result.Items[0]
	if item.MinUnitPrice != 0 || item.AvgUnitPrice != 0 {
		t.Errorf("Expected zero summary for a product without stats, got %+v", item)
	}
	if len(item.CheaperShopPrices) != 0 {
		t.Errorf("Expected no cheaper shops, got %+v", item.CheaperShopPrices)
	}
}

func TestBillComparison_Ownership(t *testing.T) {
	bills := newFakeBillRepo()
	ctx := context.Background()
	_ = bills.SaveBill(ctx, &domain.Bill{ID: "bill1", UserID: "user1"})

	service := NewQueryService(newFakeStatsStore(), bills, newFakeShopRepo(), nil, QueryConfig{})

	if _, err := service.BillComparison(ctx, "user2", "bill1"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied for another user's bill, got %v", err)
	}
	if _, err := service.BillComparison(ctx, "user1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing bill, got %v", err)
	}
	if _, err := service.BillComparison(ctx, "user1", ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for an empty bill ID, got %v", err)
	}
}
