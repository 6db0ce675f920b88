package domain

import (
	"context"
	"time"
)

// StatsTx provides read and write access to the three aggregation
// projections inside one store transaction. Reads return ErrNotFound for
// absent documents.
type StatsTx interface {
	ShopItemStat(shopID, normalizedName string) (*ShopItemStat, error)
	PutShopItemStat(stat *ShopItemStat) error

	GlobalItemStat(normalizedName string) (*GlobalItemStat, error)
	PutGlobalItemStat(stat *GlobalItemStat) error

	RawExample(normalizedName, exampleID string) (*RawExample, error)
	PutRawExample(normalizedName, exampleID string, example *RawExample) error
}

// StatsStore is the transactional store behind the aggregation engine and
// the query layer. Update runs fn in one atomic transaction: all writes
// commit together or not at all, and updates to the same key serialize.
// Stores using optimistic concurrency signal a lost race with ErrTxConflict;
// the caller owns the retry loop.
type StatsStore interface {
	Update(ctx context.Context, fn func(StatsTx) error) error

	GetGlobalItemStat(ctx context.Context, normalizedName string) (*GlobalItemStat, error)
	ListGlobalItemStats(ctx context.Context, limit int) ([]*GlobalItemStat, error)
	ListShopStatsForItem(ctx context.Context, normalizedName string) ([]*ShopItemStat, error)
	ListRawExamples(ctx context.Context, normalizedName string, limit int) ([]*RawExample, error)
}

// BillRepository persists bills and their derived line items
type BillRepository interface {
	SaveBill(ctx context.Context, bill *Bill) error
	GetBill(ctx context.Context, id string) (*Bill, error)

	// ReplaceBillItems deletes any previously derived items for the bill
	// before inserting the new batch, so re-ingesting a bill never
	// double-counts its line items downstream.
	ReplaceBillItems(ctx context.Context, billID string, items []*BillItem) error
	ListBillItems(ctx context.Context, billID string) ([]*BillItem, error)
}

// ShopRepository persists shops recognized from receipts
type ShopRepository interface {
	UpsertShop(ctx context.Context, shop *Shop) error
	GetShop(ctx context.Context, id string) (*Shop, error)
	ListShops(ctx context.Context, limit int) ([]*Shop, error)
}

// OCRClient is the vision backend that turns a bill image into raw text.
// Implementations are expected to bound the call with a timeout.
type OCRClient interface {
	DetectText(ctx context.Context, imagePath string) (string, error)
}

// TokenVerifier validates a bearer token and returns the user ID it
// belongs to. Token issuance and verification live outside this service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
