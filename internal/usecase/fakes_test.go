package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/billbuddy/backend/internal/domain"
)

// fakeStatsStore is an in-memory StatsStore with the same transaction
// discipline the real store provides: Update runs on a snapshot under a
// lock and commits atomically, so concurrent batches serialize and a
// failed fn leaves nothing behind. conflictsLeft injects ErrTxConflict to
// exercise the retry loop.
type fakeStatsStore struct {
	mu            sync.Mutex
	shopStats     map[string]*domain.ShopItemStat
	globalStats   map[string]*domain.GlobalItemStat
	rawExamples   map[string]map[string]*domain.RawExample
	updateCalls   int
	conflictsLeft int
}

func newFakeStatsStore() *fakeStatsStore {
	return &fakeStatsStore{
		shopStats:   make(map[string]*domain.ShopItemStat),
		globalStats: make(map[string]*domain.GlobalItemStat),
		rawExamples: make(map[string]map[string]*domain.RawExample),
	}
}

type fakeStatsTx struct {
	shopStats   map[string]*domain.ShopItemStat
	globalStats map[string]*domain.GlobalItemStat
	rawExamples map[string]map[string]*domain.RawExample
}

func (s *fakeStatsStore) Update(ctx context.Context, fn func(domain.StatsTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return domain.ErrTxConflict
	}

	tx := &fakeStatsTx{
		shopStats:   make(map[string]*domain.ShopItemStat, len(s.shopStats)),
		globalStats: make(map[string]*domain.GlobalItemStat, len(s.globalStats)),
		rawExamples: make(map[string]map[string]*domain.RawExample, len(s.rawExamples)),
	}
	for k, v := range s.shopStats {
		copied := *v
		tx.shopStats[k] = &copied
	}
	for k, v := range s.globalStats {
		copied := *v
		tx.globalStats[k] = &copied
	}
	for name, examples := range s.rawExamples {
		tx.rawExamples[name] = make(map[string]*domain.RawExample, len(examples))
		for id, ex := range examples {
			copied := *ex
			tx.rawExamples[name][id] = &copied
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.shopStats = tx.shopStats
	s.globalStats = tx.globalStats
	s.rawExamples = tx.rawExamples
	return nil
}

func (t *fakeStatsTx) ShopItemStat(shopID, normalizedName string) (*domain.ShopItemStat, error) {
	stat, ok := t.shopStats[domain.ShopItemKey(shopID, normalizedName)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return stat, nil
}

func (t *fakeStatsTx) PutShopItemStat(stat *domain.ShopItemStat) error {
	t.shopStats[domain.ShopItemKey(stat.ShopID, stat.NormalizedName)] = stat
	return nil
}

func (t *fakeStatsTx) GlobalItemStat(normalizedName string) (*domain.GlobalItemStat, error) {
	stat, ok := t.globalStats[normalizedName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return stat, nil
}

func (t *fakeStatsTx) PutGlobalItemStat(stat *domain.GlobalItemStat) error {
	t.globalStats[stat.NormalizedName] = stat
	return nil
}

func (t *fakeStatsTx) RawExample(normalizedName, exampleID string) (*domain.RawExample, error) {
	examples, ok := t.rawExamples[normalizedName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	example, ok := examples[exampleID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return example, nil
}

func (t *fakeStatsTx) PutRawExample(normalizedName, exampleID string, example *domain.RawExample) error {
	if t.rawExamples[normalizedName] == nil {
		t.rawExamples[normalizedName] = make(map[string]*domain.RawExample)
	}
	t.rawExamples[normalizedName][exampleID] = example
	return nil
}

func (s *fakeStatsStore) GetGlobalItemStat(ctx context.Context, normalizedName string) (*domain.GlobalItemStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.globalStats[normalizedName]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *stat
	return &copied, nil
}

func (s *fakeStatsStore) ListGlobalItemStats(ctx context.Context, limit int) ([]*domain.GlobalItemStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.globalStats))
	for name := range s.globalStats {
		names = append(names, name)
	}
	sort.Strings(names)
	stats := make([]*domain.GlobalItemStat, 0, len(names))
	for _, name := range names {
		if limit > 0 && len(stats) >= limit {
			break
		}
		copied := *s.globalStats[name]
		stats = append(stats, &copied)
	}
	return stats, nil
}

func (s *fakeStatsStore) ListShopStatsForItem(ctx context.Context, normalizedName string) ([]*domain.ShopItemStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := make([]*domain.ShopItemStat, 0)
	for _, stat := range s.shopStats {
		if stat.NormalizedName == normalizedName {
			copied := *stat
			stats = append(stats, &copied)
		}
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ShopID < stats[j].ShopID })
	return stats, nil
}

func (s *fakeStatsStore) ListRawExamples(ctx context.Context, normalizedName string, limit int) ([]*domain.RawExample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	examples := make([]*domain.RawExample, 0)
	for _, example := range s.rawExamples[normalizedName] {
		if limit > 0 && len(examples) >= limit {
			break
		}
		copied := *example
		examples = append(examples, &copied)
	}
	return examples, nil
}

// fakeBillRepo is an in-memory BillRepository
type fakeBillRepo struct {
	mu    sync.Mutex
	bills map[string]*domain.Bill
	items map[string][]*domain.BillItem
}

func newFakeBillRepo() *fakeBillRepo {
	return &fakeBillRepo{
		bills: make(map[string]*domain.Bill),
		items: make(map[string][]*domain.BillItem),
	}
}

func (r *fakeBillRepo) SaveBill(ctx context.Context, bill *domain.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *bill
	r.bills[bill.ID] = &copied
	return nil
}

func (r *fakeBillRepo) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bill, ok := r.bills[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *bill
	return &copied, nil
}

func (r *fakeBillRepo) ReplaceBillItems(ctx context.Context, billID string, items []*domain.BillItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := make([]*domain.BillItem, len(items))
	for i, item := range items {
		c := *item
		copied[i] = &c
	}
	r.items[billID] = copied
	return nil
}

func (r *fakeBillRepo) ListBillItems(ctx context.Context, billID string) ([]*domain.BillItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.items[billID], nil
}

// fakeShopRepo is an in-memory ShopRepository
type fakeShopRepo struct {
	mu    sync.Mutex
	shops map[string]*domain.Shop
}

func newFakeShopRepo() *fakeShopRepo {
	return &fakeShopRepo{shops: make(map[string]*domain.Shop)}
}

func (r *fakeShopRepo) UpsertShop(ctx context.Context, shop *domain.Shop) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *shop
	if existing, ok := r.shops[shop.ID]; ok {
		if copied.Address == "" {
			copied.Address = existing.Address
		}
		if copied.Location == (domain.GeoPoint{}) {
			copied.Location = existing.Location
		}
	}
	r.shops[shop.ID] = &copied
	return nil
}

func (r *fakeShopRepo) GetShop(ctx context.Context, id string) (*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shop, ok := r.shops[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *shop
	return &copied, nil
}

func (r *fakeShopRepo) ListShops(ctx context.Context, limit int) ([]*domain.Shop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	shops := make([]*domain.Shop, 0, len(r.shops))
	for _, shop := range r.shops {
		if limit > 0 && len(shops) >= limit {
			break
		}
		copied := *shop
		shops = append(shops, &copied)
	}
	return shops, nil
}

// fakeOCR returns a canned transcription, or an error
type fakeOCR struct {
	text string
	err  error
}

func (o *fakeOCR) DetectText(ctx context.Context, imagePath string) (string, error) {
	if o.err != nil {
		return "", o.err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return o.text, nil
}

// receiptText builds OCR text from a shop name and item lines
func receiptText(shopName string, lines ...string) string {
	return shopName + "\n" + strings.Join(lines, "\n") + "\n"
}
