// Package store persists bills, shops and the three aggregation
// projections in a single bbolt file, one bucket per collection. bbolt
// runs one writer at a time, so every Update is a fully serializable
// transaction: the batch commits atomically or rolls back, and updates to
// the same key can never interleave.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/billbuddy/backend/internal/domain"
)

const (
	billsBucket       = "bills"
	billItemsBucket   = "billItems"
	shopsBucket       = "shops"
	shopStatsBucket   = "shopItemStats"
	globalStatsBucket = "globalItemStats"
	// rawExamplesBucket holds one nested bucket per normalized name, with
	// example documents keyed by their stable example ID
	rawExamplesBucket = "itemRawExamples"
)

// Bolt implements domain.StatsStore, domain.BillRepository and
// domain.ShopRepository on top of a bbolt database file.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the database file and ensures all buckets exist
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		// Covers both a locked file (another process holds it) and an
		// unopenable path
		return nil, fmt.Errorf("%w: opening %s: %v", domain.ErrStoreUnavailable, path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{
			billsBucket, billItemsBucket, shopsBucket,
			shopStatsBucket, globalStatsBucket, rawExamplesBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close closes the underlying database
func (s *Bolt) Close() error {
	return s.db.Close()
}

// Update runs fn inside one read-write transaction. Honors context
// cancellation before the transaction starts; once started, bbolt commits
// or rolls back as a unit.
func (s *Bolt) Update(ctx context.Context, fn func(domain.StatsTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return fn(&statsTx{tx: tx})
	})
}

// statsTx adapts one bbolt transaction to the typed projection accessors
type statsTx struct {
	tx *bbolt.Tx
}

func (t *statsTx) ShopItemStat(shopID, normalizedName string) (*domain.ShopItemStat, error) {
	data := t.tx.Bucket([]byte(shopStatsBucket)).Get([]byte(domain.ShopItemKey(shopID, normalizedName)))
	if data == nil {
		return nil, domain.ErrNotFound
	}
	var stat domain.ShopItemStat
	if err := json.Unmarshal(data, &stat); err != nil {
		return nil, fmt.Errorf("unmarshaling shop item stat: %w", err)
	}
	if stat.NormalizedName == "" {
		return nil, fmt.Errorf("corrupt shop item stat at key %q", domain.ShopItemKey(shopID, normalizedName))
	}
	return &stat, nil
}

func (t *statsTx) PutShopItemStat(stat *domain.ShopItemStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("marshaling shop item stat: %w", err)
	}
	key := domain.ShopItemKey(stat.ShopID, stat.NormalizedName)
	return t.tx.Bucket([]byte(shopStatsBucket)).Put([]byte(key), data)
}

func (t *statsTx) GlobalItemStat(normalizedName string) (*domain.GlobalItemStat, error) {
	data := t.tx.Bucket([]byte(globalStatsBucket)).Get([]byte(normalizedName))
	if data == nil {
		return nil, domain.ErrNotFound
	}
	var stat domain.GlobalItemStat
	if err := json.Unmarshal(data, &stat); err != nil {
		return nil, fmt.Errorf("unmarshaling global item stat: %w", err)
	}
	return &stat, nil
}

func (t *statsTx) PutGlobalItemStat(stat *domain.GlobalItemStat) error {
	data, err := json.Marshal(stat)
	if err != nil {
		return fmt.Errorf("marshaling global item stat: %w", err)
	}
	return t.tx.Bucket([]byte(globalStatsBucket)).Put([]byte(stat.NormalizedName), data)
}

func (t *statsTx) RawExample(normalizedName, exampleID string) (*domain.RawExample, error) {
	examples := t.tx.Bucket([]byte(rawExamplesBucket)).Bucket([]byte(normalizedName))
	if examples == nil {
		return nil, domain.ErrNotFound
	}
	data := examples.Get([]byte(exampleID))
	if data == nil {
		return nil, domain.ErrNotFound
	}
	var example domain.RawExample
	if err := json.Unmarshal(data, &example); err != nil {
		return nil, fmt.Errorf("unmarshaling raw example: %w", err)
	}
	return &example, nil
}

func (t *statsTx) PutRawExample(normalizedName, exampleID string, example *domain.RawExample) error {
	examples, err := t.tx.Bucket([]byte(rawExamplesBucket)).CreateBucketIfNotExists([]byte(normalizedName))
	if err != nil {
		return fmt.Errorf("creating examples bucket: %w", err)
	}
	data, err := json.Marshal(example)
	if err != nil {
		return fmt.Errorf("marshaling raw example: %w", err)
	}
	return examples.Put([]byte(exampleID), data)
}

// GetGlobalItemStat reads one global stat outside a write transaction
func (s *Bolt) GetGlobalItemStat(ctx context.Context, normalizedName string) (*domain.GlobalItemStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var stat *domain.GlobalItemStat
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		stat, err = (&statsTx{tx: tx}).GlobalItemStat(normalizedName)
		return err
	})
	if err != nil {
		return nil, err
	}
	return stat, nil
}

// ListGlobalItemStats returns up to limit global stats
func (s *Bolt) ListGlobalItemStats(ctx context.Context, limit int) ([]*domain.GlobalItemStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats := make([]*domain.GlobalItemStat, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(globalStatsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(stats) >= limit {
				break
			}
			var stat domain.GlobalItemStat
			if err := json.Unmarshal(v, &stat); err != nil {
				return fmt.Errorf("unmarshaling global item stat: %w", err)
			}
			stats = append(stats, &stat)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListShopStatsForItem returns every shop's stat for one normalized name
func (s *Bolt) ListShopStatsForItem(ctx context.Context, normalizedName string) ([]*domain.ShopItemStat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stats := make([]*domain.ShopItemStat, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(shopStatsBucket)).ForEach(func(k, v []byte) error {
			var stat domain.ShopItemStat
			if err := json.Unmarshal(v, &stat); err != nil {
				return fmt.Errorf("unmarshaling shop item stat: %w", err)
			}
			if stat.NormalizedName == normalizedName {
				stats = append(stats, &stat)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ListRawExamples returns up to limit raw-name examples for one normalized name
func (s *Bolt) ListRawExamples(ctx context.Context, normalizedName string, limit int) ([]*domain.RawExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	examples := make([]*domain.RawExample, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(rawExamplesBucket)).Bucket([]byte(normalizedName))
		if bucket == nil {
			return nil
		}
		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(examples) >= limit {
				break
			}
			var example domain.RawExample
			if err := json.Unmarshal(v, &example); err != nil {
				return fmt.Errorf("unmarshaling raw example: %w", err)
			}
			examples = append(examples, &example)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return examples, nil
}

// SaveBill writes the bill document keyed by its ID
func (s *Bolt) SaveBill(ctx context.Context, bill *domain.Bill) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bill.ID == "" {
		return domain.ErrInvalidArgument
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(bill)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		return tx.Bucket([]byte(billsBucket)).Put([]byte(bill.ID), data)
	})
}

// GetBill reads one bill by ID
func (s *Bolt) GetBill(ctx context.Context, id string) (*domain.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var bill domain.Bill
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billsBucket)).Get([]byte(id))
		if data == nil {
			return domain.ErrNotFound
		}
		return json.Unmarshal(data, &bill)
	})
	if err != nil {
		return nil, err
	}
	return &bill, nil
}

// ReplaceBillItems deletes every previously stored item for the bill and
// writes the new batch, all in one transaction. Bill item keys are
// "{billID}_{index}" so one prefix scan finds the old batch.
func (s *Bolt) ReplaceBillItems(ctx context.Context, billID string, items []*domain.BillItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if billID == "" {
		return domain.ErrInvalidArgument
	}
	prefix := []byte(billID + "_")
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(billItemsBucket))

		c := bucket.Cursor()
		var stale [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}

		for _, item := range items {
			data, err := json.Marshal(item)
			if err != nil {
				return fmt.Errorf("marshaling bill item: %w", err)
			}
			if err := bucket.Put([]byte(item.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBillItems returns the derived items for one bill
func (s *Bolt) ListBillItems(ctx context.Context, billID string) ([]*domain.BillItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(billID + "_")
	items := make([]*domain.BillItem, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(billItemsBucket)).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var item domain.BillItem
			if err := json.Unmarshal(v, &item); err != nil {
				return fmt.Errorf("unmarshaling bill item: %w", err)
			}
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertShop merges the shop into any existing record: an empty incoming
// address or location never clobbers previously stored values.
func (s *Bolt) UpsertShop(ctx context.Context, shop *domain.Shop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if shop.ID == "" {
		return domain.ErrInvalidArgument
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(shopsBucket))

		merged := *shop
		if data := bucket.Get([]byte(shop.ID)); data != nil {
			var existing domain.Shop
			if err := json.Unmarshal(data, &existing); err != nil {
				return fmt.Errorf("unmarshaling shop: %w", err)
			}
			if merged.Address == "" {
				merged.Address = existing.Address
			}
			if merged.Location == (domain.GeoPoint{}) {
				merged.Location = existing.Location
			}
		}

		data, err := json.Marshal(&merged)
		if err != nil {
			return fmt.Errorf("marshaling shop: %w", err)
		}
		return bucket.Put([]byte(shop.ID), data)
	})
}

// GetShop reads one shop by ID
func (s *Bolt) GetShop(ctx context.Context, id string) (*domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var shop domain.Shop
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(shopsBucket)).Get([]byte(id))
		if data == nil {
			return domain.ErrNotFound
		}
		return json.Unmarshal(data, &shop)
	})
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// ListShops returns up to limit shops
func (s *Bolt) ListShops(ctx context.Context, limit int) ([]*domain.Shop, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	shops := make([]*domain.Shop, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(shopsBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(shops) >= limit {
				break
			}
			var shop domain.Shop
			if err := json.Unmarshal(v, &shop); err != nil {
				return fmt.Errorf("unmarshaling shop: %w", err)
			}
			shops = append(shops, &shop)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return shops, nil
}
