// Package saved keeps a device's saved items next to its session snapshots.
package saved

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

// Item is a saved product.
type Item struct {
	product.Product
	SavedAt time.Time `json:"savedAt"`
}

// MarshalJSON writes savedAt next to the product's own members.
func (i Item) MarshalJSON() ([]byte, error) {
	fields := i.Product.Fields()
	at, err := json.Marshal(i.SavedAt)
	if err != nil {
		return nil, err
	}
	fields["savedAt"] = at
	return json.Marshal(fields)
}

func (i *Item) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode saved item: %w", err)
	}
	var at time.Time
	if raw, ok := fields["savedAt"]; ok {
		if err := json.Unmarshal(raw, &at); err != nil {
			return fmt.Errorf("decode saved item: %w", err)
		}
		delete(fields, "savedAt")
	}
	p, err := product.FromFields(fields)
	if err != nil {
		return err
	}
	*i = Item{Product: p, SavedAt: at}
	return nil
}

// Store persists saved items under storage.KeySavedItems.
type Store struct {
	mu    sync.Mutex
	store storage.Store
	now   func() time.Time
}

// New binds a Store to a device-scoped storage.
func New(store storage.Store) *Store {
	return &Store{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Save appends p unless an item with the same id is already saved.
func (s *Store) Save(ctx context.Context, p product.Product) error {
	if p.ID == "" {
		return errors.New("product id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.ID == p.ID {
			return nil
		}
	}
	items = append(items, Item{Product: p, SavedAt: s.now()})
	return storage.SaveJSON(ctx, s.store, storage.KeySavedItems, items)
}

// List returns saved items in the order they were saved.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Remove drops the item with the given product id. Unknown ids are ignored.
func (s *Store) Remove(ctx context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, item := range items {
		if item.ID != productID {
			kept = append(kept, item)
		}
	}
	return storage.SaveJSON(ctx, s.store, storage.KeySavedItems, kept)
}

// load treats a corrupt snapshot as empty so the next write repairs it.
func (s *Store) load(ctx context.Context) ([]Item, error) {
	items := make([]Item, 0)
	if _, err := storage.LoadJSON(ctx, s.store, storage.KeySavedItems, &items); err != nil {
		if errors.Is(err, storage.ErrCorrupt) {
			return make([]Item, 0), nil
		}
		return nil, err
	}
	return items, nil
}
