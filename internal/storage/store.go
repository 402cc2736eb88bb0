// Package storage holds the per-device key-value snapshots the session engine
// reads at startup and rewrites on every mutation.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys of the persisted session layout. Values are whole JSON documents.
const (
	KeyConversation      = "conversation"
	KeyCompareBasket     = "compareProduct"
	KeyComparisonResults = "comparisonResults"
	KeySavedItems        = "savedItems"
)

// ErrCorrupt marks a stored value that no longer decodes.
var ErrCorrupt = errors.New("stored value is corrupt")

// Change is delivered to watchers after every write or delete of a key.
type Change struct {
	Key     string `json:"key"`
	Value   []byte `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store is a last-writer-wins key-value store with change notifications.
// Writers replace whole values; readers re-derive their view from Get after
// a Change arrives.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch streams changes of key until ctx is done, then closes the channel.
	// Notifications may be coalesced; only the latest is guaranteed.
	Watch(ctx context.Context, key string) (<-chan Change, error)
}

// LoadJSON decodes the value at key into v. Missing keys report false; values
// that fail to decode return an error wrapping ErrCorrupt.
func LoadJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return true, nil
}

// SaveJSON encodes v and overwrites key.
func SaveJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
