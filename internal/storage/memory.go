package storage

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps snapshots in process memory. A zero ttl keeps values
// until they are overwritten or deleted.
type MemoryStore struct {
	cache *cache.Cache
	ttl   time.Duration

	mu       sync.Mutex
	watchers map[string]map[chan Change]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	expiration, cleanup := cache.NoExpiration, time.Duration(0)
	if ttl > 0 {
		expiration, cleanup = ttl, ttl/2
	}
	return &MemoryStore{
		cache:    cache.New(expiration, cleanup),
		ttl:      expiration,
		watchers: make(map[string]map[chan Change]struct{}),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v.([]byte)...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	copied := append([]byte(nil), value...)
	s.cache.Set(key, copied, s.ttl)
	s.publish(Change{Key: key, Value: copied})
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Delete(key)
	s.publish(Change{Key: key, Deleted: true})
	return nil
}

func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ch := make(chan Change, 1)

	s.mu.Lock()
	if s.watchers[key] == nil {
		s.watchers[key] = make(map[chan Change]struct{})
	}
	s.watchers[key][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[key], ch)
		if len(s.watchers[key]) == 0 {
			delete(s.watchers, key)
		}
		close(ch)
		s.mu.Unlock()
	}()

	return ch, nil
}

func (s *MemoryStore) publish(change Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.watchers[change.Key] {
		offer(ch, change)
	}
}

// offer replaces a pending notification with the newer one instead of blocking.
func offer(ch chan Change, change Change) {
	select {
	case ch <- change:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- change:
	default:
	}
}
