package alert

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrProductRequired = errors.New("productId is required")
	ErrNotFound        = errors.New("alert not found")
)

// Store tracks alert ids created through this service. Alerts belong to the
// device that created them; lookups from any other device miss.
type Store interface {
	Create(a Alert) (Alert, error)
	Get(deviceID, id string) (Alert, bool)
	Delete(deviceID, id string) error
	ListByDevice(deviceID string) []Alert
}

// MemoryStore implements Store with a mutex-guarded map of device id to
// that device's alerts keyed by alert id.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[string]map[string]Alert
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{devices: make(map[string]map[string]Alert)}
}

// Create stores a. Without an explicit id the product id doubles as the
// alert id; creating the same id twice on one device replaces the earlier
// record.
func (s *MemoryStore) Create(a Alert) (Alert, error) {
	if a.ProductID == "" {
		return Alert{}, ErrProductRequired
	}
	if a.ID == "" {
		a.ID = a.ProductID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items, ok := s.devices[a.DeviceID]
	if !ok {
		items = make(map[string]Alert)
		s.devices[a.DeviceID] = items
	}
	items[a.ID] = a
	return a, nil
}

// Get looks up one of a device's alerts.
func (s *MemoryStore) Get(deviceID, id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.devices[deviceID][id]
	return a, ok
}

// Delete removes one of a device's alerts.
func (s *MemoryStore) Delete(deviceID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.devices[deviceID]
	if _, ok := items[id]; !ok {
		return ErrNotFound
	}
	delete(items, id)
	if len(items) == 0 {
		delete(s.devices, deviceID)
	}
	return nil
}

// ListByDevice returns a device's alerts, oldest first.
func (s *MemoryStore) ListByDevice(deviceID string) []Alert {
	s.mu.RLock()
	out := make([]Alert, 0, len(s.devices[deviceID]))
	for _, a := range s.devices[deviceID] {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
