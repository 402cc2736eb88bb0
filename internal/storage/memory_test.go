package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, ok, err := s.Get(ctx, KeyConversation)
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte(`[{"id":"m1"}]`)
	require.NoError(t, s.Set(ctx, KeyConversation, value))
	value[0] = 'x'

	got, ok, err := s.Get(ctx, KeyConversation)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `[{"id":"m1"}]`, string(got))

	require.NoError(t, s.Delete(ctx, KeyConversation))
	_, ok, _ = s.Get(ctx, KeyConversation)
	assert.False(t, ok)
}

func TestMemoryStoreWatchDeliversChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewMemoryStore(0)

	changes, err := s.Watch(ctx, KeyCompareBasket)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, KeyConversation, []byte(`[]`)))
	require.NoError(t, s.Set(ctx, KeyCompareBasket, []byte(`[{"id":"a"}]`)))

	select {
	case change := <-changes:
		assert.Equal(t, KeyCompareBasket, change.Key)
		assert.Equal(t, `[{"id":"a"}]`, string(change.Value))
	case <-time.After(time.Second):
		t.Fatal("expected a basket change")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-changes:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryStoreWatchCoalescesToLatest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewMemoryStore(0)

	changes, err := s.Watch(ctx, KeyCompareBasket)
	require.NoError(t, err)

	require.NoError(t, s.Set(ctx, KeyCompareBasket, []byte(`[1]`)))
	require.NoError(t, s.Set(ctx, KeyCompareBasket, []byte(`[1,2]`)))
	require.NoError(t, s.Delete(ctx, KeyCompareBasket))

	change := <-changes
	assert.True(t, change.Deleted)
}

func TestMemoryStoreExpires(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(20 * time.Millisecond)
	require.NoError(t, s.Set(ctx, KeySavedItems, []byte(`[]`)))

	require.Eventually(t, func() bool {
		_, ok, _ := s.Get(ctx, KeySavedItems)
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestNamespaceIsolatesDevices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shared := NewMemoryStore(0)
	a := Namespace(shared, "device-a")
	b := Namespace(shared, "device-b")

	changes, err := b.Watch(ctx, KeyCompareBasket)
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, KeyCompareBasket, []byte(`["a"]`)))
	require.NoError(t, b.Set(ctx, KeyCompareBasket, []byte(`["b"]`)))

	got, ok, err := a.Get(ctx, KeyCompareBasket)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["a"]`, string(got))

	select {
	case change := <-changes:
		assert.Equal(t, KeyCompareBasket, change.Key)
		assert.Equal(t, `["b"]`, string(change.Value))
	case <-time.After(time.Second):
		t.Fatal("expected change for device-b")
	}
}

func TestLoadJSONReportsCorruption(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)
	require.NoError(t, s.Set(ctx, KeyConversation, []byte(`[{"id":`)))

	var out []map[string]any
	ok, err := LoadJSON(ctx, s, KeyConversation, &out)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, SaveJSON(ctx, s, KeyConversation, []map[string]any{{"id": "m1"}}))
	ok, err = LoadJSON(ctx, s, KeyConversation, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "m1", out[0]["id"])
}
