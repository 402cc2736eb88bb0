package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

func basketIDs(t *testing.T, e *Engine) []string {
	t.Helper()
	basket, err := e.Basket(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(basket))
	for _, p := range basket {
		ids = append(ids, p.ID)
	}
	return ids
}

func fillBasket(t *testing.T, e *Engine, ids ...string) {
	t.Helper()
	for _, p := range products(ids...) {
		added, err := e.ToggleCompare(context.Background(), p)
		require.NoError(t, err)
		require.True(t, added)
	}
}

func TestToggleCompareIsStrictToggle(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(0), &fakeBackend{})
	fillBasket(t, e, "a", "b")

	p := product.Product{ID: "c"}
	added, err := e.ToggleCompare(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"a", "b", "c"}, basketIDs(t, e))

	added, err = e.ToggleCompare(context.Background(), p)
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"a", "b"}, basketIDs(t, e))
}

func TestToggleCompareRejectsFifthProduct(t *testing.T) {
	e := newTestEngine(t, storage.NewMemoryStore(0), &fakeBackend{})
	fillBasket(t, e, "a", "b", "c", "d")

	added, err := e.ToggleCompare(context.Background(), product.Product{ID: "e"})
	assert.False(t, added)
	assert.ErrorIs(t, err, ErrBasketFull)
	assert.True(t, IsValidation(err))

	notice, ok := AsNotice(err)
	require.True(t, ok)
	assert.Equal(t, "You can only compare up to 4 products.", notice.Message)
	assert.Equal(t, []string{"a", "b", "c", "d"}, basketIDs(t, e))

	// Removal still works on a full basket.
	added, err = e.ToggleCompare(context.Background(), product.Product{ID: "b"})
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"a", "c", "d"}, basketIDs(t, e))
}

func TestRunComparisonRejectsBadBasketSize(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(0)
	fb := &fakeBackend{}
	e := newTestEngine(t, store, fb)

	_, err := e.RunComparison(ctx)
	assert.ErrorIs(t, err, ErrBasketSize)

	fillBasket(t, e, "a")
	_, err = e.RunComparison(ctx)
	assert.ErrorIs(t, err, ErrBasketSize)
	notice, ok := AsNotice(err)
	require.True(t, ok)
	assert.Equal(t, "Please select 2 to 4 products for comparison.", notice.Message)

	// A basket written by an older client can exceed the cap.
	require.NoError(t, storage.SaveJSON(ctx, store, storage.KeyCompareBasket, products("a", "b", "c", "d", "e")))
	_, err = e.RunComparison(ctx)
	assert.ErrorIs(t, err, ErrBasketSize)

	assert.Zero(t, fb.calls())
}

func TestRunComparisonAcceptsTwoToFour(t *testing.T) {
	for _, ids := range [][]string{{"a", "b"}, {"a", "b", "c"}, {"a", "b", "c", "d"}} {
		fb := &fakeBackend{compare: func(items []product.Summary) (product.ComparisonResult, error) {
			return product.ComparisonResult{Products: make([]product.Comparison, len(items))}, nil
		}}
		e := newTestEngine(t, storage.NewMemoryStore(0), fb)
		fillBasket(t, e, ids...)

		outcome, err := e.RunComparison(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, fb.calls())
		assert.Equal(t, ComparisonPath, outcome.Redirect)
		assert.Len(t, outcome.Products, len(ids))
		assert.Empty(t, basketIDs(t, e))
	}
}

func TestRunComparisonPersistsBackendOrder(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore(0)
	var sent []product.Summary
	fb := &fakeBackend{compare: func(items []product.Summary) (product.ComparisonResult, error) {
		sent = items
		return product.ComparisonResult{
			Products: []product.Comparison{
				{Product: product.Product{ID: "c"}},
				{Product: product.Product{ID: "a"}},
				{Product: product.Product{ID: "b"}},
			},
			OverallComparison: product.Overall{BestValueProduct: "a"},
		}, nil
	}}
	e := newTestEngine(t, store, fb)
	fillBasket(t, e, "a", "b", "c")

	outcome, err := e.RunComparison(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", outcome.Overall.BestValueProduct)

	require.Len(t, sent, 3)
	assert.Equal(t, "a", sent[0].ID)
	assert.Equal(t, "Product a", sent[0].Title)

	results, err := e.ComparisonResults(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c", results[0].Product.ID)
	assert.Equal(t, "a", results[1].Product.ID)
	assert.Equal(t, "b", results[2].Product.ID)

	_, ok, err := store.Get(ctx, storage.KeyCompareBasket)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunComparisonFailureKeepsBasket(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		message string
	}{
		{
			name:    "structured",
			err:     &backend.APIError{Kind: backend.KindStatus, Status: 422, Message: "Too few products"},
			message: "Compare failed: Too few products",
		},
		{
			name:    "status without message",
			err:     &backend.APIError{Kind: backend.KindStatus, Status: 502},
			message: "Compare failed: Unknown error",
		},
		{
			name:    "transport",
			err:     &backend.APIError{Kind: backend.KindTransport, Err: errors.New("dial tcp: refused")},
			message: "Compare failed due to an unexpected error.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fb := &fakeBackend{compare: func([]product.Summary) (product.ComparisonResult, error) {
				return product.ComparisonResult{}, tc.err
			}}
			e := newTestEngine(t, storage.NewMemoryStore(0), fb)
			fillBasket(t, e, "a", "b")

			_, err := e.RunComparison(context.Background())
			notice, ok := AsNotice(err)
			require.True(t, ok)
			assert.Equal(t, tc.message, notice.Message)
			assert.False(t, IsValidation(err))
			assert.Equal(t, []string{"a", "b"}, basketIDs(t, e))

			snap, err := e.Snapshot(context.Background())
			require.NoError(t, err)
			assert.False(t, snap.Comparing)
			assert.True(t, snap.CanCompare)
		})
	}
}

func TestRunComparisonRejectsConcurrentRun(t *testing.T) {
	gate := make(chan struct{})
	fb := &fakeBackend{compare: func([]product.Summary) (product.ComparisonResult, error) {
		<-gate
		return product.ComparisonResult{}, nil
	}}
	e := newTestEngine(t, storage.NewMemoryStore(0), fb)
	fillBasket(t, e, "a", "b")

	done := make(chan error, 1)
	go func() {
		_, err := e.RunComparison(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool {
		snap, err := e.Snapshot(context.Background())
		return err == nil && snap.Comparing
	}, time.Second, 5*time.Millisecond)

	_, err := e.RunComparison(context.Background())
	assert.ErrorIs(t, err, ErrComparisonInFlight)

	close(gate)
	require.NoError(t, <-done)
}

func TestCorruptBasketReadsEmpty(t *testing.T) {
	store := storage.NewMemoryStore(0)
	require.NoError(t, store.Set(context.Background(), storage.KeyCompareBasket, []byte(`not json`)))

	e := newTestEngine(t, store, &fakeBackend{})
	assert.Empty(t, basketIDs(t, e))

	added, err := e.ToggleCompare(context.Background(), product.Product{ID: "a"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"a"}, basketIDs(t, e))
}

func TestWatchBasketSeesOtherViews(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shared := storage.NewMemoryStore(0)
	scoped := storage.Namespace(shared, "device-1")
	tab1 := newTestEngine(t, scoped, &fakeBackend{})
	tab2 := newTestEngine(t, storage.Namespace(shared, "device-1"), &fakeBackend{})

	updates, err := tab2.WatchBasket(ctx)
	require.NoError(t, err)

	select {
	case basket := <-updates:
		assert.Empty(t, basket)
	case <-time.After(time.Second):
		t.Fatal("expected initial basket")
	}

	fillBasket(t, tab1, "a")

	require.Eventually(t, func() bool {
		select {
		case basket := <-updates:
			return len(basket) == 1 && basket[0].ID == "a"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-updates:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}
