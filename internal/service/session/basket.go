package session

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

// Outcome is the result of a successful comparison.
type Outcome struct {
	Products []product.Comparison `json:"products"`
	Overall  product.Overall      `json:"overallComparison"`
	// Redirect is where the presenter navigates next.
	Redirect string `json:"redirect"`
}

// Basket returns the persisted comparison basket in insertion order. A
// corrupt snapshot reads as empty.
func (e *Engine) Basket(ctx context.Context) ([]product.Product, error) {
	basket := make([]product.Product, 0, MaxBasket)
	if _, err := storage.LoadJSON(ctx, e.store, storage.KeyCompareBasket, &basket); err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return nil, fmt.Errorf("load basket: %w", err)
		}
		e.logger.Warn("stored basket is corrupt, treating as empty", zap.Error(err))
		return make([]product.Product, 0), nil
	}
	if basket == nil {
		basket = make([]product.Product, 0)
	}
	return basket, nil
}

// ToggleCompare removes p from the basket when an item with the same id is
// present and appends it otherwise. It reports whether p is now in the
// basket. Adding to a full basket fails with a Notice wrapping
// ErrBasketFull and leaves the basket untouched.
func (e *Engine) ToggleCompare(ctx context.Context, p product.Product) (bool, error) {
	e.basketMu.Lock()
	defer e.basketMu.Unlock()

	basket, err := e.Basket(ctx)
	if err != nil {
		return false, err
	}

	for i, item := range basket {
		if item.ID == p.ID {
			basket = append(basket[:i], basket[i+1:]...)
			return false, e.saveBasket(ctx, basket)
		}
	}

	if len(basket) >= MaxBasket {
		return false, &Notice{
			Message: fmt.Sprintf("You can only compare up to %d products.", MaxBasket),
			Err:     ErrBasketFull,
		}
	}
	return true, e.saveBasket(ctx, append(basket, p))
}

func (e *Engine) saveBasket(ctx context.Context, basket []product.Product) error {
	if err := storage.SaveJSON(ctx, e.store, storage.KeyCompareBasket, basket); err != nil {
		return fmt.Errorf("save basket: %w", err)
	}
	return nil
}

// WatchBasket streams the basket, starting with its current content, every
// time any view of this device changes it. The channel closes when ctx ends.
// Intermediate states may be skipped; the latest one is always delivered.
func (e *Engine) WatchBasket(ctx context.Context) (<-chan []product.Product, error) {
	changes, err := e.store.Watch(ctx, storage.KeyCompareBasket)
	if err != nil {
		return nil, fmt.Errorf("watch basket: %w", err)
	}

	out := make(chan []product.Product, 1)
	go func() {
		defer close(out)

		send := func() bool {
			basket, err := e.Basket(ctx)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("reload basket after change", zap.Error(err))
				}
				return ctx.Err() == nil
			}
			select {
			case out <- basket:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send() {
			return
		}
		for range changes {
			if !send() {
				return
			}
		}
	}()
	return out, nil
}

// RunComparison compares the basket when it holds MinCompare to MaxBasket
// products. On success the backend's analysis replaces the stored
// comparison results and the basket is cleared. On failure the basket is
// kept and the returned Notice carries the message to show.
func (e *Engine) RunComparison(ctx context.Context) (Outcome, error) {
	basket, err := e.Basket(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if len(basket) < MinCompare || len(basket) > MaxBasket {
		return Outcome{}, &Notice{
			Message: fmt.Sprintf("Please select %d to %d products for comparison.", MinCompare, MaxBasket),
			Err:     ErrBasketSize,
		}
	}

	e.mu.Lock()
	if e.comparing {
		e.mu.Unlock()
		return Outcome{}, &Notice{Message: "A comparison is already running.", Err: ErrComparisonInFlight}
	}
	e.comparing = true
	id := e.id
	notify := e.activityLocked()
	e.mu.Unlock()
	notify()

	defer func() {
		e.mu.Lock()
		e.comparing = false
		notify := e.activityLocked()
		e.mu.Unlock()
		notify()
	}()

	result, err := e.backend.Compare(ctx, id, product.Summarize(basket))
	if err != nil {
		e.logger.Warn("compare failed", zap.Int("products", len(basket)), zap.Error(err))
		return Outcome{}, compareNotice(err)
	}

	if result.Products == nil {
		result.Products = make([]product.Comparison, 0)
	}
	if err := storage.SaveJSON(ctx, e.store, storage.KeyComparisonResults, result.Products); err != nil {
		return Outcome{}, fmt.Errorf("save comparison results: %w", err)
	}

	e.basketMu.Lock()
	err = e.store.Delete(ctx, storage.KeyCompareBasket)
	e.basketMu.Unlock()
	if err != nil {
		return Outcome{}, fmt.Errorf("clear basket: %w", err)
	}

	return Outcome{
		Products: result.Products,
		Overall:  result.OverallComparison,
		Redirect: ComparisonPath,
	}, nil
}

// ComparisonResults returns the last persisted comparison in the order the
// backend returned it.
func (e *Engine) ComparisonResults(ctx context.Context) ([]product.Comparison, error) {
	results := make([]product.Comparison, 0)
	if _, err := storage.LoadJSON(ctx, e.store, storage.KeyComparisonResults, &results); err != nil {
		if !errors.Is(err, storage.ErrCorrupt) {
			return nil, fmt.Errorf("load comparison results: %w", err)
		}
		e.logger.Warn("stored comparison results are corrupt", zap.Error(err))
		return make([]product.Comparison, 0), nil
	}
	if results == nil {
		results = make([]product.Comparison, 0)
	}
	return results, nil
}
