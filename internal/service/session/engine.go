// Package session implements the per-device conversation and comparison
// state: the transcript, the comparison basket, expanded product groups and
// the open product detail.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/chat"
	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	"github.com/zhouzirui/shopally-web/backend/internal/service/saved"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

const (
	// MaxBasket caps the comparison basket.
	MaxBasket = 4
	// MinCompare is the smallest basket a comparison accepts.
	MinCompare = 2
	// CollapsedProducts is how many products a collapsed group shows.
	CollapsedProducts = 4
	// ComparisonPath is where presenters navigate after a comparison.
	ComparisonPath = "/comparison"
)

// Backend is the part of the ShopAlly API the engine calls.
type Backend interface {
	Search(ctx context.Context, id identity.Identity, req backend.SearchRequest) ([]product.Product, error)
	Compare(ctx context.Context, id identity.Identity, products []product.Summary) (product.ComparisonResult, error)
}

// SavedItems keeps products the shopper wants to look at later.
type SavedItems interface {
	Save(ctx context.Context, p product.Product) error
	List(ctx context.Context) ([]saved.Item, error)
	Remove(ctx context.Context, productID string) error
}

// Options wires an Engine. Store must already be scoped to the device.
type Options struct {
	Identity identity.Identity
	Store    storage.Store
	Backend  Backend
	Saved    SavedItems
	Logger   *zap.Logger
	// ScrollLock is told to suspend background scrolling while a product
	// detail is open.
	ScrollLock func(locked bool)
	Now        func() time.Time
	NewID      func() string
}

// Engine owns one device's session state. Persisted snapshots are rewritten
// after every mutation and read once when the engine starts.
type Engine struct {
	store      storage.Store
	backend    Backend
	saved      SavedItems
	logger     *zap.Logger
	scrollLock func(bool)
	now        func() time.Time
	newID      func() string

	mu         sync.Mutex
	id         identity.Identity
	transcript []chat.Message
	expanded   map[string]struct{}
	detail     *product.Product
	draft      string
	filters    chat.Filters
	searching  int
	comparing  bool
	onActivity func()

	// basketMu serializes read-modify-write cycles on the persisted basket.
	basketMu sync.Mutex
}

// NewEngine builds an engine and restores the persisted transcript.
func NewEngine(ctx context.Context, opts Options) *Engine {
	e := &Engine{
		id:         opts.Identity,
		store:      opts.Store,
		backend:    opts.Backend,
		saved:      opts.Saved,
		logger:     opts.Logger,
		scrollLock: opts.ScrollLock,
		now:        opts.Now,
		newID:      opts.NewID,
		expanded:   make(map[string]struct{}),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("device", opts.Identity.DeviceID))
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}

	e.restore(ctx)
	return e
}

func (e *Engine) restore(ctx context.Context) {
	var messages []chat.Message
	ok, err := storage.LoadJSON(ctx, e.store, storage.KeyConversation, &messages)
	switch {
	case errors.Is(err, storage.ErrCorrupt):
		e.logger.Warn("stored conversation is corrupt, starting empty", zap.Error(err))
	case err != nil:
		e.logger.Warn("failed to read stored conversation, starting empty", zap.Error(err))
	case ok:
		e.transcript = messages
	}
	if e.transcript == nil {
		e.transcript = make([]chat.Message, 0, 16)
	}
}

// Identity returns the identity attached to backend calls.
func (e *Engine) Identity() identity.Identity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// SetLanguage switches the language sent with subsequent backend calls.
func (e *Engine) SetLanguage(language string) {
	if language == "" {
		return
	}
	e.mu.Lock()
	e.id.Language = language
	e.mu.Unlock()
}

// Messages returns a copy of the transcript.
func (e *Engine) Messages() []chat.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := make([]chat.Message, len(e.transcript))
	copy(copied, e.transcript)
	return copied
}

// SetDraft replaces the input buffer.
func (e *Engine) SetDraft(text string) {
	e.mu.Lock()
	e.draft = text
	e.mu.Unlock()
}

// Draft returns the input buffer.
func (e *Engine) Draft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft
}

// SetFilters sets the filters sent with subsequent searches.
func (e *Engine) SetFilters(f chat.Filters) {
	e.mu.Lock()
	e.filters = f
	e.mu.Unlock()
}

// SubmitDraft clears the input buffer and submits its content. A blank
// draft is left as is and nothing is submitted.
func (e *Engine) SubmitDraft(ctx context.Context) (*Reply, bool) {
	e.mu.Lock()
	draft := e.draft
	if strings.TrimSpace(draft) == "" {
		e.mu.Unlock()
		return nil, false
	}
	e.draft = ""
	e.mu.Unlock()

	return e.SubmitQuery(ctx, draft)
}

// SubmitQuery appends the user turn right away and searches in the
// background. The assistant turn is appended when the search completes,
// whether it succeeds or not, so concurrent queries land in completion
// order. Cancelling ctx does not abort the search. Blank queries are
// ignored and report false.
func (e *Engine) SubmitQuery(ctx context.Context, query string) (*Reply, bool) {
	if strings.TrimSpace(query) == "" {
		return nil, false
	}

	e.mu.Lock()
	user := e.appendLocked(ctx, chat.Message{Role: chat.RoleUser, Text: query})
	req := backend.SearchRequest{
		Query:       query,
		PriceMaxETB: e.filters.PriceMaxETB,
		MinRating:   e.filters.MinRating,
	}
	id := e.id
	e.searching++
	notify := e.activityLocked()
	e.mu.Unlock()
	notify()

	reply := &Reply{Query: user, done: make(chan struct{})}
	go e.search(context.WithoutCancel(ctx), id, req, reply)
	return reply, true
}

func (e *Engine) search(ctx context.Context, id identity.Identity, req backend.SearchRequest, reply *Reply) {
	msg := chat.Message{Role: chat.RoleAssistant}

	products, err := e.backend.Search(ctx, id, req)
	if err != nil {
		e.logger.Warn("search failed", zap.String("query", req.Query), zap.Error(err))
		msg.Text = fmt.Sprintf("Sorry, I couldn't find products for \"%s\". Please try again.", req.Query)
	} else {
		msg.Text = fmt.Sprintf("Found %d products for \"%s\"", len(products), req.Query)
		if len(products) > 0 {
			msg.Products = products
		}
	}

	e.mu.Lock()
	reply.answer = e.appendLocked(ctx, msg)
	e.searching--
	notify := e.activityLocked()
	e.mu.Unlock()
	notify()

	close(reply.done)
}

// Busy reports whether a search or comparison is in flight.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.searching > 0 || e.comparing
}

// setActivityHook registers fn to run, without e.mu held, after Busy may
// have changed.
func (e *Engine) setActivityHook(fn func()) {
	e.mu.Lock()
	e.onActivity = fn
	e.mu.Unlock()
}

func (e *Engine) activityLocked() func() {
	if e.onActivity == nil {
		return func() {}
	}
	return e.onActivity
}

// appendLocked stamps msg, appends it and rewrites the persisted transcript.
// Timestamps never go backwards even if the clock does.
func (e *Engine) appendLocked(ctx context.Context, msg chat.Message) chat.Message {
	msg.ID = e.newID()
	msg.CreatedAt = e.now()
	if n := len(e.transcript); n > 0 && msg.CreatedAt.Before(e.transcript[n-1].CreatedAt) {
		msg.CreatedAt = e.transcript[n-1].CreatedAt
	}

	e.transcript = append(e.transcript, msg)
	e.persistTranscriptLocked(ctx)
	return msg
}

func (e *Engine) persistTranscriptLocked(ctx context.Context) {
	if err := storage.SaveJSON(ctx, e.store, storage.KeyConversation, e.transcript); err != nil {
		e.logger.Warn("failed to persist conversation", zap.Error(err))
	}
}

// Reset starts a new conversation. Searches still in flight append their
// reply to the new transcript.
func (e *Engine) Reset(ctx context.Context) {
	e.mu.Lock()
	e.transcript = make([]chat.Message, 0, 16)
	e.expanded = make(map[string]struct{})
	wasOpen := e.detail != nil
	e.detail = nil
	e.persistTranscriptLocked(ctx)
	e.mu.Unlock()

	if wasOpen && e.scrollLock != nil {
		e.scrollLock(false)
	}
}

// ToggleExpanded flips a message's product group between all results and
// the first CollapsedProducts, returning the new state.
func (e *Engine) ToggleExpanded(messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.expanded[messageID]; ok {
		delete(e.expanded, messageID)
		return false
	}
	e.expanded[messageID] = struct{}{}
	return true
}

// IsExpanded reports whether the message's product group is expanded.
func (e *Engine) IsExpanded(messageID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.expanded[messageID]
	return ok
}

// VisibleProducts returns the products a presenter shows for msg.
func (e *Engine) VisibleProducts(msg chat.Message) []product.Product {
	if len(msg.Products) <= CollapsedProducts || e.IsExpanded(msg.ID) {
		return msg.Products
	}
	return msg.Products[:CollapsedProducts]
}

// SelectProductDetail opens p in the detail panel, replacing any open one;
// nil closes it.
func (e *Engine) SelectProductDetail(p *product.Product) {
	e.mu.Lock()
	wasOpen := e.detail != nil
	if p != nil {
		selected := *p
		e.detail = &selected
	} else {
		e.detail = nil
	}
	e.mu.Unlock()

	if e.scrollLock == nil {
		return
	}
	if p != nil {
		e.scrollLock(true)
	} else if wasOpen {
		e.scrollLock(false)
	}
}

// Detail returns the product in the detail panel, if any.
func (e *Engine) Detail() *product.Product {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.detail == nil {
		return nil
	}
	selected := *e.detail
	return &selected
}

// SaveItem hands p to the saved-items collaborator and returns the
// confirmation to show.
func (e *Engine) SaveItem(ctx context.Context, p product.Product) (string, error) {
	if e.saved == nil {
		return "", &Notice{Message: "Saving items is not available right now.", Err: ErrSaveUnavailable}
	}
	if err := e.saved.Save(ctx, p); err != nil {
		e.logger.Warn("save item failed", zap.String("product", p.ID), zap.Error(err))
		return "", &Notice{Message: "Could not save the item. Please try again.", Err: err}
	}
	return "Item saved!", nil
}

// SavedItems lists saved products, oldest first.
func (e *Engine) SavedItems(ctx context.Context) ([]saved.Item, error) {
	if e.saved == nil {
		return nil, ErrSaveUnavailable
	}
	return e.saved.List(ctx)
}

// RemoveSaved drops a saved product.
func (e *Engine) RemoveSaved(ctx context.Context, productID string) error {
	if e.saved == nil {
		return ErrSaveUnavailable
	}
	return e.saved.Remove(ctx, productID)
}

// Snapshot renders the current state for presenters.
func (e *Engine) Snapshot(ctx context.Context) (chat.Session, error) {
	basket, err := e.Basket(ctx)
	if err != nil {
		return chat.Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	messages := make([]chat.Message, len(e.transcript))
	copy(messages, e.transcript)

	expanded := make([]string, 0, len(e.expanded))
	for _, msg := range e.transcript {
		if _, ok := e.expanded[msg.ID]; ok {
			expanded = append(expanded, msg.ID)
		}
	}

	var detail *product.Product
	if e.detail != nil {
		selected := *e.detail
		detail = &selected
	}

	return chat.Session{
		Messages:   messages,
		Basket:     basket,
		Expanded:   expanded,
		Detail:     detail,
		Draft:      e.draft,
		Filters:    e.filters,
		Searching:  e.searching > 0,
		Comparing:  e.comparing,
		CanCompare: len(basket) >= MinCompare,
	}, nil
}

// Reply tracks the assistant turn of a submitted query.
type Reply struct {
	// Query is the user turn appended on submission.
	Query chat.Message

	done   chan struct{}
	answer chat.Message
}

// Done is closed once the assistant turn is in the transcript.
func (r *Reply) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the assistant turn is appended or ctx ends.
func (r *Reply) Wait(ctx context.Context) (chat.Message, error) {
	select {
	case <-r.done:
		return r.answer, nil
	case <-ctx.Done():
		return chat.Message{}, ctx.Err()
	}
}
