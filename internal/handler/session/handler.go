package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/chat"
	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	sessionService "github.com/zhouzirui/shopally-web/backend/internal/service/session"
	"github.com/zhouzirui/shopally-web/backend/pkg/utils"
)

// Handler 会话状态引擎的HTTP处理器
type Handler struct {
	registry *sessionService.Registry
	logger   *zap.Logger
}

// New 创建会话处理器
func New(registry *sessionService.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger.Named("session")}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/session", func(s chi.Router) {
		s.Get("/", h.handleSnapshot)
		s.Delete("/", h.handleReset)

		s.Post("/query", h.handleQuery)
		s.Put("/draft", h.handleSetDraft)
		s.Post("/draft/submit", h.handleSubmitDraft)
		s.Put("/filters", h.handleSetFilters)
		s.Get("/stream", h.handleStream)

		s.Get("/basket", h.handleBasket)
		s.Post("/basket/toggle", h.handleToggleBasket)
		s.Get("/basket/ws", h.handleBasketFeed)
		s.Post("/compare", h.handleCompare)
		s.Get("/comparison", h.handleComparison)

		s.Post("/messages/{messageID}/expand", h.handleToggleExpanded)
		s.Put("/detail", h.handleOpenDetail)
		s.Delete("/detail", h.handleCloseDetail)

		s.Get("/saved", h.handleListSaved)
		s.Post("/saved", h.handleSave)
		s.Delete("/saved/{productID}", h.handleRemoveSaved)
	})
}

// engine 根据请求中的设备身份取得会话引擎
func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*sessionService.Engine, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "Missing device id")
		return nil, false
	}
	return h.registry.Engine(r.Context(), id), true
}

// respondFailure 把引擎错误映射为 HTTP 状态码：本地校验 400，后端失败 502。
func (h *Handler) respondFailure(w http.ResponseWriter, op string, err error) {
	if notice, ok := sessionService.AsNotice(err); ok {
		status := http.StatusInternalServerError
		switch {
		case isBackendError(err):
			status = http.StatusBadGateway
		case errors.Is(err, sessionService.ErrBasketFull), errors.Is(err, sessionService.ErrComparisonInFlight):
			status = http.StatusConflict
		case errors.Is(err, sessionService.ErrBasketSize):
			status = http.StatusBadRequest
		case errors.Is(err, sessionService.ErrSaveUnavailable):
			status = http.StatusServiceUnavailable
		}
		utils.RespondError(w, status, notice.Message)
		return
	}
	h.logger.Error("session operation failed", zap.String("op", op), zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	snap, err := e.Snapshot(r.Context())
	if err != nil {
		h.respondFailure(w, "snapshot", err)
		return
	}
	utils.RespondData(w, http.StatusOK, snap)
}

// handleReset 开始新的对话
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.Reset(r.Context())
	h.handleSnapshot(w, r)
}

type queryPayload struct {
	Text string `json:"text"`
	// Wait 为 true 时等待助手回复后再返回。
	Wait bool `json:"wait"`
}

type queryResult struct {
	Query  chat.Message  `json:"query"`
	Answer *chat.Message `json:"answer,omitempty"`
}

// handleQuery 提交一次搜索
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var payload queryPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	reply, ok := e.SubmitQuery(r.Context(), payload.Text)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	h.respondReply(w, r, reply, payload.Wait)
}

// handleSubmitDraft 提交输入框内容并清空
func (h *Handler) handleSubmitDraft(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	reply, ok := e.SubmitDraft(r.Context())
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "draft is empty")
		return
	}
	h.respondReply(w, r, reply, r.URL.Query().Get("wait") == "true")
}

func (h *Handler) respondReply(w http.ResponseWriter, r *http.Request, reply *sessionService.Reply, wait bool) {
	if !wait {
		utils.RespondData(w, http.StatusAccepted, queryResult{Query: reply.Query})
		return
	}

	answer, err := reply.Wait(r.Context())
	if err != nil {
		// 客户端已断开，搜索仍会在后台完成。
		return
	}
	utils.RespondData(w, http.StatusOK, queryResult{Query: reply.Query, Answer: &answer})
}

func (h *Handler) handleSetDraft(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.SetDraft(payload.Text)
	utils.RespondData(w, http.StatusOK, map[string]string{"draft": payload.Text})
}

func (h *Handler) handleSetFilters(w http.ResponseWriter, r *http.Request) {
	var filters chat.Filters
	if err := utils.DecodeJSON(r, &filters); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (filters.PriceMaxETB != nil && *filters.PriceMaxETB < 0) || (filters.MinRating != nil && (*filters.MinRating < 0 || *filters.MinRating > 5)) {
		utils.RespondError(w, http.StatusBadRequest, "filters out of range")
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.SetFilters(filters)
	utils.RespondData(w, http.StatusOK, filters)
}

func (h *Handler) handleBasket(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	basket, err := e.Basket(r.Context())
	if err != nil {
		h.respondFailure(w, "basket", err)
		return
	}
	utils.RespondData(w, http.StatusOK, basket)
}

// handleToggleBasket 加入或移出比较篮
func (h *Handler) handleToggleBasket(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	added, err := e.ToggleCompare(r.Context(), p)
	if err != nil {
		h.respondFailure(w, "toggle compare", err)
		return
	}
	basket, err := e.Basket(r.Context())
	if err != nil {
		h.respondFailure(w, "basket", err)
		return
	}
	utils.RespondData(w, http.StatusOK, map[string]any{"added": added, "basket": basket})
}

// handleCompare 对比较篮中的商品发起比较
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	outcome, err := e.RunComparison(r.Context())
	if err != nil {
		h.respondFailure(w, "compare", err)
		return
	}
	utils.RespondData(w, http.StatusOK, outcome)
}

func (h *Handler) handleComparison(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	results, err := e.ComparisonResults(r.Context())
	if err != nil {
		h.respondFailure(w, "comparison results", err)
		return
	}
	utils.RespondData(w, http.StatusOK, results)
}

// handleToggleExpanded 展开或折叠某条消息的商品列表
func (h *Handler) handleToggleExpanded(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	messageID := chi.URLParam(r, "messageID")
	expanded := e.ToggleExpanded(messageID)
	utils.RespondData(w, http.StatusOK, map[string]any{"messageId": messageID, "expanded": expanded})
}

func (h *Handler) handleOpenDetail(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.SelectProductDetail(&p)
	utils.RespondData(w, http.StatusOK, e.Detail())
}

func (h *Handler) handleCloseDetail(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	e.SelectProductDetail(nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListSaved(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	items, err := e.SavedItems(r.Context())
	if err != nil {
		h.respondFailure(w, "list saved", err)
		return
	}
	utils.RespondData(w, http.StatusOK, items)
}

// handleSave 收藏商品
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	p, ok := decodeProduct(w, r)
	if !ok {
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	message, err := e.SaveItem(r.Context(), p)
	if err != nil {
		h.respondFailure(w, "save item", err)
		return
	}
	utils.RespondData(w, http.StatusCreated, map[string]string{"message": message})
}

func (h *Handler) handleRemoveSaved(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}
	if err := e.RemoveSaved(r.Context(), chi.URLParam(r, "productID")); err != nil {
		h.respondFailure(w, "remove saved", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isBackendError(err error) bool {
	_, ok := backend.AsAPIError(err)
	return ok
}

func decodeProduct(w http.ResponseWriter, r *http.Request) (product.Product, bool) {
	var p product.Product
	if err := utils.DecodeJSON(r, &p); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return product.Product{}, false
	}
	if strings.TrimSpace(p.ID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "product id is required")
		return product.Product{}, false
	}
	return p, true
}
