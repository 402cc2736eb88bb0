package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/alert"
	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	"github.com/zhouzirui/shopally-web/backend/pkg/utils"
)

// Backend 是代理转发需要的后端接口。
type Backend interface {
	Search(ctx context.Context, id identity.Identity, req backend.SearchRequest) ([]product.Product, error)
	Compare(ctx context.Context, id identity.Identity, products []product.Summary) (product.ComparisonResult, error)
	CreateAlert(ctx context.Context, id identity.Identity, req backend.AlertRequest) (backend.AlertReceipt, error)
	DeleteAlert(ctx context.Context, id identity.Identity, alertID string) (string, error)
}

// Handler 把浏览器请求转发到 ShopAlly 后端，并统一响应格式。
type Handler struct {
	backend Backend
	alerts  alert.Store
	logger  *zap.Logger
}

// New 创建代理处理器
func New(b Backend, alerts alert.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{backend: b, alerts: alerts, logger: logger.Named("proxy")}
}

// RegisterRoutes 注册 /v1 代理路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/search", h.handleSearch)
		v1.Post("/compare", h.handleCompare)
		v1.Post("/alerts", h.handleCreateAlert)
		v1.Delete("/alerts/{alertId}", h.handleDeleteAlert)
	})
}

func (h *Handler) identity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, ok := identity.FromContext(r.Context())
	if !ok || !id.Valid() {
		utils.RespondError(w, http.StatusBadRequest, "Missing device id")
		return identity.Identity{}, false
	}
	return id, true
}

// handleSearch 转发商品搜索
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		utils.RespondError(w, http.StatusBadRequest, "Missing query")
		return
	}

	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	req := backend.SearchRequest{Query: query}
	var err error
	if req.PriceMaxETB, err = optionalFloat(r, "priceMaxETB"); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid priceMaxETB")
		return
	}
	if req.MinRating, err = optionalFloat(r, "minRating"); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "Invalid minRating")
		return
	}

	products, err := h.backend.Search(r.Context(), id, req)
	if err != nil {
		h.respondBackendError(w, "search", err)
		return
	}
	utils.RespondData(w, http.StatusOK, map[string]any{"products": products})
}

// handleCompare 转发商品比较
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var payload struct {
		Products []product.Summary `json:"products"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(payload.Products) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "products are required")
		return
	}

	result, err := h.backend.Compare(r.Context(), id, payload.Products)
	if err != nil {
		h.respondBackendError(w, "compare", err)
		return
	}
	utils.RespondData(w, http.StatusOK, result)
}

// handleCreateAlert 转发价格提醒创建，并在本地记录 alertId
func (h *Handler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	var payload backend.AlertRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ProductID == "" {
		utils.RespondError(w, http.StatusBadRequest, alert.ErrProductRequired.Error())
		return
	}

	receipt, err := h.backend.CreateAlert(r.Context(), id, payload)
	if err != nil {
		h.respondBackendError(w, "create alert", err)
		return
	}

	if h.alerts != nil {
		if _, err := h.alerts.Create(alert.Alert{
			ID:        receipt.AlertID,
			DeviceID:  id.DeviceID,
			ProductID: payload.ProductID,
			Status:    receipt.Status,
		}); err != nil {
			h.logger.Warn("mirror alert failed", zap.String("alertId", receipt.AlertID), zap.Error(err))
		}
	}
	utils.RespondData(w, http.StatusOK, receipt)
}

// handleDeleteAlert 转发价格提醒删除
func (h *Handler) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identity(w, r)
	if !ok {
		return
	}

	alertID := chi.URLParam(r, "alertId")
	status, err := h.backend.DeleteAlert(r.Context(), id, alertID)
	if err != nil {
		h.respondBackendError(w, "delete alert", err)
		return
	}

	if h.alerts != nil {
		if err := h.alerts.Delete(id.DeviceID, alertID); err != nil && !errors.Is(err, alert.ErrNotFound) {
			h.logger.Warn("forget alert failed", zap.String("alertId", alertID), zap.Error(err))
		}
	}
	utils.RespondData(w, http.StatusOK, map[string]string{"status": status})
}

// respondBackendError 透传后端的状态码与错误信息；网络错误与解析错误返回 502。
func (h *Handler) respondBackendError(w http.ResponseWriter, op string, err error) {
	status, message := http.StatusBadGateway, "backend unavailable"
	if apiErr, ok := backend.AsAPIError(err); ok {
		switch apiErr.Kind {
		case backend.KindStatus:
			status = apiErr.Status
			message = apiErr.Message
			if message == "" {
				message = http.StatusText(apiErr.Status)
			}
		case backend.KindDecode:
			message = "invalid backend response"
		}
	}
	h.logger.Warn("backend call failed", zap.String("op", op), zap.Int("status", status), zap.Error(err))
	utils.RespondError(w, status, message)
}

func optionalFloat(r *http.Request, key string) (*float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
