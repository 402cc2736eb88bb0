package alert

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/alert"
	"github.com/zhouzirui/shopally-web/backend/pkg/utils"
)

// Handler 本地价格提醒记录的HTTP处理器
type Handler struct {
	store alert.Store
}

// New 创建提醒处理器
func New(store alert.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册提醒相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/alerts", h.handleList)
	r.Post("/alerts", h.handleCreate)
	r.Delete("/alerts/{alertId}", h.handleDelete)
}

// handleCreate 记录一个提醒，alertId 与 productId 相同
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ProductID string `json:"productId"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, _ := identity.FromContext(r.Context())
	created, err := h.store.Create(alert.Alert{
		DeviceID:  id.DeviceID,
		ProductID: payload.ProductID,
		Status:    "active",
	})
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	utils.RespondData(w, http.StatusCreated, map[string]string{
		"status":  "Alert created successfully",
		"alertId": created.ID,
	})
}

// handleDelete 删除当前设备的提醒，未知或其他设备的 id 返回 404
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	if err := h.store.Delete(id.DeviceID, chi.URLParam(r, "alertId")); err != nil {
		if errors.Is(err, alert.ErrNotFound) {
			utils.RespondError(w, http.StatusNotFound, "Not Found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondData(w, http.StatusOK, map[string]string{"status": "Alert deleted successfully"})
}

// handleList 列出当前设备的提醒
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, _ := identity.FromContext(r.Context())
	utils.RespondData(w, http.StatusOK, h.store.ListByDevice(id.DeviceID))
}
