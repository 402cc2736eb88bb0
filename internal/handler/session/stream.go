package session

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/shopally-web/backend/pkg/utils"
)

// StreamEvent 是 SSE 推送的数据块
type StreamEvent struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleStream 提交一次搜索并通过 Server-Sent Events 推送用户消息与助手回复。
// 客户端断开不会中止搜索，回复仍会写入对话记录。
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("message")
	if strings.TrimSpace(text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	reply, ok := e.SubmitQuery(r.Context(), text)
	if !ok {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "start", StreamEvent{Event: "start", Content: text}); err != nil {
		return
	}
	if err := utils.SendSSEEvent(w, flusher, "message", reply.Query); err != nil {
		return
	}

	answer, err := reply.Wait(r.Context())
	if err != nil {
		h.logger.Debug("stream client went away", zap.String("message", reply.Query.ID))
		return
	}
	if err := utils.SendSSEEvent(w, flusher, "message", answer); err != nil {
		return
	}
	_ = utils.SendSSEEvent(w, flusher, "end", StreamEvent{Event: "end", Finished: true})
}
