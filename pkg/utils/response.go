package utils

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// Envelope 是所有 JSON 接口统一的响应结构，与后端 API 保持一致。
type Envelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

// RespondData 发送成功响应 {data, error: null}
func RespondData(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, Envelope{Data: data})
}

// RespondError 发送错误响应 {data: null, error}
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, Envelope{Error: message})
}

// DecodeJSON 解析请求体，空请求体视为错误。
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v)
}
