package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
)

const deviceCookieMaxAge = 365 * 24 * time.Hour

// Identity 解析设备 ID 与语言并写入请求上下文。缺少设备 ID 时生成一个新的并通过 cookie 下发。
func Identity(defaultLanguage string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := identity.FromRequest(r, defaultLanguage)
			if !id.Valid() {
				id.DeviceID = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     identity.CookieDeviceID,
					Value:    id.DeviceID,
					Path:     "/",
					MaxAge:   int(deviceCookieMaxAge.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}
