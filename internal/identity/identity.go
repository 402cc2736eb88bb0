// Package identity carries the per-client device id and language that every
// outbound backend call must attach.
package identity

import (
	"context"
	"net/http"
	"strings"
)

// Header and cookie names shared with the web client.
const (
	HeaderDeviceID = "X-Device-ID"
	HeaderLanguage = "Accept-Language"
	CookieDeviceID = "deviceId"
	CookieLanguage = "lang"
)

// Identity identifies one browser profile towards the backend.
type Identity struct {
	DeviceID string
	Language string
}

// Valid reports whether a device id is present.
func (i Identity) Valid() bool {
	return i.DeviceID != ""
}

// Apply sets the identification headers on an outbound request.
func (i Identity) Apply(req *http.Request) {
	req.Header.Set(HeaderDeviceID, i.DeviceID)
	req.Header.Set(HeaderLanguage, i.Language)
}

type contextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// FromRequest resolves the identity of an inbound request without minting
// anything. Header values win over cookies.
func FromRequest(r *http.Request, defaultLanguage string) Identity {
	id := Identity{
		DeviceID: strings.TrimSpace(r.Header.Get(HeaderDeviceID)),
	}
	if id.DeviceID == "" {
		if c, err := r.Cookie(CookieDeviceID); err == nil {
			id.DeviceID = strings.TrimSpace(c.Value)
		}
	}

	if c, err := r.Cookie(CookieLanguage); err == nil && strings.TrimSpace(c.Value) != "" {
		id.Language = strings.ToLower(strings.TrimSpace(c.Value))
	} else {
		id.Language = primaryLanguage(r.Header.Get(HeaderLanguage))
	}
	if id.Language == "" {
		id.Language = defaultLanguage
	}
	return id
}

// primaryLanguage picks the first tag of an Accept-Language header, e.g.
// "am-ET,en;q=0.8" yields "am".
func primaryLanguage(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first, _, _ = strings.Cut(first, ";")
	first, _, _ = strings.Cut(strings.TrimSpace(first), "-")
	if first == "*" {
		return ""
	}
	return strings.ToLower(first)
}
