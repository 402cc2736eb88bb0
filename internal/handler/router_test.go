package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/shopally-web/backend/internal/identity"
	"github.com/zhouzirui/shopally-web/backend/internal/model/alert"
	"github.com/zhouzirui/shopally-web/backend/internal/model/product"
	"github.com/zhouzirui/shopally-web/backend/internal/service/backend"
	sessionService "github.com/zhouzirui/shopally-web/backend/internal/service/session"
	"github.com/zhouzirui/shopally-web/backend/internal/storage"
)

type nopBackend struct{}

func (nopBackend) Search(context.Context, identity.Identity, backend.SearchRequest) ([]product.Product, error) {
	return []product.Product{}, nil
}

func (nopBackend) Compare(context.Context, identity.Identity, []product.Summary) (product.ComparisonResult, error) {
	return product.ComparisonResult{}, nil
}

func (nopBackend) CreateAlert(context.Context, identity.Identity, backend.AlertRequest) (backend.AlertReceipt, error) {
	return backend.AlertReceipt{}, nil
}

func (nopBackend) DeleteAlert(context.Context, identity.Identity, string) (string, error) {
	return "", nil
}

func newTestRouter() http.Handler {
	store := storage.NewMemoryStore(0)
	return NewRouter(Deps{
		Backend:         nopBackend{},
		Alerts:          alert.NewMemoryStore(),
		Sessions:        sessionService.NewRegistry(time.Hour, sessionService.DeviceEngines(store, nopBackend{}, nil)),
		DefaultLanguage: "en",
	})
}

func TestHealthz(t *testing.T) {
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestRoutesAreMounted(t *testing.T) {
	router := newTestRouter()

	cases := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodGet, "/api/v1/search", "", http.StatusBadRequest},
		{http.MethodPost, "/api/alerts", `{"productId":"p1"}`, http.StatusCreated},
		{http.MethodDelete, "/api/alerts/unknown", "", http.StatusNotFound},
		{http.MethodGet, "/api/session/", "", http.StatusOK},
		{http.MethodGet, "/api/session/basket", "", http.StatusOK},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		if resp.Code != tc.status {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.status, resp.Code)
		}
	}
}

func TestPreflightIsAnswered(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/session/", nil)
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if resp.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("expected CORS headers")
	}
	if cookies := resp.Header().Values("Set-Cookie"); len(cookies) != 0 {
		t.Fatalf("preflight should not mint a device id, got %v", cookies)
	}
}

func TestCrossOriginRequestAllowsCredentials(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://shop.example")
	req.AddCookie(&http.Cookie{Name: identity.CookieDeviceID, Value: "device-1"})
	resp := httptest.NewRecorder()
	newTestRouter().ServeHTTP(resp, req)

	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "https://shop.example" {
		t.Fatalf("expected origin to be echoed, got %q", got)
	}
	if resp.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}
	if cookies := resp.Header().Values("Set-Cookie"); len(cookies) != 0 {
		t.Fatalf("known device should not get a new cookie, got %v", cookies)
	}
}
