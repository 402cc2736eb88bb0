package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	alertHandler "github.com/zhouzirui/shopally-web/backend/internal/handler/alert"
	"github.com/zhouzirui/shopally-web/backend/internal/handler/proxy"
	sessionHandler "github.com/zhouzirui/shopally-web/backend/internal/handler/session"
	middlewarePkg "github.com/zhouzirui/shopally-web/backend/internal/middleware"
	"github.com/zhouzirui/shopally-web/backend/internal/model/alert"
	sessionService "github.com/zhouzirui/shopally-web/backend/internal/service/session"
	"github.com/zhouzirui/shopally-web/backend/pkg/utils"
)

// Deps 汇总路由需要的服务。
type Deps struct {
	Backend         proxy.Backend
	Alerts          alert.Store
	Sessions        *sessionService.Registry
	Logger          *zap.Logger
	DefaultLanguage string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// Preflights are answered before a device id is minted.
	r.Use(middlewarePkg.CORS)
	r.Use(middlewarePkg.Identity(deps.DefaultLanguage))
	r.Use(middlewarePkg.RequestLogger(logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondData(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		// Proxies to the ShopAlly backend
		proxy.New(deps.Backend, deps.Alerts, logger).RegisterRoutes(api)

		// Local alert ids
		alertHandler.New(deps.Alerts).RegisterRoutes(api)

		// Per-device session state
		sessionHandler.New(deps.Sessions, logger).RegisterRoutes(api)
	})

	return r
}
