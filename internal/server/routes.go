package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DosymzhanKogabaev/finsight-ai/pkg/business/xauth"
	"github.com/DosymzhanKogabaev/finsight-ai/pkg/resilience/xlimit"
)

// 路由
const (
	PathHealth    = "/healthz"
	PathRefresh   = "/api/auth/public/refresh"
	PathLogout    = "/api/auth/public/logout"
	PathMe        = "/api/auth/private/me"
	PathSessions  = "/api/auth/private/sessions"
	PathLogoutAll = "/api/auth/private/logout-all"
)

// routes 请求依次经过：Resolver 识别身份，限流，Gate 对私有路由强制认证。
func (s *Server) routes() (http.Handler, error) {
	internal, err := xlimit.ParseNetworks(s.cfg.Limits.InternalNetworks)
	if err != nil {
		return nil, err
	}
	limit := func(scope string) func(http.Handler) http.Handler {
		return xlimit.HTTPMiddleware(s.registry, scope, s.Limits(scope),
			xlimit.WithConfigFunc(func() xlimit.Config { return s.Limits(scope) }),
			xlimit.WithCheckTimeout(s.cfg.Limits.CheckTimeout),
			xlimit.WithInternalNetworks(internal),
			xlimit.WithMiddlewareLogger(s.logger),
		)
	}
	gate := xauth.Gate(s.codec, xauth.WithGateLogger(s.logger))

	r := chi.NewRouter()
	r.Use(requestID, clientIP(s.cfg.Server.TrustRemoteAddr), accessLog(s.logger), recoverer(s.logger))
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, notFoundError, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, methodNotAllowedError, "Method not allowed")
	})

	r.Get(PathHealth, s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(xauth.Resolver(s.codec))

		r.Group(func(r chi.Router) {
			r.Use(limit(ScopeAuth))
			r.Post(PathRefresh, s.handleRefresh)
			r.Post(PathLogout, s.handleLogout)
		})

		r.Group(func(r chi.Router) {
			r.Use(limit(ScopeAPI), gate)
			r.Get(PathMe, s.handleMe)
			r.Get(PathSessions, s.handleSessions)
			r.Post(PathLogoutAll, s.handleLogoutAll)
		})
	})
	return r, nil
}
