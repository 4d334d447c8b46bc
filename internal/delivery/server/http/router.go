// Package http implements the HTTP/WebSocket delivery layer over the auth
// service, the dispatch core, and the memory facade (spec §6).
package http

import (
	"net/http"

	authapp "alex/internal/auth/app"
	"alex/internal/delivery/server/http/ws"
	"alex/internal/dispatch"
	"alex/internal/memory/facade"
	"alex/internal/plugin"
)

// Route names used as rate-limit buckets for the routes the dispatch core
// doesn't already own (spec §6's route table).
const (
	RouteRegister       = "/auth/register"
	RouteLogin          = "/auth/login"
	RouteRefresh        = "/auth/refresh"
	RouteChangePassword = "/auth/change-password"
	RouteMemorySearch   = "/memory/search"
	RouteMemoryCreate   = "/memory"
)

// DefaultRouteLimits mirrors the per-route caps named in spec §6 for routes
// outside the dispatch core's own RateLimiter.
func DefaultRouteLimits() map[string]dispatch.RouteLimit {
	return map[string]dispatch.RouteLimit{
		RouteRegister:       {PerMinute: 5},
		RouteLogin:          {PerMinute: 10},
		RouteRefresh:        {PerMinute: 20},
		RouteChangePassword: {PerMinute: 5},
		RouteMemorySearch:   {PerMinute: 60},
		RouteMemoryCreate:   {PerMinute: 30},
	}
}

// Deps bundles every collaborator the HTTP delivery layer needs.
type Deps struct {
	Auth    *authapp.Service
	Core    *dispatch.Core
	Memory  *facade.Facade
	Plugins *plugin.Host
	Limiter *dispatch.RateLimiter // routes registered via DefaultRouteLimits
}

// rateLimited wraps next, refusing the request with 429 when key exceeds
// route's configured cap. A nil limiter (or an unconfigured route) always
// allows, matching dispatch.RateLimiter.Allow's own permissive default.
func rateLimited(limiter *dispatch.RateLimiter, route string, keyFn func(*http.Request) string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if limiter != nil {
			if err := limiter.Allow(route, keyFn(r)); err != nil {
				writeClassifiedError(w, err)
				return
			}
		}
		next(w, r)
	}
}

func authedKey(r *http.Request) string {
	if claims, ok := claimsFromContext(r.Context()); ok {
		return claims.Subject
	}
	return remoteKey(r)
}

// NewRouter builds the full HTTP surface: auth, chat, memory, and the
// WebSocket upgrade endpoint, each versioned under /api/v1.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	authH := NewAuthHandlers(deps.Auth)
	chatH := NewChatHandlers(deps.Core)
	memH := NewMemoryHandlers(deps.Core, deps.Memory)
	pluginH := NewPluginHandlers(deps.Plugins)
	wsH := ws.NewHandler(deps.Auth, deps.Core)

	requireAuth := RequireAuth(deps.Auth)

	mux.HandleFunc("POST /api/v1/auth/register", rateLimited(deps.Limiter, RouteRegister, remoteKey, authH.Register))
	mux.HandleFunc("POST /api/v1/auth/login", rateLimited(deps.Limiter, RouteLogin, remoteKey, authH.Login))
	mux.HandleFunc("POST /api/v1/auth/refresh", rateLimited(deps.Limiter, RouteRefresh, remoteKey, authH.Refresh))
	mux.Handle("GET /api/v1/auth/me", requireAuth(http.HandlerFunc(authH.Me)))
	mux.Handle("POST /api/v1/auth/change-password", requireAuth(http.HandlerFunc(
		rateLimited(deps.Limiter, RouteChangePassword, authedKey, authH.ChangePassword))))
	mux.Handle("DELETE /api/v1/auth/users/{id}", requireAuth(http.HandlerFunc(RequireAdmin(authH.DeleteUser))))

	mux.Handle("POST /api/v1/chat", requireAuth(http.HandlerFunc(
		rateLimited(deps.Core.Limiter(), dispatch.RouteChat, authedKey, chatH.Chat))))
	mux.Handle("POST /api/v1/chat/stream", requireAuth(http.HandlerFunc(
		rateLimited(deps.Core.Limiter(), dispatch.RouteChatStream, authedKey, chatH.Stream))))
	mux.Handle("GET /api/v1/chat/history/{session}", requireAuth(http.HandlerFunc(chatH.History)))
	mux.Handle("GET /api/v1/chat/sessions", requireAuth(http.HandlerFunc(chatH.Sessions)))
	mux.Handle("DELETE /api/v1/chat/sessions/{session}", requireAuth(http.HandlerFunc(chatH.DeleteSession)))

	mux.Handle("POST /api/v1/memory/search", requireAuth(http.HandlerFunc(
		rateLimited(deps.Limiter, RouteMemorySearch, authedKey, memH.Search))))
	mux.Handle("POST /api/v1/memory", requireAuth(http.HandlerFunc(
		rateLimited(deps.Limiter, RouteMemoryCreate, authedKey, memH.Create))))
	mux.Handle("DELETE /api/v1/memory/{id}", requireAuth(http.HandlerFunc(memH.Delete)))
	mux.Handle("GET /api/v1/memory/stats", requireAuth(http.HandlerFunc(memH.Stats)))
	mux.Handle("DELETE /api/v1/memory/sessions/{s}/all", requireAuth(http.HandlerFunc(memH.DeleteSessionAll)))
	mux.Handle("POST /api/v1/memory/admin/flush", requireAuth(http.HandlerFunc(RequireAdmin(memH.AdminFlush))))

	mux.Handle("GET /api/v1/admin/plugins", requireAuth(http.HandlerFunc(RequireAdmin(pluginH.List))))
	mux.Handle("POST /api/v1/admin/plugins/{name}/execute", requireAuth(http.HandlerFunc(RequireAdmin(pluginH.Execute))))
	mux.Handle("GET /api/v1/admin/plugins/{name}/history", requireAuth(http.HandlerFunc(RequireAdmin(pluginH.History))))

	mux.Handle("/api/v1/ws", wsH)

	return mux
}
