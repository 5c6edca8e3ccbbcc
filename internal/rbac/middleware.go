package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/requestctx"
)

// Middleware wires permission gates for HTTP handlers. It reads the actor
// snapshot populated by the authentication guard, so no queries run here.
type Middleware struct {
	Logger *slog.Logger
}

// RequirePermission admits the request only when the authenticated actor holds
// the permission. Names outside the catalog deny and log a configuration
// warning: a permission nobody can satisfy is almost certainly a typo.
func (m Middleware) RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := requestctx.ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if !InCatalog(perm) {
				if m.Logger != nil {
					m.Logger.Warn("permission check against unknown name",
						slog.String("permission", string(perm)),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			if !actor.HasPermission(string(perm)) {
				httpx.RespondError(w, httpx.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SelfOrPermission admits unconditionally when the path parameter names the
// actor's own id, and falls back to a permission check otherwise. The self
// comparison runs before any resource lookup so a denied probe learns nothing
// about whether the target exists.
func (m Middleware) SelfOrPermission(perm Permission, param string) func(http.Handler) http.Handler {
	gate := m.RequirePermission(perm)
	return func(next http.Handler) http.Handler {
		guarded := gate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := requestctx.ActorFromContext(r.Context())
			if actor == nil {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if raw := chi.URLParam(r, param); raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id == actor.ID {
					next.ServeHTTP(w, r)
					return
				}
			}
			guarded.ServeHTTP(w, r)
		})
	}
}
