package audithttp

import (
	"github.com/go-chi/chi/v5"

	"github.com/archivault/archivault/internal/rbac"
)

// Routes mounts the audit timeline endpoints behind the audit.view gate.
func Routes(h *Handler, mw rbac.Middleware) chi.Router {
	r := chi.NewRouter()
	r.Use(mw.RequirePermission(rbac.PermAuditView))
	r.Get("/", h.Timeline)
	r.Get("/export", h.Export)
	return r
}
