package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/archivault/archivault/internal/audit/http"
	"github.com/archivault/archivault/internal/auth"
	"github.com/archivault/archivault/internal/impersonate"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/records"
	"github.com/archivault/archivault/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Guard              auth.Guard
	RBACMiddleware     rbac.Middleware
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	RBACHandler        *rbac.Handler
	AuditHandler       *audithttp.Handler
	RecordsHandler     *records.Handler
	ImpersonateHandler *impersonate.Handler
}

// NewRouter constructs the chi.Router with Archivault defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", params.AuthHandler.Login)
		api.Post("/auth/refresh", params.AuthHandler.Refresh)

		api.Group(func(protected chi.Router) {
			protected.Use(params.Guard.Authenticate)

			protected.Get("/auth/me", params.AuthHandler.Me)

			protected.Post("/impersonate/{id}", params.ImpersonateHandler.Start)
			protected.Post("/impersonate/leave", params.ImpersonateHandler.Leave)

			protected.Route("/users", func(ur chi.Router) {
				ur.With(params.RBACMiddleware.RequirePermission(rbac.PermUserView)).
					Get("/", params.UsersHandler.List)
				ur.With(params.RBACMiddleware.SelfOrPermission(rbac.PermUserView, "id")).
					Get("/{id}", params.UsersHandler.Get)
				ur.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleUpdate)).
					Post("/{id}/roles/{roleId}", params.RBACHandler.AssignUserRole)
				ur.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleUpdate)).
					Delete("/{id}/roles/{roleId}", params.RBACHandler.RemoveUserRole)
			})

			protected.Route("/roles", func(rr chi.Router) {
				rr.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleView)).
					Get("/", params.RBACHandler.ListRoles)
				rr.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleCreate)).
					Post("/", params.RBACHandler.CreateRole)
				rr.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleUpdate)).
					Put("/{id}", params.RBACHandler.UpdateRole)
				rr.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleDelete)).
					Delete("/{id}", params.RBACHandler.DeleteRole)
				rr.With(params.RBACMiddleware.RequirePermission(rbac.PermRoleUpdate)).
					Put("/{id}/permissions", params.RBACHandler.SetRolePermissions)
			})

			protected.With(params.RBACMiddleware.RequirePermission(rbac.PermPermissionView)).
				Get("/permissions", params.RBACHandler.ListPermissions)

			protected.Mount("/audit", audithttp.Routes(params.AuditHandler, params.RBACMiddleware))

			protected.Get("/records/{model}", params.RecordsHandler.List)
			protected.Get("/records/{model}/{id}", params.RecordsHandler.Get)
		})
	})

	return r
}
