// Package records exposes read access to the core business entities through
// the audited data-access dispatch. Write paths live with their owning
// services; this surface exists for lookups and list views.
package records

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/store"
)

// exposed maps each readable entity type to the permission gating it.
var exposed = map[string]rbac.Permission{
	"companies":           rbac.PermCompanyView,
	"areas":               rbac.PermAreaView,
	"correspondences":     rbac.PermCorrespondenceView,
	"retention_schedules": rbac.PermRetentionView,
	"warehouses":          rbac.PermWarehouseView,
	"boxes":               rbac.PermBoxView,
	"tickets":             rbac.PermTicketView,
	"users":               rbac.PermUserView,
}

// redacted columns never leave the API.
var redacted = []string{"password_hash"}

// Handler serves the generic record read endpoints.
type Handler struct {
	logger *slog.Logger
	client *store.Client
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, client *store.Client) *Handler {
	return &Handler{logger: logger, client: client}
}

// Get handles GET /api/records/{model}/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	model, ok := h.authorize(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	res, err := h.client.Do(r.Context(), store.Operation{
		Model:  model,
		Action: store.ActionFindUnique,
		Args:   store.Args{Where: map[string]any{"id": id}},
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.RespondError(w, httpx.ErrNotFound)
			return
		}
		h.logger.Error("record get", slog.String("model", model), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, redact(res.Record))
}

// List handles GET /api/records/{model}. Bulk reads are not audited.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	model, ok := h.authorize(w, r)
	if !ok {
		return
	}
	res, err := h.client.Do(r.Context(), store.Operation{
		Model:  model,
		Action: store.ActionFindMany,
	})
	if err != nil {
		h.logger.Error("record list", slog.String("model", model), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]map[string]any, len(res.Records))
	for i, rec := range res.Records {
		out[i] = redact(rec)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	model := chi.URLParam(r, "model")
	perm, ok := exposed[model]
	if !ok {
		httpx.RespondError(w, httpx.ErrNotFound)
		return "", false
	}
	actor := requestctx.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return "", false
	}
	if !actor.HasPermission(string(perm)) {
		httpx.RespondError(w, httpx.ErrForbidden)
		return "", false
	}
	return model, true
}

func redact(record map[string]any) map[string]any {
	if record == nil {
		return nil
	}
	for _, col := range redacted {
		delete(record, col)
	}
	return record
}
