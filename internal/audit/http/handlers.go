// Package audithttp serves the audit timeline read side.
package audithttp

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/archivault/archivault/internal/audit"
	"github.com/archivault/archivault/internal/platform/httpx"
)

// Handler serves audit timeline endpoints.
type Handler struct {
	logger  *slog.Logger
	service *audit.Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *audit.Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type eventResponse struct {
	ID         int64     `json:"id"`
	BatchID    string    `json:"batchId"`
	ActorID    int64     `json:"actorId"`
	Kind       string    `json:"kind"`
	EntityType string    `json:"entityType"`
	TargetID   int64     `json:"targetId"`
	Original   string    `json:"original,omitempty"`
	Changes    string    `json:"changes,omitempty"`
	IP         string    `json:"ipAddress"`
	UserAgent  string    `json:"userAgent"`
	At         time.Time `json:"occurredAt"`
}

type timelineResponse struct {
	Rows   []eventResponse `json:"rows"`
	Paging pagingResponse  `json:"paging"`
}

type pagingResponse struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
}

// Timeline handles GET /api/audit.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Timeline(r.Context(), parseFilters(r))
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	rows := make([]eventResponse, len(result.Rows))
	for i, ev := range result.Rows {
		rows[i] = toEventResponse(ev)
	}
	httpx.JSON(w, http.StatusOK, timelineResponse{
		Rows: rows,
		Paging: pagingResponse{
			Page:     result.Paging.Page,
			PageSize: result.Paging.PageSize,
			HasNext:  result.Paging.HasNext,
		},
	})
}

// Export handles GET /api/audit/export, streaming CSV.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.Export(r.Context(), parseFilters(r))
	if err != nil {
		h.logger.Error("audit export", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-events.csv"`)
	if err := audit.WriteCSV(w, events); err != nil {
		h.logger.Error("audit export write", slog.Any("error", err))
	}
}

func toEventResponse(ev audit.Event) eventResponse {
	return eventResponse{
		ID:         ev.ID,
		BatchID:    ev.BatchID,
		ActorID:    ev.ActorID,
		Kind:       string(ev.Kind),
		EntityType: ev.EntityType,
		TargetID:   ev.TargetID,
		Original:   ev.Original,
		Changes:    ev.Changes,
		IP:         ev.IP,
		UserAgent:  ev.UserAgent,
		At:         ev.At,
	}
}

func parseFilters(r *http.Request) audit.TimelineFilters {
	q := r.URL.Query()
	var filters audit.TimelineFilters
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		filters.From = v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		filters.To = v
	}
	if v, err := strconv.ParseInt(q.Get("actor_id"), 10, 64); err == nil {
		filters.ActorID = v
	}
	filters.EntityType = q.Get("entity_type")
	filters.Kind = q.Get("kind")
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		filters.Page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil {
		filters.PageSize = v
	}
	return filters
}
