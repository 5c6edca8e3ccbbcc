package impersonate

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archivault/archivault/internal/auth"
	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/token"
)

// Handler serves the impersonation endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type sessionResponse struct {
	Profile      auth.Profile `json:"profile"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

// Start handles POST /api/impersonate/{id}. The caller becomes the target.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	actor := requestctx.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	impersonatorID := actor.ID
	if actor.ImpersonatorID != 0 {
		// A nested start keeps the original identity as the impersonator.
		impersonatorID = actor.ImpersonatorID
	}
	profile, pair, err := h.service.Start(r.Context(), impersonatorID, targetID)
	if err != nil {
		var denied *DeniedError
		if errors.As(err, &denied) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", denied.Reason)
			return
		}
		h.logger.Error("impersonation start", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondSession(w, profile, pair)
}

// Leave handles POST /api/impersonate/leave, reverting to the original actor.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	actor := requestctx.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	if actor.ImpersonatorID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "no active impersonation")
		return
	}
	profile, pair, err := h.service.Leave(r.Context(), actor.ImpersonatorID)
	if err != nil {
		h.logger.Error("impersonation leave", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	respondSession(w, profile, pair)
}

func respondSession(w http.ResponseWriter, profile auth.Profile, pair token.Pair) {
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Profile:      profile,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}
