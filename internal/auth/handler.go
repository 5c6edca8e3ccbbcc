package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/token"
)

// Handler serves login, refresh and profile endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type sessionResponse struct {
	Profile      Profile `json:"profile"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	profile, pair, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		h.logger.Error("login", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Profile:      profile,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	profile, pair, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrExpired):
			httpx.RespondError(w, httpx.ErrExpiredCredential)
		case errors.Is(err, token.ErrInvalid), errors.Is(err, ErrInvalidCredentials):
			httpx.RespondError(w, httpx.ErrInvalidCredential)
		default:
			h.logger.Error("refresh", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, sessionResponse{
		Profile:      profile,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Me handles GET /api/auth/me for the authenticated actor.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor := requestctx.ActorFromContext(r.Context())
	if actor == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	profile, err := h.service.ResolveProfile(r.Context(), actor.ID)
	if err != nil {
		h.logger.Error("profile", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	profile.ImpersonatorID = actor.ImpersonatorID
	httpx.JSON(w, http.StatusOK, profile)
}
