package auth

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/archivault/archivault/internal/platform/httpx"
	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/token"
)

// timeNow is swapped by tests that pin token validity windows.
var timeNow = time.Now

// Guard is the request-entry gate. It verifies the bearer credential, resolves
// the actor with a role/permission snapshot, and attaches the request scope
// that the audit interceptor reads downstream.
type Guard struct {
	Logger  *slog.Logger
	Service *Service
	Tokens  *token.Manager
}

// Authenticate admits or rejects the request before any business logic runs.
func (g Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthenticated)
			return
		}
		identity, err := g.Tokens.Verify(raw, token.KindAccess, timeNow())
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpired):
				httpx.RespondError(w, httpx.ErrExpiredCredential)
			default:
				httpx.RespondError(w, httpx.ErrInvalidCredential)
			}
			return
		}
		actor, err := g.Service.ResolveActor(r.Context(), identity)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			g.Logger.Error("resolve actor", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		scope := &requestctx.Scope{
			Actor:     actor,
			IP:        clientIP(r),
			UserAgent: r.UserAgent(),
		}
		next.ServeHTTP(w, r.WithContext(requestctx.WithScope(r.Context(), scope)))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" || !strings.HasPrefix(raw, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, prefix)), true
}

// clientIP prefers the first forwarded-for entry, falling back to the
// transport peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.SplitN(fwd, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
