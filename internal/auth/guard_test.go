package auth

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

func testGuard(t *testing.T) (Guard, *token.Manager) {
	t.Helper()
	tokens := testTokens(t)
	dir := &stubUsers{byID: map[int64]*users.User{
		1: {ID: 1, Email: "a@example.com", Name: "Ana"},
	}}
	perms := &stubPerms{perms: map[string]struct{}{"user.view": {}}}
	svc := NewService(dir, perms, tokens)
	return Guard{Logger: slog.Default(), Service: svc, Tokens: tokens}, tokens
}

func TestGuardMissingCredential(t *testing.T) {
	guard, _ := testGuard(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	guard.Authenticate(okHandler(t, nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardMalformedCredential(t *testing.T) {
	guard, _ := testGuard(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	guard.Authenticate(okHandler(t, nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestGuardExpiredCredential(t *testing.T) {
	guard, tokens := testGuard(t)
	issued := time.Now().Add(-time.Hour)
	pair, err := tokens.IssuePair(issued, 1)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	guard.Authenticate(okHandler(t, nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired credential, got %d", rec.Code)
	}
}

func TestGuardRefreshTokenRejectedAsAccess(t *testing.T) {
	guard, tokens := testGuard(t)
	pair, err := tokens.IssuePair(time.Now(), 1)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	guard.Authenticate(okHandler(t, nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh-as-access, got %d", rec.Code)
	}
}

func TestGuardUnknownSubject(t *testing.T) {
	guard, tokens := testGuard(t)
	pair, err := tokens.IssuePair(time.Now(), 404)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	guard.Authenticate(okHandler(t, nil)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown subject, got %d", rec.Code)
	}
}

func TestGuardAttachesScope(t *testing.T) {
	guard, tokens := testGuard(t)
	pair, err := tokens.IssuePair(time.Now(), 1)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	var seen *requestctx.Scope
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "archivault-test")
	guard.Authenticate(okHandler(t, &seen)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen == nil || seen.Actor == nil {
		t.Fatalf("expected scope with actor on the request context")
	}
	if seen.Actor.ID != 1 || !seen.Actor.HasPermission("user.view") {
		t.Fatalf("unexpected actor %+v", seen.Actor)
	}
	if seen.IP != "203.0.113.7" {
		t.Fatalf("expected first forwarded-for entry, got %q", seen.IP)
	}
	if seen.UserAgent != "archivault-test" {
		t.Fatalf("unexpected user agent %q", seen.UserAgent)
	}
}

func okHandler(t *testing.T, capture **requestctx.Scope) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = requestctx.FromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}
