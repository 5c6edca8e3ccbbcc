package records

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/store"
)

func testRouter(exec store.Handler) http.Handler {
	h := NewHandler(slog.Default(), store.NewClient(exec))
	r := chi.NewRouter()
	r.Get("/records/{model}", h.List)
	r.Get("/records/{model}/{id}", h.Get)
	return r
}

func doRequest(t *testing.T, router http.Handler, target string, actor *requestctx.Actor) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if actor != nil {
		req = req.WithContext(requestctx.WithScope(req.Context(), &requestctx.Scope{Actor: actor}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetRecord(t *testing.T) {
	router := testRouter(func(_ context.Context, op store.Operation) (store.Result, error) {
		if op.Model != "boxes" || op.Action != store.ActionFindUnique {
			return store.Result{}, pgx.ErrNoRows
		}
		return store.Result{Record: map[string]any{"id": int64(12), "label": "B-100"}}, nil
	})
	actor := &requestctx.Actor{ID: 1, Permissions: map[string]struct{}{"box.view": {}}}
	rec := doRequest(t, router, "/records/boxes/12", actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["label"] != "B-100" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	router := testRouter(func(context.Context, store.Operation) (store.Result, error) {
		return store.Result{}, pgx.ErrNoRows
	})
	actor := &requestctx.Actor{ID: 1, Permissions: map[string]struct{}{"box.view": {}}}
	rec := doRequest(t, router, "/records/boxes/404", actor)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUnknownModelIsNotFound(t *testing.T) {
	router := testRouter(func(context.Context, store.Operation) (store.Result, error) {
		t.Fatalf("executor must not run for unknown models")
		return store.Result{}, nil
	})
	actor := &requestctx.Actor{ID: 1, Permissions: map[string]struct{}{"box.view": {}}}
	rec := doRequest(t, router, "/records/pg_catalog/1", actor)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown model, got %d", rec.Code)
	}
}

func TestMissingPermissionForbidden(t *testing.T) {
	router := testRouter(func(context.Context, store.Operation) (store.Result, error) {
		t.Fatalf("executor must not run without permission")
		return store.Result{}, nil
	})
	actor := &requestctx.Actor{ID: 1, Permissions: map[string]struct{}{}}
	rec := doRequest(t, router, "/records/boxes/12", actor)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestNoActorUnauthorized(t *testing.T) {
	router := testRouter(func(context.Context, store.Operation) (store.Result, error) {
		t.Fatalf("executor must not run unauthenticated")
		return store.Result{}, nil
	})
	rec := doRequest(t, router, "/records/boxes/12", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestListRedactsSecrets(t *testing.T) {
	router := testRouter(func(_ context.Context, op store.Operation) (store.Result, error) {
		return store.Result{Records: []map[string]any{
			{"id": int64(1), "email": "a@example.com", "password_hash": "$2a$10$secret"},
		}}, nil
	})
	actor := &requestctx.Actor{ID: 1, Permissions: map[string]struct{}{"user.view": {}}}
	rec := doRequest(t, router, "/records/users", actor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body) != 1 {
		t.Fatalf("expected 1 row, got %d", len(body))
	}
	if _, leaked := body[0]["password_hash"]; leaked {
		t.Fatalf("password hash must never leave the API")
	}
}
