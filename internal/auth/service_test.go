package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

type stubUsers struct {
	byID    map[int64]*users.User
	byEmail map[string]*users.User
}

func (s *stubUsers) Get(_ context.Context, id int64) (*users.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

type stubPerms struct {
	roles []rbac.RoleRef
	perms map[string]struct{}
}

func (s *stubPerms) Roles(context.Context, int64) ([]rbac.RoleRef, error) {
	return s.roles, nil
}

func (s *stubPerms) EffectivePermissions(context.Context, int64) (map[string]struct{}, error) {
	return s.perms, nil
}

func testTokens(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager("test-secret", "archivault-test", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return m
}

func hash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func TestLogin(t *testing.T) {
	dir := &stubUsers{
		byID: map[int64]*users.User{
			1: {ID: 1, Email: "a@example.com", Name: "Ana", PasswordHash: hash(t, "correct-horse")},
		},
	}
	dir.byEmail = map[string]*users.User{"a@example.com": dir.byID[1]}
	perms := &stubPerms{
		roles: []rbac.RoleRef{{Name: "admin", Level: 1}},
		perms: map[string]struct{}{"user.view": {}, "audit.view": {}},
	}
	svc := NewService(dir, perms, testTokens(t))

	profile, pair, err := svc.Login(context.Background(), "a@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if profile.ID != 1 || len(profile.Roles) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if len(profile.Permissions) != 2 || profile.Permissions[0] != "audit.view" {
		t.Fatalf("expected sorted permissions, got %v", profile.Permissions)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected credential pair")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	dir := &stubUsers{
		byEmail: map[string]*users.User{
			"a@example.com": {ID: 1, Email: "a@example.com", PasswordHash: hash(t, "correct-horse")},
		},
	}
	svc := NewService(dir, &stubPerms{}, testTokens(t))
	if _, _, err := svc.Login(context.Background(), "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc := NewService(&stubUsers{}, &stubPerms{}, testTokens(t))
	if _, _, err := svc.Login(context.Background(), "ghost@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	tokens := testTokens(t)
	dir := &stubUsers{byID: map[int64]*users.User{1: {ID: 1}}}
	svc := NewService(dir, &stubPerms{}, tokens)
	pair, err := tokens.IssuePair(time.Now(), 1)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, token.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for access-as-refresh, got %v", err)
	}
}

func TestRefreshDeletedUser(t *testing.T) {
	tokens := testTokens(t)
	gone := time.Now()
	dir := &stubUsers{byID: map[int64]*users.User{1: {ID: 1, DeletedAt: &gone}}}
	svc := NewService(dir, &stubPerms{}, tokens)
	pair, err := tokens.IssuePair(time.Now(), 1)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if _, _, err := svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for deleted account, got %v", err)
	}
}

func TestResolveActorSnapshot(t *testing.T) {
	company := int64(3)
	dir := &stubUsers{byID: map[int64]*users.User{
		7: {ID: 7, Email: "b@example.com", Name: "بدر", CompanyID: &company},
	}}
	perms := &stubPerms{
		roles: []rbac.RoleRef{{Name: "clerk", Level: 5}},
		perms: map[string]struct{}{"box.view": {}},
	}
	svc := NewService(dir, perms, testTokens(t))

	actor, err := svc.ResolveActor(context.Background(), token.Identity{SubjectID: 7, ImpersonatorID: 42})
	if err != nil {
		t.Fatalf("resolve actor: %v", err)
	}
	if actor.ID != 7 || actor.CompanyID != 3 || actor.ImpersonatorID != 42 {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if len(actor.Roles) != 1 || actor.Roles[0].Level != 5 {
		t.Fatalf("unexpected roles %+v", actor.Roles)
	}
	if !actor.HasPermission("box.view") {
		t.Fatalf("expected permission snapshot on actor")
	}
}

func TestResolveActorDeleted(t *testing.T) {
	gone := time.Now()
	dir := &stubUsers{byID: map[int64]*users.User{7: {ID: 7, DeletedAt: &gone}}}
	svc := NewService(dir, &stubPerms{}, testTokens(t))
	if _, err := svc.ResolveActor(context.Background(), token.Identity{SubjectID: 7}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
