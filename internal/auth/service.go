// Package auth implements the request-entry authorization guard: credential
// verification, actor resolution, and the login endpoints that issue
// credentials in the first place.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/requestctx"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

// ErrInvalidCredentials indicates a failed email/password login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Profile is the resolved identity returned to clients after login, refresh,
// impersonation, and on the profile endpoint.
type Profile struct {
	ID             int64          `json:"id"`
	Email          string         `json:"email"`
	Name           string         `json:"name"`
	CompanyID      *int64         `json:"companyId,omitempty"`
	Roles          []rbac.RoleRef `json:"roles"`
	Permissions    []string       `json:"permissions"`
	ImpersonatorID int64          `json:"impersonatorId,omitempty"`
}

// UserDirectory is the user lookup surface the guard depends on.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
	GetByEmail(ctx context.Context, email string) (*users.User, error)
}

// PermissionSource resolves role and permission snapshots for an actor.
type PermissionSource interface {
	Roles(ctx context.Context, actorID int64) ([]rbac.RoleRef, error)
	EffectivePermissions(ctx context.Context, actorID int64) (map[string]struct{}, error)
}

// Service wraps authentication business rules.
type Service struct {
	users  UserDirectory
	rbac   PermissionSource
	tokens *token.Manager
}

// NewService constructs a Service.
func NewService(users UserDirectory, rbacSvc PermissionSource, tokens *token.Manager) *Service {
	return &Service{users: users, rbac: rbacSvc, tokens: tokens}
}

// Login validates email/password credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (Profile, token.Pair, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return Profile{}, token.Pair{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Profile{}, token.Pair{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.IssuePair(time.Now(), user.ID)
	if err != nil {
		return Profile{}, token.Pair{}, fmt.Errorf("auth: issue pair: %w", err)
	}
	profile, err := s.ResolveProfile(ctx, user.ID)
	if err != nil {
		return Profile{}, token.Pair{}, err
	}
	return profile, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Profile, token.Pair, error) {
	identity, err := s.tokens.Verify(refreshToken, token.KindRefresh, time.Now())
	if err != nil {
		return Profile{}, token.Pair{}, err
	}
	user, err := s.users.Get(ctx, identity.SubjectID)
	if err != nil || user.Deleted() {
		return Profile{}, token.Pair{}, ErrInvalidCredentials
	}
	pair, err := s.tokens.IssuePair(time.Now(), user.ID)
	if err != nil {
		return Profile{}, token.Pair{}, fmt.Errorf("auth: issue pair: %w", err)
	}
	profile, err := s.ResolveProfile(ctx, user.ID)
	if err != nil {
		return Profile{}, token.Pair{}, err
	}
	return profile, pair, nil
}

// ResolveProfile loads the actor's current roles and effective permissions.
func (s *Service) ResolveProfile(ctx context.Context, actorID int64) (Profile, error) {
	user, err := s.users.Get(ctx, actorID)
	if err != nil {
		return Profile{}, err
	}
	roles, err := s.rbac.Roles(ctx, actorID)
	if err != nil {
		return Profile{}, err
	}
	perms, err := s.rbac.EffectivePermissions(ctx, actorID)
	if err != nil {
		return Profile{}, err
	}
	names := make([]string, 0, len(perms))
	for n := range perms {
		names = append(names, n)
	}
	sort.Strings(names)
	return Profile{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		CompanyID:   user.CompanyID,
		Roles:       roles,
		Permissions: names,
	}, nil
}

// ResolveActor builds the request-scoped actor snapshot for the guard.
func (s *Service) ResolveActor(ctx context.Context, identity token.Identity) (*requestctx.Actor, error) {
	user, err := s.users.Get(ctx, identity.SubjectID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.Deleted() {
		return nil, ErrInvalidCredentials
	}
	roles, err := s.rbac.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	perms, err := s.rbac.EffectivePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	actor := &requestctx.Actor{
		ID:             user.ID,
		Email:          user.Email,
		Name:           user.Name,
		Permissions:    perms,
		ImpersonatorID: identity.ImpersonatorID,
	}
	if user.CompanyID != nil {
		actor.CompanyID = *user.CompanyID
	}
	for _, r := range roles {
		actor.Roles = append(actor.Roles, requestctx.ActorRole{Name: r.Name, Level: r.Level})
	}
	return actor, nil
}
