// Package impersonate lets a privileged actor assume another identity under
// permission and role-level gating. Impersonation state lives entirely inside
// the issued credential; nothing is persisted server-side.
package impersonate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/archivault/archivault/internal/auth"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

// Decision is the outcome of a gating check.
type Decision struct {
	Allowed bool
	Reason  string
}

// UserDirectory looks up impersonation participants.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (*users.User, error)
}

// PrivilegeSource answers the permission and role-level questions the gating
// rules ask.
type PrivilegeSource interface {
	HasPermission(ctx context.Context, actorID int64, perm rbac.Permission) (bool, error)
	LowestRoleLevel(ctx context.Context, actorID int64) (int, error)
}

// ProfileResolver builds the identity payload returned alongside new
// credential pairs.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, actorID int64) (auth.Profile, error)
}

// Service implements the impersonation gating rules.
type Service struct {
	users   UserDirectory
	rbac    PrivilegeSource
	tokens  *token.Manager
	profile ProfileResolver
}

// NewService constructs a Service.
func NewService(usersSvc UserDirectory, rbacSvc PrivilegeSource, tokens *token.Manager, profile ProfileResolver) *Service {
	return &Service{users: usersSvc, rbac: rbacSvc, tokens: tokens, profile: profile}
}

// CanImpersonate checks every gating rule. The impersonator must hold
// user.impersonate and be strictly more privileged (numerically lower lowest
// role level) than the target, which must exist, not be deleted, and not be
// the impersonator itself.
func (s *Service) CanImpersonate(ctx context.Context, impersonatorID, targetID int64) (Decision, error) {
	target, err := s.users.Get(ctx, targetID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Decision{Reason: "target user does not exist"}, nil
		}
		return Decision{}, err
	}
	if target.Deleted() {
		return Decision{Reason: "target user does not exist"}, nil
	}
	if impersonatorID == targetID {
		return Decision{Reason: "cannot impersonate yourself"}, nil
	}
	allowed, err := s.rbac.HasPermission(ctx, impersonatorID, rbac.PermUserImpersonate)
	if err != nil && !errors.Is(err, rbac.ErrPermissionUndefined) {
		return Decision{}, err
	}
	if !allowed {
		return Decision{Reason: "missing user.impersonate permission"}, nil
	}
	impersonatorLevel, err := s.rbac.LowestRoleLevel(ctx, impersonatorID)
	if err != nil {
		return Decision{}, err
	}
	targetLevel, err := s.rbac.LowestRoleLevel(ctx, targetID)
	if err != nil {
		return Decision{}, err
	}
	if impersonatorLevel >= targetLevel {
		return Decision{Reason: "target is not less privileged than you"}, nil
	}
	return Decision{Allowed: true}, nil
}

// Start re-validates and issues a credential whose subject is the target but
// which embeds the impersonator for reversal and audit.
func (s *Service) Start(ctx context.Context, impersonatorID, targetID int64) (auth.Profile, token.Pair, error) {
	decision, err := s.CanImpersonate(ctx, impersonatorID, targetID)
	if err != nil {
		return auth.Profile{}, token.Pair{}, err
	}
	if !decision.Allowed {
		return auth.Profile{}, token.Pair{}, &DeniedError{Reason: decision.Reason}
	}
	pair, err := s.tokens.IssueImpersonationPair(time.Now(), targetID, impersonatorID)
	if err != nil {
		return auth.Profile{}, token.Pair{}, fmt.Errorf("impersonate: issue pair: %w", err)
	}
	profile, err := s.profile.ResolveProfile(ctx, targetID)
	if err != nil {
		return auth.Profile{}, token.Pair{}, err
	}
	profile.ImpersonatorID = impersonatorID
	return profile, pair, nil
}

// Leave resolves the original actor fresh, as of now rather than as of when
// impersonation started, and issues a normal credential pair.
func (s *Service) Leave(ctx context.Context, impersonatorID int64) (auth.Profile, token.Pair, error) {
	user, err := s.users.Get(ctx, impersonatorID)
	if err != nil || user.Deleted() {
		return auth.Profile{}, token.Pair{}, auth.ErrInvalidCredentials
	}
	pair, err := s.tokens.IssuePair(time.Now(), impersonatorID)
	if err != nil {
		return auth.Profile{}, token.Pair{}, fmt.Errorf("impersonate: issue pair: %w", err)
	}
	profile, err := s.profile.ResolveProfile(ctx, impersonatorID)
	if err != nil {
		return auth.Profile{}, token.Pair{}, err
	}
	return profile, pair, nil
}

// DeniedError carries the specific gating reason to the client.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "impersonate: " + e.Reason
}
