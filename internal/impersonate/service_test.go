package impersonate

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/archivault/archivault/internal/auth"
	"github.com/archivault/archivault/internal/rbac"
	"github.com/archivault/archivault/internal/token"
	"github.com/archivault/archivault/internal/users"
)

type stubUsers struct {
	byID map[int64]*users.User
}

func (s *stubUsers) Get(_ context.Context, id int64) (*users.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return u, nil
}

type stubPrivileges struct {
	granted   map[int64]bool
	undefined bool
	levels    map[int64]int
}

func (s *stubPrivileges) HasPermission(_ context.Context, actorID int64, _ rbac.Permission) (bool, error) {
	if s.undefined {
		return false, fmt.Errorf("%w: user.impersonate", rbac.ErrPermissionUndefined)
	}
	return s.granted[actorID], nil
}

func (s *stubPrivileges) LowestRoleLevel(_ context.Context, actorID int64) (int, error) {
	level, ok := s.levels[actorID]
	if !ok {
		return rbac.NoRoleLevel, nil
	}
	return level, nil
}

type stubProfiles struct{}

func (stubProfiles) ResolveProfile(_ context.Context, actorID int64) (auth.Profile, error) {
	return auth.Profile{ID: actorID}, nil
}

func testTokens(t *testing.T) *token.Manager {
	t.Helper()
	m, err := token.NewManager("test-secret", "archivault-test", 15*time.Minute, 24*time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	return m
}

func activeUsers(ids ...int64) *stubUsers {
	out := &stubUsers{byID: make(map[int64]*users.User)}
	for _, id := range ids {
		out.byID[id] = &users.User{ID: id}
	}
	return out
}

func TestCanImpersonateGating(t *testing.T) {
	gone := time.Now()

	cases := []struct {
		name       string
		users      *stubUsers
		privileges *stubPrivileges
		target     int64
		wantReason string
	}{
		{
			name:       "target missing",
			users:      activeUsers(1),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}},
			target:     99,
			wantReason: "target user does not exist",
		},
		{
			name: "target deleted",
			users: &stubUsers{byID: map[int64]*users.User{
				1: {ID: 1},
				2: {ID: 2, DeletedAt: &gone},
			}},
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}},
			target:     2,
			wantReason: "target user does not exist",
		},
		{
			name:       "self",
			users:      activeUsers(1),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}},
			target:     1,
			wantReason: "cannot impersonate yourself",
		},
		{
			name:       "missing permission",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{levels: map[int64]int{1: 1, 2: 5}},
			target:     2,
			wantReason: "missing user.impersonate permission",
		},
		{
			name:       "undefined permission denies",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{undefined: true, levels: map[int64]int{1: 1, 2: 5}},
			target:     2,
			wantReason: "missing user.impersonate permission",
		},
		{
			name:       "equal level",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{1: 3, 2: 3}},
			target:     2,
			wantReason: "target is not less privileged than you",
		},
		{
			name:       "target more privileged",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{1: 5, 2: 1}},
			target:     2,
			wantReason: "target is not less privileged than you",
		},
		{
			name:       "impersonator has no role",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{2: 5}},
			target:     2,
			wantReason: "target is not less privileged than you",
		},
		{
			name:       "allowed",
			users:      activeUsers(1, 2),
			privileges: &stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{1: 1, 2: 5}},
			target:     2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(tc.users, tc.privileges, testTokens(t), stubProfiles{})
			decision, err := svc.CanImpersonate(context.Background(), 1, tc.target)
			if err != nil {
				t.Fatalf("can impersonate: %v", err)
			}
			if tc.wantReason == "" {
				if !decision.Allowed {
					t.Fatalf("expected allow, denied with %q", decision.Reason)
				}
				return
			}
			if decision.Allowed {
				t.Fatalf("expected denial %q, got allow", tc.wantReason)
			}
			if decision.Reason != tc.wantReason {
				t.Fatalf("expected reason %q, got %q", tc.wantReason, decision.Reason)
			}
		})
	}
}

func TestStartIssuesImpersonationCredential(t *testing.T) {
	tokens := testTokens(t)
	svc := NewService(
		activeUsers(1, 2),
		&stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{1: 1, 2: 5}},
		tokens,
		stubProfiles{},
	)
	profile, pair, err := svc.Start(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if profile.ID != 2 || profile.ImpersonatorID != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	identity, err := tokens.Verify(pair.AccessToken, token.KindAccess, time.Now())
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if identity.SubjectID != 2 || identity.ImpersonatorID != 1 {
		t.Fatalf("credential must act as target and remember impersonator, got %+v", identity)
	}
}

func TestStartDenied(t *testing.T) {
	svc := NewService(
		activeUsers(1, 2),
		&stubPrivileges{levels: map[int64]int{1: 1, 2: 5}},
		testTokens(t),
		stubProfiles{},
	)
	_, _, err := svc.Start(context.Background(), 1, 2)
	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != "missing user.impersonate permission" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestLeaveRestoresOriginalActor(t *testing.T) {
	tokens := testTokens(t)
	svc := NewService(
		activeUsers(1, 2),
		&stubPrivileges{granted: map[int64]bool{1: true}, levels: map[int64]int{1: 1, 2: 5}},
		tokens,
		stubProfiles{},
	)
	profile, pair, err := svc.Leave(context.Background(), 1)
	if err != nil {
		t.Fatalf("leave: %v", err)
	}
	if profile.ID != 1 || profile.ImpersonatorID != 0 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	identity, err := tokens.Verify(pair.AccessToken, token.KindAccess, time.Now())
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if identity.SubjectID != 1 || identity.ImpersonatorID != 0 {
		t.Fatalf("leaving must drop the impersonator, got %+v", identity)
	}
}

func TestLeaveDeletedOriginal(t *testing.T) {
	gone := time.Now()
	svc := NewService(
		&stubUsers{byID: map[int64]*users.User{1: {ID: 1, DeletedAt: &gone}}},
		&stubPrivileges{},
		testTokens(t),
		stubProfiles{},
	)
	if _, _, err := svc.Leave(context.Background(), 1); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
