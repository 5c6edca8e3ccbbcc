package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrSystemRole rejects mutation of a shared system role.
	ErrSystemRole = errors.New("rbac: system roles are immutable")
	// ErrTenantMismatch rejects mutation of another tenant's role.
	ErrTenantMismatch = errors.New("rbac: role belongs to another tenant")
	// ErrPermissionUndefined marks a check against a permission name that is
	// not seeded. Callers must treat it as a denial.
	ErrPermissionUndefined = errors.New("rbac: permission not defined")
)

// Service resolves effective permissions and manages roles.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Roles returns the actor's granted roles, falling back to the legacy single
// role column for accounts predating role grants.
func (s *Service) Roles(ctx context.Context, actorID int64) ([]RoleRef, error) {
	roles, err := s.repo.RolesForUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("rbac: roles for user: %w", err)
	}
	if len(roles) == 0 {
		legacy, err := s.repo.LegacyRoleName(ctx, actorID)
		if err != nil {
			return nil, fmt.Errorf("rbac: legacy role: %w", err)
		}
		if legacy != "" {
			role, err := s.repo.RoleByName(ctx, legacy)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					return nil, nil
				}
				return nil, err
			}
			roles = append(roles, role)
		}
	}
	refs := make([]RoleRef, len(roles))
	for i, r := range roles {
		refs[i] = RoleRef{Name: r.Name, Level: r.Level}
	}
	return refs, nil
}

// EffectivePermissions returns the union of direct and role-inherited
// permission names. Names match case-sensitively.
func (s *Service) EffectivePermissions(ctx context.Context, actorID int64) (map[string]struct{}, error) {
	direct, err := s.repo.DirectPermissionNames(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("rbac: direct permissions: %w", err)
	}
	inherited, err := s.repo.RolePermissionNames(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("rbac: role permissions: %w", err)
	}
	set := make(map[string]struct{}, len(direct)+len(inherited))
	for _, n := range direct {
		set[n] = struct{}{}
	}
	for _, n := range inherited {
		set[n] = struct{}{}
	}
	return set, nil
}

// LowestRoleLevel returns the minimum (most privileged) level among the
// actor's roles, or NoRoleLevel when the actor holds none.
func (s *Service) LowestRoleLevel(ctx context.Context, actorID int64) (int, error) {
	roles, err := s.Roles(ctx, actorID)
	if err != nil {
		return NoRoleLevel, err
	}
	lowest := NoRoleLevel
	for _, r := range roles {
		if r.Level < lowest {
			lowest = r.Level
		}
	}
	return lowest, nil
}

// HasPermission reports whether the permission is effective for the actor.
// A name missing from the permissions table fails closed: the check returns
// false with ErrPermissionUndefined so the caller can log the likely typo.
func (s *Service) HasPermission(ctx context.Context, actorID int64, name Permission) (bool, error) {
	exists, err := s.repo.PermissionExists(ctx, string(name))
	if err != nil {
		return false, fmt.Errorf("rbac: permission lookup: %w", err)
	}
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrPermissionUndefined, name)
	}
	perms, err := s.EffectivePermissions(ctx, actorID)
	if err != nil {
		return false, err
	}
	_, ok := perms[string(name)]
	return ok, nil
}

// ValidateCatalog checks every catalog permission against the seeded table and
// logs a configuration warning per missing entry. Runtime checks stay
// fail-closed regardless, so drift is noisy but never permissive.
func (s *Service) ValidateCatalog(ctx context.Context) error {
	seeded, err := s.repo.PermissionNames(ctx)
	if err != nil {
		return fmt.Errorf("rbac: validate catalog: %w", err)
	}
	known := make(map[string]struct{}, len(seeded))
	for _, n := range seeded {
		known[n] = struct{}{}
	}
	for _, p := range Catalog() {
		if _, ok := known[string(p)]; !ok {
			s.logger.Warn("permission catalog entry missing from database",
				slog.String("permission", string(p)))
		}
	}
	return nil
}

// ListRoles returns system roles plus the tenant's own roles.
func (s *Service) ListRoles(ctx context.Context, companyID *int64) ([]Role, error) {
	return s.repo.ListRoles(ctx, companyID)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a role owned by the caller's tenant. Tenant admins never
// create system roles.
func (s *Service) CreateRole(ctx context.Context, name string, level int, companyID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	if companyID == nil {
		return Role{}, ErrSystemRole
	}
	return s.repo.CreateRole(ctx, name, "api", level, companyID)
}

// UpdateRole updates a tenant role after ownership checks.
func (s *Service) UpdateRole(ctx context.Context, id int64, name string, level int, callerCompanyID *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	if err := s.guardMutable(ctx, id, callerCompanyID); err != nil {
		return Role{}, err
	}
	return s.repo.UpdateRole(ctx, id, name, level)
}

// DeleteRole removes a tenant role after ownership checks.
func (s *Service) DeleteRole(ctx context.Context, id int64, callerCompanyID *int64) error {
	if err := s.guardMutable(ctx, id, callerCompanyID); err != nil {
		return err
	}
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRolePermissions replaces the grant set of a tenant role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64, callerCompanyID *int64) error {
	if err := s.guardMutable(ctx, roleID, callerCompanyID); err != nil {
		return err
	}
	return s.repo.ReplaceRolePermissions(ctx, roleID, permissionIDs)
}

// AssignRole grants a role to the user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.AssignRole(ctx, userID, roleID)
}

// RemoveRole revokes a role from the user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleID int64) error {
	return s.repo.RemoveRole(ctx, userID, roleID)
}

// ListPermissions returns the seeded permission table.
func (s *Service) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	return s.repo.ListPermissions(ctx)
}

func (s *Service) guardMutable(ctx context.Context, roleID int64, callerCompanyID *int64) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System() {
		return ErrSystemRole
	}
	if callerCompanyID == nil || *role.CompanyID != *callerCompanyID {
		return ErrTenantMismatch
	}
	return nil
}
