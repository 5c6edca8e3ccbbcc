package rbac

import "time"

// NoRoleLevel is the privilege level reported for an actor holding no role at
// all. Levels are ordered ascending by privilege, lower is more privileged.
const NoRoleLevel = 999

// Role represents a named permission grouping with a privilege level.
// CompanyID nil marks a system role shared by every tenant; system roles are
// immutable through the mutation API.
type Role struct {
	ID        int64
	Name      string
	GuardName string
	Level     int
	CompanyID *int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// System reports whether the role is a shared system role.
func (r Role) System() bool {
	return r.CompanyID == nil
}

// RoleRef is the lightweight role snapshot attached to authenticated actors.
type RoleRef struct {
	Name  string
	Level int
}

// PermissionRecord is a seeded capability row.
type PermissionRecord struct {
	ID        int64
	Name      string
	GuardName string
	Level     *int
}
