package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivault/archivault/internal/platform/db"
)

// Repository provides the persistence surface the resolver and role service
// depend on.
type Repository interface {
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	LegacyRoleName(ctx context.Context, userID int64) (string, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	DirectPermissionNames(ctx context.Context, userID int64) ([]string, error)
	RolePermissionNames(ctx context.Context, userID int64) ([]string, error)
	PermissionExists(ctx context.Context, name string) (bool, error)
	ListPermissions(ctx context.Context) ([]PermissionRecord, error)
	PermissionNames(ctx context.Context) ([]string, error)

	ListRoles(ctx context.Context, companyID *int64) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name, guard string, level int, companyID *int64) (Role, error)
	UpdateRole(ctx context.Context, id int64, name string, level int) (Role, error)
	DeleteRole(ctx context.Context, id int64) (int64, error)
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
}

// PgxRepository is the PostgreSQL-backed Repository.
type PgxRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository over the pool.
func NewRepository(pool *pgxpool.Pool) *PgxRepository {
	return &PgxRepository{pool: pool}
}

const roleColumns = "id, name, guard_name, level, company_id, created_at, updated_at"

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.GuardName, &r.Level, &r.CompanyID, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return Role{}, err
	}
	return r, nil
}

// RolesForUser returns every role granted via user_roles.
func (r *PgxRepository) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT r.`+strings.ReplaceAll(roleColumns, ", ", ", r.")+`
		FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1 ORDER BY r.level`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// LegacyRoleName returns the pre-RBAC single role column of the user.
func (r *PgxRepository) LegacyRoleName(ctx context.Context, userID int64) (string, error) {
	var name *string
	err := r.pool.QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if name == nil {
		return "", nil
	}
	return *name, nil
}

// RoleByName fetches a role by exact name.
func (r *PgxRepository) RoleByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DirectPermissionNames returns permissions granted to the user directly.
func (r *PgxRepository) DirectPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	return r.queryNames(ctx, `SELECT p.name FROM permissions p
		JOIN user_permissions up ON up.permission_id = p.id
		WHERE up.user_id = $1`, userID)
}

// RolePermissionNames returns permissions reachable through any of the user's roles.
func (r *PgxRepository) RolePermissionNames(ctx context.Context, userID int64) ([]string, error) {
	return r.queryNames(ctx, `SELECT DISTINCT p.name FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN user_roles ur ON ur.role_id = rp.role_id
		WHERE ur.user_id = $1`, userID)
}

// PermissionExists reports whether the named permission is seeded.
func (r *PgxRepository) PermissionExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM permissions WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

// ListPermissions returns every seeded permission ordered by name.
func (r *PgxRepository) ListPermissions(ctx context.Context) ([]PermissionRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, guard_name, level FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []PermissionRecord
	for rows.Next() {
		var p PermissionRecord
		if err := rows.Scan(&p.ID, &p.Name, &p.GuardName, &p.Level); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// PermissionNames returns every seeded permission name.
func (r *PgxRepository) PermissionNames(ctx context.Context) ([]string, error) {
	return r.queryNames(ctx, `SELECT name FROM permissions`)
}

// ListRoles returns system roles plus, when companyID is set, that tenant's roles.
func (r *PgxRepository) ListRoles(ctx context.Context, companyID *int64) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles
		WHERE company_id IS NULL OR company_id = $1 ORDER BY level, name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by id.
func (r *PgxRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// CreateRole inserts a tenant role.
func (r *PgxRepository) CreateRole(ctx context.Context, name, guard string, level int, companyID *int64) (Role, error) {
	return scanRole(r.pool.QueryRow(ctx, `INSERT INTO roles (name, guard_name, level, company_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING `+roleColumns, name, guard, level, companyID))
}

// UpdateRole updates name and level of an existing role.
func (r *PgxRepository) UpdateRole(ctx context.Context, id int64, name string, level int) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `UPDATE roles SET name = $2, level = $3, updated_at = NOW()
		WHERE id = $1 RETURNING `+roleColumns, id, name, level))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role and reports affected rows.
func (r *PgxRepository) DeleteRole(ctx context.Context, id int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ReplaceRolePermissions swaps the role's grant set atomically.
func (r *PgxRepository) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for _, pid := range permissionIDs {
			if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, pid); err != nil {
				return err
			}
		}
		return nil
	})
}

// AssignRole grants the role to the user.
func (r *PgxRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_roles (user_id, role_id, model_type)
		VALUES ($1, $2, 'user') ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

// RemoveRole revokes the role from the user.
func (r *PgxRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (r *PgxRepository) queryNames(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
