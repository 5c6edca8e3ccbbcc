package users

import "time"

// User represents an account. LegacyRole is the pre-RBAC single role name kept
// for accounts that predate role grants. DeletedAt non-nil marks a soft-deleted
// account that can no longer authenticate or be impersonated.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	LegacyRole   *string
	CompanyID    *int64
	DeletedAt    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Deleted reports whether the account is soft-deleted.
func (u *User) Deleted() bool {
	return u != nil && u.DeletedAt != nil
}
