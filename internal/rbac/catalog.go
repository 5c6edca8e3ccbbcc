package rbac

// Permission identifies a capability checked by handlers and middleware.
// Checks against a name outside this catalog fail closed.
type Permission string

// Catalog of permissions the application references. Seed migrations keep the
// permissions table in sync; ValidateCatalog flags drift at startup.
const (
	PermUserView        Permission = "user.view"
	PermUserCreate      Permission = "user.create"
	PermUserUpdate      Permission = "user.update"
	PermUserDelete      Permission = "user.delete"
	PermUserImpersonate Permission = "user.impersonate"

	PermRoleView   Permission = "role.view"
	PermRoleCreate Permission = "role.create"
	PermRoleUpdate Permission = "role.update"
	PermRoleDelete Permission = "role.delete"

	PermPermissionView Permission = "permission.view"
	PermAuditView      Permission = "audit.view"

	PermCompanyView        Permission = "company.view"
	PermAreaView           Permission = "area.view"
	PermCorrespondenceView Permission = "correspondence.view"
	PermRetentionView      Permission = "retention_schedule.view"
	PermWarehouseView      Permission = "warehouse.view"
	PermBoxView            Permission = "box.view"
	PermTicketView         Permission = "ticket.view"
)

var catalog = []Permission{
	PermUserView, PermUserCreate, PermUserUpdate, PermUserDelete, PermUserImpersonate,
	PermRoleView, PermRoleCreate, PermRoleUpdate, PermRoleDelete,
	PermPermissionView, PermAuditView,
	PermCompanyView, PermAreaView, PermCorrespondenceView,
	PermRetentionView, PermWarehouseView, PermBoxView, PermTicketView,
}

// Catalog returns every permission the application references.
func Catalog() []Permission {
	out := make([]Permission, len(catalog))
	copy(out, catalog)
	return out
}

// InCatalog reports whether the name is a known permission identifier.
func InCatalog(name Permission) bool {
	for _, p := range catalog {
		if p == name {
			return true
		}
	}
	return false
}
