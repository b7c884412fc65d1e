package rbac

import (
	"context"
	"time"
)

// Store describes persistence operations required by the RBAC core. The
// resolver reads through the join graph with explicit batched queries; no
// ORM navigation or lazy loading is assumed.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	RecordLoginFailure(ctx context.Context, userID int64, failures int, at time.Time) error
	ResetLoginFailures(ctx context.Context, userID int64) error

	CreateCompany(ctx context.Context, name string) (Company, error)

	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)

	CreatePermission(ctx context.Context, key, description string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	CreateCapability(ctx context.Context, name, description string) (Capability, error)
	ListCapabilities(ctx context.Context) ([]Capability, error)

	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRoleAssignment(ctx context.Context, userID, roleID int64) error
	AssignCompanyRole(ctx context.Context, a UserCompanyRole) (UserCompanyRole, error)
	RevokeCompanyRole(ctx context.Context, userID, companyID, roleID int64) error

	SetRolePermissions(ctx context.Context, roleID int64, permissionKeys []string) error
	SetPermissionCapabilities(ctx context.Context, permissionID int64, capabilityNames []string) error

	// RolesForUser unions direct assignments with active company-scoped
	// assignments. A user without rows yields an empty slice, not an error.
	RolesForUser(ctx context.Context, userID int64) ([]Role, error)
	PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]Permission, error)
	CapabilitiesForPermissions(ctx context.Context, permissionIDs []int64) ([]Capability, error)
}
