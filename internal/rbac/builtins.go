package rbac

// Builtin role names seeded at startup.
const (
	RoleMember  = "Member"
	RoleManager = "Manager"
	RoleAdmin   = "Admin"
)

// Builtin permission keys.
const (
	PermManageUsers     = "ManageUsers"
	PermManageRoles     = "ManageRoles"
	PermManageEmissions = "ManageEmissions"
	PermViewReports     = "ViewReports"
)

// Builtin capability names checked directly by gated operations.
const (
	CapAccountManagement  = "Account Management"
	CapRoleAdministration = "Role Administration"
	CapEmissionEntry      = "Emission Entry"
	CapReportAccess       = "Report Access"
)

// BuiltinRoles are ensured to exist before the first authorization decision.
var BuiltinRoles = []Role{
	{Name: RoleMember, Description: "Regular company member"},
	{Name: RoleManager, Description: "Company manager"},
	{Name: RoleAdmin, Description: "Platform administrator"},
}

// BuiltinPermissions are the permission catalog entries seeded at startup.
var BuiltinPermissions = []Permission{
	{Key: PermManageUsers, Description: "Manage user accounts and role assignments"},
	{Key: PermManageRoles, Description: "Manage roles, permissions and capabilities"},
	{Key: PermManageEmissions, Description: "Manage emission records and reduction goals"},
	{Key: PermViewReports, Description: "View and export emission reports"},
}

// BuiltinCapabilities are the capability catalog entries seeded at startup.
var BuiltinCapabilities = []Capability{
	{Name: CapAccountManagement, Description: "Account management screens"},
	{Name: CapRoleAdministration, Description: "Role administration screens"},
	{Name: CapEmissionEntry, Description: "Emission record entry"},
	{Name: CapReportAccess, Description: "Report viewing and export"},
}
