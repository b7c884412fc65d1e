package rbac

import "time"

// User is the identity record behind every authenticated request.
type User struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	PasswordHash      string     `json:"-"`
	Active            bool       `json:"active"`
	CompanyID         *int64     `json:"company_id,omitempty"`
	FailedLogins      int        `json:"-"`
	LastFailedLoginAt *time.Time `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Company is a tenant whose membership scopes role assignments.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Role is a named authorization bucket assignable globally or per company.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission groups capabilities under a named grant attachable to roles.
type Permission struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Capability is a fine-grained feature flag attachable to permissions.
type Capability struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserRole is the global user-to-role join.
type UserRole struct {
	UserID    int64     `json:"user_id"`
	RoleID    int64     `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	CompanyRoleStatusActive  = "active"
	CompanyRoleStatusRevoked = "revoked"
)

// UserCompanyRole scopes a role grant to a company membership. A user may hold
// different roles in different companies simultaneously.
type UserCompanyRole struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	CompanyID  int64      `json:"company_id"`
	RoleID     int64      `json:"role_id"`
	Primary    bool       `json:"primary"`
	Status     string     `json:"status"`
	AssignedBy *int64     `json:"assigned_by,omitempty"`
	AssignedAt time.Time  `json:"assigned_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// AccessSet is the effective authorization context of a user: the union of
// role names, permission keys and capability names reachable through the
// assignment graph. Sets, not sequences; no ordering is guaranteed.
type AccessSet struct {
	Roles        map[string]struct{}
	Permissions  map[string]struct{}
	Capabilities map[string]struct{}
}

// NewAccessSet returns an empty, non-nil access set.
func NewAccessSet() AccessSet {
	return AccessSet{
		Roles:        make(map[string]struct{}),
		Permissions:  make(map[string]struct{}),
		Capabilities: make(map[string]struct{}),
	}
}

// HasRole reports membership of the named role.
func (s AccessSet) HasRole(name string) bool {
	_, ok := s.Roles[name]
	return ok
}

// HasPermission reports membership of the permission key.
func (s AccessSet) HasPermission(key string) bool {
	_, ok := s.Permissions[key]
	return ok
}

// HasCapability reports membership of the named capability.
func (s AccessSet) HasCapability(name string) bool {
	_, ok := s.Capabilities[name]
	return ok
}

// HasAnyRole reports whether the set intersects the given role names.
func (s AccessSet) HasAnyRole(names []string) bool {
	for _, n := range names {
		if s.HasRole(n) {
			return true
		}
	}
	return false
}

// HasAnyCapability reports whether the set intersects the given capability names.
func (s AccessSet) HasAnyCapability(names []string) bool {
	for _, n := range names {
		if s.HasCapability(n) {
			return true
		}
	}
	return false
}
