package rbac

import (
	"context"
	"strings"
	"sync"
	"time"
)

// InMemory implements Store with in-process concurrency safety. It backs unit
// tests and local runs without a database.
type InMemory struct {
	mu sync.RWMutex

	nextID int64

	users        map[int64]*User
	companies    map[int64]*Company
	roles        map[int64]*Role
	permissions  map[int64]*Permission
	capabilities map[int64]*Capability

	userRoles        map[int64]map[int64]struct{} // userID -> roleIDs
	companyRoles     []*UserCompanyRole
	rolePermissions  map[int64]map[int64]struct{} // roleID -> permissionIDs
	permCapabilities map[int64]map[int64]struct{} // permissionID -> capabilityIDs
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty credential store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:            make(map[int64]*User),
		companies:        make(map[int64]*Company),
		roles:            make(map[int64]*Role),
		permissions:      make(map[int64]*Permission),
		capabilities:     make(map[int64]*Capability),
		userRoles:        make(map[int64]map[int64]struct{}),
		rolePermissions:  make(map[int64]map[int64]struct{}),
		permCapabilities: make(map[int64]map[int64]struct{}),
	}
}

func (s *InMemory) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemory) CreateUser(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID == 0 {
		u.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	copy := *u
	s.users[u.ID] = &copy
	return nil
}

func (s *InMemory) GetUser(ctx context.Context, id int64) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (s *InMemory) GetUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return *u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *InMemory) RecordLoginFailure(ctx context.Context, userID int64, failures int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedLogins = failures
	ts := at
	u.LastFailedLoginAt = &ts
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) ResetLoginFailures(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.FailedLogins = 0
	u.LastFailedLoginAt = nil
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemory) CreateCompany(ctx context.Context, name string) (Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.companies {
		if c.Name == name {
			return Company{}, ErrConflict
		}
	}
	now := time.Now().UTC()
	c := &Company{ID: s.nextIDLocked(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.companies[c.ID] = c
	return *c, nil
}

func (s *InMemory) CreateRole(ctx context.Context, name, description string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return Role{}, ErrConflict
		}
	}
	now := time.Now().UTC()
	r := &Role{ID: s.nextIDLocked(), Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	s.roles[r.ID] = r
	return *r, nil
}

func (s *InMemory) GetRoleByName(ctx context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return *r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (s *InMemory) ListRoles(ctx context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	return out, nil
}

func (s *InMemory) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Key == key {
			return Permission{}, ErrConflict
		}
	}
	p := &Permission{ID: s.nextIDLocked(), Key: key, Description: description, CreatedAt: time.Now().UTC()}
	s.permissions[p.ID] = p
	return *p, nil
}

func (s *InMemory) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, *p)
	}
	return out, nil
}

func (s *InMemory) CreateCapability(ctx context.Context, name, description string) (Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.capabilities {
		if c.Name == name {
			return Capability{}, ErrConflict
		}
	}
	c := &Capability{ID: s.nextIDLocked(), Name: name, Description: description, CreatedAt: time.Now().UTC()}
	s.capabilities[c.ID] = c
	return *c, nil
}

func (s *InMemory) ListCapabilities(ctx context.Context) ([]Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Capability, 0, len(s.capabilities))
	for _, c := range s.capabilities {
		out = append(out, *c)
	}
	return out, nil
}

func (s *InMemory) AssignRole(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	if s.userRoles[userID] == nil {
		s.userRoles[userID] = make(map[int64]struct{})
	}
	if _, ok := s.userRoles[userID][roleID]; ok {
		return ErrConflict
	}
	s.userRoles[userID][roleID] = struct{}{}
	return nil
}

func (s *InMemory) RemoveRoleAssignment(ctx context.Context, userID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.userRoles[userID][roleID]; !ok {
		return ErrNotFound
	}
	delete(s.userRoles[userID], roleID)
	return nil
}

func (s *InMemory) AssignCompanyRole(ctx context.Context, a UserCompanyRole) (UserCompanyRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[a.UserID]; !ok {
		return UserCompanyRole{}, ErrNotFound
	}
	if _, ok := s.companies[a.CompanyID]; !ok {
		return UserCompanyRole{}, ErrNotFound
	}
	if _, ok := s.roles[a.RoleID]; !ok {
		return UserCompanyRole{}, ErrNotFound
	}
	for _, existing := range s.companyRoles {
		if existing.UserID == a.UserID && existing.CompanyID == a.CompanyID &&
			existing.RoleID == a.RoleID && existing.Status == CompanyRoleStatusActive {
			return UserCompanyRole{}, ErrConflict
		}
	}
	a.ID = s.nextIDLocked()
	if a.Status == "" {
		a.Status = CompanyRoleStatusActive
	}
	a.AssignedAt = time.Now().UTC()
	copy := a
	s.companyRoles = append(s.companyRoles, &copy)
	return a, nil
}

func (s *InMemory) RevokeCompanyRole(ctx context.Context, userID, companyID, roleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.companyRoles {
		if a.UserID == userID && a.CompanyID == companyID && a.RoleID == roleID &&
			a.Status == CompanyRoleStatusActive {
			now := time.Now().UTC()
			a.Status = CompanyRoleStatusRevoked
			a.RevokedAt = &now
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemory) SetRolePermissions(ctx context.Context, roleID int64, permissionKeys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return ErrNotFound
	}
	next := make(map[int64]struct{}, len(permissionKeys))
	for _, key := range permissionKeys {
		id, ok := s.permissionIDByKeyLocked(key)
		if !ok {
			return ErrNotFound
		}
		next[id] = struct{}{}
	}
	s.rolePermissions[roleID] = next
	return nil
}

func (s *InMemory) SetPermissionCapabilities(ctx context.Context, permissionID int64, capabilityNames []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[permissionID]; !ok {
		return ErrNotFound
	}
	next := make(map[int64]struct{}, len(capabilityNames))
	for _, name := range capabilityNames {
		id, ok := s.capabilityIDByNameLocked(name)
		if !ok {
			return ErrNotFound
		}
		next[id] = struct{}{}
	}
	s.permCapabilities[permissionID] = next
	return nil
}

func (s *InMemory) RolesForUser(ctx context.Context, userID int64) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []Role
	for roleID := range s.userRoles[userID] {
		if role, ok := s.roles[roleID]; ok {
			if _, dup := seen[roleID]; !dup {
				seen[roleID] = struct{}{}
				out = append(out, *role)
			}
		}
	}
	for _, a := range s.companyRoles {
		if a.UserID != userID || a.Status != CompanyRoleStatusActive {
			continue
		}
		if role, ok := s.roles[a.RoleID]; ok {
			if _, dup := seen[a.RoleID]; !dup {
				seen[a.RoleID] = struct{}{}
				out = append(out, *role)
			}
		}
	}
	return out, nil
}

func (s *InMemory) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []Permission
	for _, roleID := range roleIDs {
		for permID := range s.rolePermissions[roleID] {
			if _, dup := seen[permID]; dup {
				continue
			}
			if perm, ok := s.permissions[permID]; ok {
				seen[permID] = struct{}{}
				out = append(out, *perm)
			}
		}
	}
	return out, nil
}

func (s *InMemory) CapabilitiesForPermissions(ctx context.Context, permissionIDs []int64) ([]Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []Capability
	for _, permID := range permissionIDs {
		for capID := range s.permCapabilities[permID] {
			if _, dup := seen[capID]; dup {
				continue
			}
			if cap, ok := s.capabilities[capID]; ok {
				seen[capID] = struct{}{}
				out = append(out, *cap)
			}
		}
	}
	return out, nil
}

func (s *InMemory) permissionIDByKeyLocked(key string) (int64, bool) {
	key = strings.TrimSpace(key)
	for id, p := range s.permissions {
		if p.Key == key {
			return id, true
		}
	}
	return 0, false
}

func (s *InMemory) capabilityIDByNameLocked(name string) (int64, bool) {
	name = strings.TrimSpace(name)
	for id, c := range s.capabilities {
		if c.Name == name {
			return id, true
		}
	}
	return 0, false
}
