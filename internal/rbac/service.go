package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service provides validated administrative RBAC operations over a Store.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Service{store: store}, nil
}

// EnsureBuiltins seeds the builtin role, permission and capability catalog.
// Existing entries are left untouched.
func (s *Service) EnsureBuiltins(ctx context.Context) error {
	for _, role := range BuiltinRoles {
		if _, err := s.store.CreateRole(ctx, role.Name, role.Description); err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("ensure role %s: %w", role.Name, err)
		}
	}
	for _, perm := range BuiltinPermissions {
		if _, err := s.store.CreatePermission(ctx, perm.Key, perm.Description); err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("ensure permission %s: %w", perm.Key, err)
		}
	}
	for _, cap := range BuiltinCapabilities {
		if _, err := s.store.CreateCapability(ctx, cap.Name, cap.Description); err != nil && !errors.Is(err, ErrConflict) {
			return fmt.Errorf("ensure capability %s: %w", cap.Name, err)
		}
	}
	return nil
}

// CreateUser stores a new user record. The caller supplies an already
// hashed password; this package never sees plaintext credentials.
func (s *Service) CreateUser(ctx context.Context, username, email, passwordHash string, companyID *int64) (User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" {
		return User{}, fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	if passwordHash == "" {
		return User{}, fmt.Errorf("%w: password hash is required", ErrInvalidInput)
	}
	if companyID != nil && *companyID <= 0 {
		return User{}, fmt.Errorf("%w: company_id must be positive", ErrInvalidInput)
	}
	user := User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Active:       true,
		CompanyID:    companyID,
	}
	if err := s.store.CreateUser(ctx, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateCompany registers a tenant.
func (s *Service) CreateCompany(ctx context.Context, name string) (Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Company{}, fmt.Errorf("%w: company name is required", ErrInvalidInput)
	}
	return s.store.CreateCompany(ctx, name)
}

func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) CreatePermission(ctx context.Context, key, description string) (Permission, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Permission{}, fmt.Errorf("%w: permission key is required", ErrInvalidInput)
	}
	return s.store.CreatePermission(ctx, key, strings.TrimSpace(description))
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

func (s *Service) CreateCapability(ctx context.Context, name, description string) (Capability, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Capability{}, fmt.Errorf("%w: capability name is required", ErrInvalidInput)
	}
	return s.store.CreateCapability(ctx, name, strings.TrimSpace(description))
}

func (s *Service) ListCapabilities(ctx context.Context) ([]Capability, error) {
	return s.store.ListCapabilities(ctx)
}

func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.AssignRole(ctx, userID, roleID)
}

func (s *Service) RemoveRoleAssignment(ctx context.Context, userID, roleID int64) error {
	if userID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RemoveRoleAssignment(ctx, userID, roleID)
}

func (s *Service) AssignCompanyRole(ctx context.Context, a UserCompanyRole) (UserCompanyRole, error) {
	if a.UserID <= 0 || a.CompanyID <= 0 || a.RoleID <= 0 {
		return UserCompanyRole{}, fmt.Errorf("%w: user_id, company_id and role_id are required", ErrInvalidInput)
	}
	a.Status = strings.TrimSpace(strings.ToLower(a.Status))
	if a.Status == "" {
		a.Status = CompanyRoleStatusActive
	}
	if a.Status != CompanyRoleStatusActive && a.Status != CompanyRoleStatusRevoked {
		return UserCompanyRole{}, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, a.Status)
	}
	return s.store.AssignCompanyRole(ctx, a)
}

func (s *Service) RevokeCompanyRole(ctx context.Context, userID, companyID, roleID int64) error {
	if userID <= 0 || companyID <= 0 || roleID <= 0 {
		return fmt.Errorf("%w: user_id, company_id and role_id are required", ErrInvalidInput)
	}
	return s.store.RevokeCompanyRole(ctx, userID, companyID, roleID)
}

func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionKeys []string) error {
	if roleID <= 0 {
		return fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	return s.store.SetRolePermissions(ctx, roleID, dedupeStrings(permissionKeys))
}

func (s *Service) SetPermissionCapabilities(ctx context.Context, permissionID int64, capabilityNames []string) error {
	if permissionID <= 0 {
		return fmt.Errorf("%w: permission_id is required", ErrInvalidInput)
	}
	return s.store.SetPermissionCapabilities(ctx, permissionID, dedupeStrings(capabilityNames))
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
