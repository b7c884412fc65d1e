package rbac

import (
	"context"
	"errors"
	"strings"
)

// Resolver computes the effective authorization set of a user by walking the
// assignment graph: user roles (direct and company-scoped) to permissions to
// capabilities. Each call re-reads the store; results are never cached here,
// so assignment changes take effect on the next check.
type Resolver struct {
	store Store
}

// NewResolver constructs a Resolver.
func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Resolver{store: store}, nil
}

// Resolve returns the deduplicated role/permission/capability sets for the
// user. A user with no assignments, including a nonexistent user id, resolves
// to empty sets with a nil error.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (AccessSet, error) {
	set := NewAccessSet()

	roles, err := r.store.RolesForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return set, nil
		}
		return AccessSet{}, err
	}
	if len(roles) == 0 {
		return set, nil
	}

	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		set.Roles[role.Name] = struct{}{}
		roleIDs = append(roleIDs, role.ID)
	}

	perms, err := r.store.PermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return AccessSet{}, err
	}
	if len(perms) == 0 {
		// A role with no permissions still counts as held.
		return set, nil
	}

	permIDs := make([]int64, 0, len(perms))
	for _, perm := range perms {
		set.Permissions[perm.Key] = struct{}{}
		permIDs = append(permIDs, perm.ID)
	}

	caps, err := r.store.CapabilitiesForPermissions(ctx, permIDs)
	if err != nil {
		return AccessSet{}, err
	}
	for _, cap := range caps {
		set.Capabilities[cap.Name] = struct{}{}
	}
	return set, nil
}

// UserHasPermission re-resolves the user and tests permission membership.
func (r *Resolver) UserHasPermission(ctx context.Context, userID int64, permissionKey string) (bool, error) {
	permissionKey = strings.TrimSpace(permissionKey)
	if permissionKey == "" {
		return false, nil
	}
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasPermission(permissionKey), nil
}

// UserHasCapability re-resolves the user and tests capability membership.
func (r *Resolver) UserHasCapability(ctx context.Context, userID int64, capabilityName string) (bool, error) {
	capabilityName = strings.TrimSpace(capabilityName)
	if capabilityName == "" {
		return false, nil
	}
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return set.HasCapability(capabilityName), nil
}

// UserHasPermissionOrCapability reports whether either supplied criterion
// matches. An empty criterion is skipped, never auto-satisfied.
func (r *Resolver) UserHasPermissionOrCapability(ctx context.Context, userID int64, permissionKey, capabilityName string) (bool, error) {
	permissionKey = strings.TrimSpace(permissionKey)
	capabilityName = strings.TrimSpace(capabilityName)
	if permissionKey == "" && capabilityName == "" {
		return false, nil
	}
	set, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	if permissionKey != "" && set.HasPermission(permissionKey) {
		return true, nil
	}
	if capabilityName != "" && set.HasCapability(capabilityName) {
		return true, nil
	}
	return false, nil
}
