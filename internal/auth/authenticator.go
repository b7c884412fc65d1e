package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"carbonledger.org/internal/rbac"
)

const (
	// MaxFailedLogins locks the account when reached inside LockoutWindow.
	MaxFailedLogins = 5
	// LockoutWindow is the rolling window for counting failed attempts; a
	// lock clears on its own once the window elapses.
	LockoutWindow = 15 * time.Minute
)

// Authenticator verifies credentials against the credential store and
// enforces the failed-login lockout policy.
type Authenticator struct {
	store rbac.Store
	now   func() time.Time
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(store rbac.Store) (*Authenticator, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	return &Authenticator{store: store, now: time.Now}, nil
}

// WithAuthClock overrides the time source (useful for tests).
func (a *Authenticator) WithAuthClock(fn func() time.Time) *Authenticator {
	if fn != nil {
		a.now = fn
	}
	return a
}

// Login authenticates username/password. The lockout check short-circuits
// before password verification, so a locked account reports ErrAccountLocked
// even for the correct password. A successful login resets the failure
// counter to zero.
func (a *Authenticator) Login(ctx context.Context, username, password string) (rbac.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return rbac.User{}, ErrInvalidCredentials
	}

	user, err := a.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return rbac.User{}, ErrInvalidCredentials
		}
		return rbac.User{}, err
	}
	if !user.Active {
		return rbac.User{}, ErrAccountDisabled
	}

	now := a.now().UTC()
	if a.locked(user, now) {
		return rbac.User{}, ErrAccountLocked
	}

	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		failures := user.FailedLogins + 1
		if user.LastFailedLoginAt != nil && now.Sub(*user.LastFailedLoginAt) >= LockoutWindow {
			// Stale window: restart the count instead of accumulating forever.
			failures = 1
		}
		if recErr := a.store.RecordLoginFailure(ctx, user.ID, failures, now); recErr != nil {
			return rbac.User{}, recErr
		}
		return rbac.User{}, ErrInvalidCredentials
	}

	if user.FailedLogins > 0 {
		if err := a.store.ResetLoginFailures(ctx, user.ID); err != nil {
			return rbac.User{}, err
		}
		user.FailedLogins = 0
		user.LastFailedLoginAt = nil
	}
	return user, nil
}

// ResetLockout clears the failure counter administratively.
func (a *Authenticator) ResetLockout(ctx context.Context, userID int64) error {
	return a.store.ResetLoginFailures(ctx, userID)
}

func (a *Authenticator) locked(user rbac.User, now time.Time) bool {
	if user.FailedLogins < MaxFailedLogins || user.LastFailedLoginAt == nil {
		return false
	}
	return now.Sub(*user.LastFailedLoginAt) < LockoutWindow
}

// PrimaryRole picks the role name recorded in the session for a freshly
// authenticated user. Builtin roles win by privilege order; otherwise the
// alphabetically first resolved role is used, regardless of the order the
// store returned them in. Users without assignments get an empty role.
func (a *Authenticator) PrimaryRole(ctx context.Context, userID int64) (string, error) {
	roles, err := a.store.RolesForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, rbac.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if len(roles) == 0 {
		return "", nil
	}
	byName := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		byName[r.Name] = struct{}{}
	}
	for _, preferred := range []string{rbac.RoleAdmin, rbac.RoleManager, rbac.RoleMember} {
		if _, ok := byName[preferred]; ok {
			return preferred, nil
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles[0].Name, nil
}
