package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
	"carbonledger.org/internal/stream"
)

type fixture struct {
	api      *API
	handler  http.Handler
	store    *rbac.InMemory
	svc      *rbac.Service
	sessions *session.Store
	recorder *audit.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := rbac.NewInMemory()
	svc, err := rbac.NewService(store)
	require.NoError(t, err)
	require.NoError(t, svc.EnsureBuiltins(ctx))

	resolver, err := rbac.NewResolver(store)
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator(store)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("test-secret", "carbonledger", "carbonledger-web")
	require.NoError(t, err)

	sessions := session.NewStore()
	recorder := audit.NewMemory()

	api := New(ReadyProbe{}, "test", Deps{
		RBAC:     svc,
		Resolver: resolver,
		Authn:    authn,
		Tokens:   tokens,
		Sessions: sessions,
		Recorder: recorder,
		Stream:   stream.New(),
	})
	return &fixture{
		api:      api,
		handler:  api.Handler(),
		store:    store,
		svc:      svc,
		sessions: sessions,
		recorder: recorder,
	}
}

// seedAdmin creates a user holding the Admin role wired through the full
// chain: Admin -> ManageRoles -> Role Administration, ManageUsers -> Account
// Management.
func (f *fixture) seedAdmin(t *testing.T) rbac.User {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("admin pass")
	require.NoError(t, err)
	user := rbac.User{Username: "root", Email: "root@example.com", PasswordHash: hash, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, &user))

	admin, err := f.store.GetRoleByName(ctx, rbac.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, user.ID, admin.ID))
	require.NoError(t, f.svc.SetRolePermissions(ctx, admin.ID, []string{rbac.PermManageRoles, rbac.PermManageUsers}))

	perms, err := f.store.ListPermissions(ctx)
	require.NoError(t, err)
	for _, p := range perms {
		switch p.Key {
		case rbac.PermManageRoles:
			require.NoError(t, f.svc.SetPermissionCapabilities(ctx, p.ID, []string{rbac.CapRoleAdministration}))
		case rbac.PermManageUsers:
			require.NoError(t, f.svc.SetPermissionCapabilities(ctx, p.ID, []string{rbac.CapAccountManagement}))
		}
	}
	return user
}

func (f *fixture) loggedInCookie(user rbac.User, role string) *http.Cookie {
	sid := f.sessions.Create(session.NewLoggedIn(user.Username, role, user.ID, 0))
	return &http.Cookie{Name: session.SessionCookie, Value: sid}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestGateRedirectsAnonymousAndRecordsDenial(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.RemoteAddr = "203.0.113.9:4455"
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	entries, err := f.recorder.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "authz.denied", entries[0].Action)
	assert.Equal(t, audit.OutcomeDenied, entries[0].Outcome)
	assert.Nil(t, entries[0].ActorUserID)
	assert.Equal(t, "203.0.113.0", entries[0].IP, "anonymous denials keep only a masked address")
	assert.Contains(t, entries[0].Detail, "requires capabilities=Role Administration",
		"the denial carries the route's declared requirement")
}

func TestGateDenialRecordsDeclaredRoleRequirement(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/activity", nil)
	rec := f.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	entries, err := f.recorder.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Detail, "unauthenticated GET /v1/activity")
	assert.Contains(t, entries[0].Detail, "requires roles=Admin|Manager")
}

func TestGateDeniesMissingCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("pw123456")
	require.NoError(t, err)
	user := rbac.User{Username: "viewer", Email: "viewer@example.com", PasswordHash: hash, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, &user))

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.AddCookie(f.loggedInCookie(user, rbac.RoleMember))
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	entries, err := f.recorder.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].ActorUserID)
	assert.Equal(t, user.ID, *entries[0].ActorUserID)
	assert.Equal(t, "viewer", entries[0].ActorUsername)
}

func TestGateAllowsCapabilityHolderWithoutLogging(t *testing.T) {
	f := newFixture(t)
	user := f.seedAdmin(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.AddCookie(f.loggedInCookie(user, rbac.RoleAdmin))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	entries, err := f.recorder.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "allows are not logged by the gate")
}

func TestGateRoleAxis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("pw123456")
	require.NoError(t, err)
	user := rbac.User{Username: "manager", Email: "manager@example.com", PasswordHash: hash, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, &user))
	manager, err := f.store.GetRoleByName(ctx, rbac.RoleManager)
	require.NoError(t, err)
	require.NoError(t, f.store.AssignRole(ctx, user.ID, manager.ID))

	// Activity listing requires the Admin or Manager role, no capability.
	req := httptest.NewRequest(http.MethodGet, "/v1/activity", nil)
	req.AddCookie(f.loggedInCookie(user, rbac.RoleManager))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	// A role outside the requirement denies even though the user is valid.
	other := rbac.User{Username: "plain", Email: "plain@example.com", PasswordHash: hash, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, &other))
	req = httptest.NewRequest(http.MethodGet, "/v1/activity", nil)
	req.AddCookie(f.loggedInCookie(other, rbac.RoleMember))
	rec = f.do(req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestGateZeroRequirementOnlyNeedsLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hash, err := auth.HashPassword("pw123456")
	require.NoError(t, err)
	user := rbac.User{Username: "nobody", Email: "nobody@example.com", PasswordHash: hash, Active: true}
	require.NoError(t, f.store.CreateUser(ctx, &user))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.AddCookie(f.loggedInCookie(user, ""))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestGateFailsClosedWhenResolverUnavailable(t *testing.T) {
	f := newFixture(t)
	user := f.seedAdmin(t)
	f.api.resolver = nil

	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.AddCookie(f.loggedInCookie(user, rbac.RoleAdmin))
	rec := f.do(req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}
