package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbonledger.org/internal/rbac"
)

func TestHealthAndInfoEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/info", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "carbonledger-api")

	rec = f.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleAdministrationFlow(t *testing.T) {
	f := newFixture(t)
	user := f.seedAdmin(t)
	cookie := f.loggedInCookie(user, rbac.RoleAdmin)

	// create a role
	req := httptest.NewRequest(http.MethodPost, "/v1/roles",
		strings.NewReader(`{"name":"Auditor","description":"read-only reviewer"}`))
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var role rbac.Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "Auditor", role.Name)
	require.NotZero(t, role.ID)

	// duplicate name conflicts
	req = httptest.NewRequest(http.MethodPost, "/v1/roles",
		strings.NewReader(`{"name":"Auditor"}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusConflict, rec.Code)

	// attach a builtin permission
	req = httptest.NewRequest(http.MethodPut, "/v1/roles/"+itoa(role.ID)+"/permissions",
		strings.NewReader(`{"permissions":["ViewReports"]}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	// unknown permission key maps to 404
	req = httptest.NewRequest(http.MethodPut, "/v1/roles/"+itoa(role.ID)+"/permissions",
		strings.NewReader(`{"permissions":["DoesNotExist"]}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// list includes builtins and the new role
	req = httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Auditor")
	assert.Contains(t, rec.Body.String(), rbac.RoleMember)

	// the admin writes were audited
	entries, err := f.recorder.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "role.permissions.updated", entries[0].Action)
	require.NotNil(t, entries[0].ActorUserID)
	assert.Equal(t, user.ID, *entries[0].ActorUserID)
	assert.Equal(t, "role.created", entries[len(entries)-1].Action)
}

func TestUserProvisioningAndAssignmentFlow(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t)
	cookie := f.loggedInCookie(admin, rbac.RoleAdmin)
	ctx := context.Background()

	// create a company
	req := httptest.NewRequest(http.MethodPost, "/v1/companies",
		strings.NewReader(`{"name":"Acme Carbon"}`))
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var company rbac.Company
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &company))

	// create a user
	req = httptest.NewRequest(http.MethodPost, "/v1/users",
		strings.NewReader(`{"username":"carol","email":"carol@example.com","password":"longenough"}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created rbac.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotZero(t, created.ID)
	assert.NotContains(t, rec.Body.String(), "password", "hash must never serialize")

	// short password rejected
	req = httptest.NewRequest(http.MethodPost, "/v1/users",
		strings.NewReader(`{"username":"dave","email":"dave@example.com","password":"short"}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	member, err := f.store.GetRoleByName(ctx, rbac.RoleMember)
	require.NoError(t, err)

	// direct role assignment and removal
	req = httptest.NewRequest(http.MethodPost, "/v1/users/"+itoa(created.ID)+"/assignments",
		strings.NewReader(`{"role_id":`+itoa(member.ID)+`}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/v1/users/"+itoa(created.ID)+"/assignments/"+itoa(member.ID), nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// company-scoped role assignment and revocation
	req = httptest.NewRequest(http.MethodPost, "/v1/users/"+itoa(created.ID)+"/company-roles",
		strings.NewReader(`{"company_id":`+itoa(company.ID)+`,"role_id":`+itoa(member.ID)+`,"primary":true}`))
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var assignment rbac.UserCompanyRole
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &assignment))
	assert.Equal(t, rbac.CompanyRoleStatusActive, assignment.Status)
	require.NotNil(t, assignment.AssignedBy)
	assert.Equal(t, admin.ID, *assignment.AssignedBy)

	req = httptest.NewRequest(http.MethodDelete,
		"/v1/users/"+itoa(created.ID)+"/company-roles/"+itoa(company.ID)+"/"+itoa(member.ID), nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// revoking twice reports not found
	req = httptest.NewRequest(http.MethodDelete,
		"/v1/users/"+itoa(created.ID)+"/company-roles/"+itoa(company.ID)+"/"+itoa(member.ID), nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivityListing(t *testing.T) {
	f := newFixture(t)
	admin := f.seedAdmin(t)
	cookie := f.loggedInCookie(admin, rbac.RoleAdmin)

	// generate one admin action first
	req := httptest.NewRequest(http.MethodPost, "/v1/roles", strings.NewReader(`{"name":"Temp"}`))
	req.AddCookie(cookie)
	require.Equal(t, http.StatusCreated, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/activity", nil)
	req.AddCookie(cookie)
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "role.created")

	req = httptest.NewRequest(http.MethodGet, "/v1/activity?limit=bogus", nil)
	req.AddCookie(cookie)
	rec = f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
