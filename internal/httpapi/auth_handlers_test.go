package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
)

func loginBody(username, password string, remember bool) *strings.Reader {
	payload, _ := json.Marshal(loginRequest{Username: username, Password: password, RememberMe: remember})
	return strings.NewReader(string(payload))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newFixture(t)
	user := f.seedAdmin(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("root", "admin pass", false))
	rec := f.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, user.ID, resp.UserID)
	assert.Equal(t, rbac.RoleAdmin, resp.Role)

	var sessionCookie, tokenCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case session.SessionCookie:
			sessionCookie = c
		case session.TokenCookie:
			tokenCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.Nil(t, tokenCookie, "no remember-me token without the flag")

	stored, ok := f.sessions.Get(sessionCookie.Value)
	require.True(t, ok)
	assert.True(t, stored.LoggedIn())
	assert.Equal(t, "root", stored.Username)

	entries, err := f.recorder.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "login", entries[0].Action)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
}

func TestLoginRememberMeIssuesToken(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("root", "admin pass", true))
	rec := f.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var tokenCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.TokenCookie {
			tokenCookie = c
		}
	}
	require.NotNil(t, tokenCookie)
	assert.NotEmpty(t, tokenCookie.Value)
	assert.False(t, tokenCookie.Expires.IsZero())

	claims, err := f.api.tokens.Validate(tokenCookie.Value)
	require.NoError(t, err)
	assert.Equal(t, "root", claims.Username)
	assert.True(t, claims.RememberMeValue())
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("root", "wrong", false))
	rec := f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	entries, err := f.recorder.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeFailure, entries[0].Outcome)

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("ghost", "whatever", false))
	rec = f.do(req)
	require.Equal(t, http.StatusUnauthorized, rec.Code, "unknown user reads the same as wrong password")
}

func TestLoginLockedAccountReportsLocked(t *testing.T) {
	f := newFixture(t)
	f.seedAdmin(t)

	for i := 0; i < auth.MaxFailedLogins; i++ {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("root", "wrong", false)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(httptest.NewRequest(http.MethodPost, "/v1/auth/login", loginBody("root", "admin pass", false)))
	require.Equal(t, http.StatusForbidden, rec.Code, "correct password must not unlock inside the window")
	assert.Contains(t, rec.Body.String(), "locked")
}

func TestLogoutClearsSession(t *testing.T) {
	f := newFixture(t)
	user := f.seedAdmin(t)
	cookie := f.loggedInCookie(user, rbac.RoleAdmin)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(cookie)
	rec := f.do(req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	_, ok := f.sessions.Get(cookie.Value)
	assert.False(t, ok, "session must be dropped server-side")

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestLoginRejectsMalformedBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"username": "x", "bogus": 1}`))
	rec := f.do(req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/v1/auth/login", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
