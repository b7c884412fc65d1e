package session

import (
	"context"
	"strings"

	"carbonledger.org/internal/auth"
)

// Session is the per-client identity state. IsLogin is a bool-as-string
// ("true") kept for compatibility with the legacy session contract.
type Session struct {
	ID        string
	IsLogin   string
	Username  string
	Role      string
	MemberID  int64
	CompanyID int64
}

// LoggedIn reports whether the session marks an authenticated user.
func (s Session) LoggedIn() bool {
	return s.IsLogin == "true"
}

// NewLoggedIn builds an authenticated session value.
func NewLoggedIn(username, role string, memberID, companyID int64) Session {
	return Session{
		IsLogin:   "true",
		Username:  username,
		Role:      role,
		MemberID:  memberID,
		CompanyID: companyID,
	}
}

// HydrateResult is the outcome of applying a remember-me token to the
// current session state. The caller applies it; Hydrate itself mutates
// nothing.
type HydrateResult struct {
	// Session is the session value after hydration. Equal to the input when
	// nothing changed.
	Session Session
	// Upgraded is true when a new logged-in session was synthesized from the
	// token and must be persisted by the caller.
	Upgraded bool
	// DropToken instructs the caller to delete the client-side token
	// credential so failed validation is not retried on every request.
	DropToken bool
}

// Hydrate computes the session continuity transition. An already logged-in
// session passes through untouched (one-way upgrade, never a downgrade).
// claims==nil means the presented token failed validation and must be
// discarded. A valid token missing username or role neither upgrades nor
// drops.
func Hydrate(existing Session, claims *auth.Claims) HydrateResult {
	if existing.LoggedIn() {
		return HydrateResult{Session: existing}
	}
	if claims == nil {
		return HydrateResult{Session: existing, DropToken: true}
	}
	username := strings.TrimSpace(claims.Username)
	role := strings.TrimSpace(claims.Role)
	if username == "" || role == "" {
		return HydrateResult{Session: existing}
	}
	return HydrateResult{
		Session:  NewLoggedIn(username, role, claims.MemberIDValue(), 0),
		Upgraded: true,
	}
}

type sessionContextKey struct{}

// ContextWith attaches the session to the request context.
func ContextWith(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// FromContext extracts the session previously attached to the context.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(Session)
	if !ok {
		return Session{}, false
	}
	return v, true
}
