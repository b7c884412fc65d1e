package httpapi

import (
	"context"
	"net/http"
	"strings"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/obs"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
)

// Requirement declares what a route demands. An empty axis passes
// automatically; a declared axis requires at least one match against the
// caller's resolved access set. The zero value only requires a login.
type Requirement struct {
	Roles        []string
	Capabilities []string
}

// describe renders the declared requirement for denial records.
func (req Requirement) describe() string {
	var parts []string
	if len(req.Roles) > 0 {
		parts = append(parts, "roles="+strings.Join(req.Roles, "|"))
	}
	if len(req.Capabilities) > 0 {
		parts = append(parts, "capabilities="+strings.Join(req.Capabilities, "|"))
	}
	if len(parts) == 0 {
		return "requires login"
	}
	return "requires " + strings.Join(parts, " ")
}

// Route requirement presets.
var (
	roleAdmin       = Requirement{Capabilities: []string{rbac.CapRoleAdministration}}
	accountAdmin    = Requirement{Capabilities: []string{rbac.CapAccountManagement}}
	activityReaders = Requirement{Roles: []string{rbac.RoleAdmin, rbac.RoleManager}}
)

const (
	denyUnauthenticated = "unauthenticated"
	denyMissingRole     = "missing_role"
	denyMissingCap      = "missing_capability"
	denyResolver        = "resolver_unavailable"
)

// guard wraps a handler with the authorization gate. A deny writes a
// synchronous activity record and redirects to /login; an allow is not
// logged. Resolver failure denies (fail closed) rather than erroring open.
func (a *API) guard(req Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := session.FromContext(r.Context())
		if !ok || !sess.LoggedIn() {
			a.deny(w, r, session.Session{}, req, denyUnauthenticated)
			return
		}

		if len(req.Roles) == 0 && len(req.Capabilities) == 0 {
			next(w, r)
			return
		}

		if a.resolver == nil {
			a.deny(w, r, sess, req, denyResolver)
			return
		}
		access, err := a.resolver.Resolve(r.Context(), sess.MemberID)
		if err != nil {
			a.deny(w, r, sess, req, denyResolver)
			return
		}

		if len(req.Roles) > 0 && !access.HasAnyRole(req.Roles) {
			a.deny(w, r, sess, req, denyMissingRole)
			return
		}
		if len(req.Capabilities) > 0 && !access.HasAnyCapability(req.Capabilities) {
			a.deny(w, r, sess, req, denyMissingCap)
			return
		}

		next(w, r)
	}
}

func (a *API) deny(w http.ResponseWriter, r *http.Request, sess session.Session, req Requirement, reason string) {
	obs.CountDenial(reason)

	// The record carries the declared requirement, not just the failed axis,
	// so a reviewer can tell what the route demanded at the time.
	entry := audit.Entry{
		Action:    "authz.denied",
		Category:  audit.CategoryAuthz,
		Outcome:   audit.OutcomeDenied,
		Detail:    reason + " " + r.Method + " " + r.URL.Path + " " + req.describe(),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: RequestIDFromContext(r.Context()),
	}
	if sess.LoggedIn() {
		id := sess.MemberID
		entry.ActorUserID = &id
		entry.ActorUsername = sess.Username
		if sess.CompanyID != 0 {
			cid := sess.CompanyID
			entry.CompanyID = &cid
		}
	}
	if a.recorder != nil {
		// Best effort: a failed write never turns a deny into anything else.
		if _, err := a.recorder.Append(r.Context(), entry); err != nil {
			_ = audit.LogEvent(r.Context(), "audit.append_failed", map[string]any{
				"action": entry.Action,
				"error":  err.Error(),
			})
		}
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// record appends a non-denial activity entry, logging append failures
// instead of surfacing them to the caller.
func (a *API) record(ctx context.Context, e audit.Entry) {
	if a.recorder == nil {
		return
	}
	if _, err := a.recorder.Append(ctx, e); err != nil {
		_ = audit.LogEvent(ctx, "audit.append_failed", map[string]any{
			"action": e.Action,
			"error":  err.Error(),
		})
	}
}
