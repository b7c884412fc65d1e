package httpapi

import (
	"errors"
	"net/http"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/obs"
	"carbonledger.org/internal/session"
)

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type loginResponse struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.authn == nil || a.sessions == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authentication unavailable")
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, err := a.authn.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		a.recordLoginFailure(w, r, req.Username, err)
		return
	}

	role, err := a.authn.PrimaryRole(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "login failed")
		return
	}

	var companyID int64
	if user.CompanyID != nil {
		companyID = *user.CompanyID
	}
	sess := session.NewLoggedIn(user.Username, role, user.ID, companyID)
	sid := a.sessions.Create(sess)
	http.SetCookie(w, &http.Cookie{
		Name:     session.SessionCookie,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	if req.RememberMe && a.tokens != nil {
		token, expiresAt, err := a.tokens.Issue(user.Username, role, user.ID, true)
		if err == nil {
			http.SetCookie(w, &http.Cookie{
				Name:     session.TokenCookie,
				Value:    token,
				Path:     "/",
				Expires:  expiresAt,
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
	}

	obs.CountLogin("success")
	uid := user.ID
	entry := audit.Entry{
		ActorUserID:   &uid,
		ActorUsername: user.Username,
		Action:        "login",
		Category:      audit.CategoryAuth,
		Outcome:       audit.OutcomeSuccess,
		IP:            clientIP(r),
		UserAgent:     r.UserAgent(),
		RequestID:     RequestIDFromContext(r.Context()),
	}
	if user.CompanyID != nil {
		entry.CompanyID = user.CompanyID
	}
	a.record(r.Context(), entry)

	writeJSON(w, http.StatusOK, loginResponse{UserID: user.ID, Username: user.Username, Role: role})
}

func (a *API) recordLoginFailure(w http.ResponseWriter, r *http.Request, username string, err error) {
	entry := audit.Entry{
		Action:    "login",
		Category:  audit.CategoryAuth,
		Outcome:   audit.OutcomeFailure,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: RequestIDFromContext(r.Context()),
	}
	switch {
	case errors.Is(err, auth.ErrAccountLocked):
		obs.CountLogin("locked")
		entry.Detail = "account locked: " + username
		a.record(r.Context(), entry)
		writeError(w, r, http.StatusForbidden, "account temporarily locked")
	case errors.Is(err, auth.ErrAccountDisabled):
		obs.CountLogin("disabled")
		entry.Detail = "account disabled: " + username
		a.record(r.Context(), entry)
		writeError(w, r, http.StatusForbidden, "account disabled")
	case errors.Is(err, auth.ErrInvalidCredentials):
		obs.CountLogin("invalid")
		entry.Detail = "invalid credentials: " + username
		a.record(r.Context(), entry)
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	default:
		obs.CountLogin("error")
		writeError(w, r, http.StatusInternalServerError, "login failed")
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if c, err := r.Cookie(session.SessionCookie); err == nil && a.sessions != nil {
		a.sessions.Delete(c.Value)
	}
	clearCookie(w, session.SessionCookie)
	clearCookie(w, session.TokenCookie)

	if sess, ok := session.FromContext(r.Context()); ok && sess.LoggedIn() {
		uid := sess.MemberID
		a.record(r.Context(), audit.Entry{
			ActorUserID:   &uid,
			ActorUsername: sess.Username,
			Action:        "logout",
			Category:      audit.CategoryAuth,
			Outcome:       audit.OutcomeSuccess,
			IP:            clientIP(r),
			UserAgent:     r.UserAgent(),
			RequestID:     RequestIDFromContext(r.Context()),
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	sess, _ := session.FromContext(r.Context())
	writeJSON(w, http.StatusOK, loginResponse{
		UserID:   sess.MemberID,
		Username: sess.Username,
		Role:     sess.Role,
	})
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
