package session

import (
	"net/http"

	"carbonledger.org/internal/auth"
)

const (
	// SessionCookie carries the opaque server-side session id.
	SessionCookie = "carbonledger_session"
	// TokenCookie carries the signed remember-me token.
	TokenCookie = "AuthToken"
)

// TokenValidator validates a raw token string into claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Continuity restores a logged-in session from a remember-me token when the
// server-side session is gone. It never rejects a request: with no usable
// credentials the request simply proceeds anonymous. An invalid token cookie
// is deleted so it is not re-validated on every request.
func Continuity(store *Store, tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, ok := lookupSession(store, r)
			if ok && sess.LoggedIn() {
				// Active session wins; the token is not even inspected.
				next.ServeHTTP(w, r.WithContext(ContextWith(r.Context(), sess)))
				return
			}

			raw, err := r.Cookie(TokenCookie)
			if err != nil || raw.Value == "" {
				if ok {
					r = r.WithContext(ContextWith(r.Context(), sess))
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, verr := tokens.Validate(raw.Value)
			if verr != nil {
				claims = nil
			}
			res := Hydrate(sess, claims)
			if res.DropToken {
				deleteCookie(w, TokenCookie)
			}
			if res.Upgraded {
				id := store.Create(res.Session)
				res.Session.ID = id
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookie,
					Value:    id,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			if res.Session.LoggedIn() || ok {
				r = r.WithContext(ContextWith(r.Context(), res.Session))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func lookupSession(store *Store, r *http.Request) (Session, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return Session{}, false
	}
	return store.Get(c.Value)
}

func deleteCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
