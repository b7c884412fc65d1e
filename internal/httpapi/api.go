package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/obs"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
	"carbonledger.org/internal/stream"
)

// ReadyProbe reports readiness (for example a DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps carries the services the HTTP layer fronts. Everything is injected;
// the package keeps no process-wide state.
type Deps struct {
	RBAC     *rbac.Service
	Resolver *rbac.Resolver
	Authn    *auth.Authenticator
	Tokens   *auth.TokenService
	Sessions *session.Store
	Recorder audit.Recorder
	Stream   *stream.Stream
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	rbac     *rbac.Service
	resolver *rbac.Resolver
	authn    *auth.Authenticator
	tokens   *auth.TokenService
	sessions *session.Store
	recorder audit.Recorder
	stream   *stream.Stream
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		rbac:       deps.RBAC,
		resolver:   deps.Resolver,
		authn:      deps.Authn,
		tokens:     deps.Tokens,
		sessions:   deps.Sessions,
		recorder:   deps.Recorder,
		stream:     deps.Stream,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// Gate denials land here.
	a.mux.HandleFunc("/login", a.LoginRequired)

	// authentication, tight per-IP limit on the credential endpoint
	a.mux.Handle("/v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), 10, 5))
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/auth/me", a.guard(Requirement{}, a.handleWhoAmI))

	// RBAC administration
	a.mux.HandleFunc("/v1/roles", a.guard(roleAdmin, a.handleRolesCollection))
	a.mux.HandleFunc("/v1/roles/", a.guard(roleAdmin, a.handleRoleResource))
	a.mux.HandleFunc("/v1/permissions", a.guard(roleAdmin, a.handlePermissionsCollection))
	a.mux.HandleFunc("/v1/permissions/", a.guard(roleAdmin, a.handlePermissionResource))
	a.mux.HandleFunc("/v1/capabilities", a.guard(roleAdmin, a.handleCapabilitiesCollection))
	a.mux.HandleFunc("/v1/companies", a.guard(accountAdmin, a.handleCompaniesCollection))
	a.mux.HandleFunc("/v1/users", a.guard(accountAdmin, a.handleUsersCollection))
	a.mux.HandleFunc("/v1/users/", a.guard(accountAdmin, a.handleUserResource))

	// activity log
	a.mux.HandleFunc("/v1/activity", a.guard(activityReaders, a.handleActivity))
	a.mux.HandleFunc("/v1/activity/stream", a.guard(activityReaders, a.StreamActivity))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	if a.sessions != nil && a.tokens != nil {
		h = session.Continuity(a.sessions, a.tokens)(h)
	}
	h = obs.Instrument(h)
	h = RateLimit(h, 100, 50)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "carbonledger-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "carbonledger-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// LoginRequired is the target of gate redirects. The admin UI renders a
// form here; the API answers with a machine-readable hint.
func (a *API) LoginRequired(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"error": "authentication required",
		"login": "/v1/auth/login",
	})
}
