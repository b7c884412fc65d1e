package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/auth"
	"carbonledger.org/internal/rbac"
	"carbonledger.org/internal/session"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createPermissionRequest struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

type createCapabilityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createCompanyRequest struct {
	Name string `json:"name"`
}

type createUserRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	CompanyID *int64 `json:"company_id"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type updatePermissionCapabilitiesRequest struct {
	Capabilities []string `json:"capabilities"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

type assignCompanyRoleRequest struct {
	CompanyID int64  `json:"company_id"`
	RoleID    int64  `json:"role_id"`
	Primary   bool   `json:"primary"`
	Status    string `json:"status"`
}

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.rbac.ListRoles(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	case http.MethodPost:
		var req createRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.rbac.CreateRole(r.Context(), req.Name, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "role.created", fmt.Sprintf("role %s (%d)", role.Name, role.ID))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	roleID, err := parseID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditAdmin(r, "role.permissions.updated", fmt.Sprintf("role %d now carries %d permissions", roleID, len(req.Permissions)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePermissionsCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		perms, err := a.rbac.ListPermissions(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": perms})
	case http.MethodPost:
		var req createPermissionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		perm, err := a.rbac.CreatePermission(r.Context(), req.Key, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "permission.created", fmt.Sprintf("permission %s (%d)", perm.Key, perm.ID))
		writeJSON(w, http.StatusCreated, perm)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePermissionResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/permissions/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "capabilities" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	permID, err := parseID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	var req updatePermissionCapabilitiesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.rbac.SetPermissionCapabilities(r.Context(), permID, req.Capabilities); err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditAdmin(r, "permission.capabilities.updated", fmt.Sprintf("permission %d now carries %d capabilities", permID, len(req.Capabilities)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCapabilitiesCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		caps, err := a.rbac.ListCapabilities(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": caps})
	case http.MethodPost:
		var req createCapabilityRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		capability, err := a.rbac.CreateCapability(r.Context(), req.Name, req.Description)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "capability.created", fmt.Sprintf("capability %s (%d)", capability.Name, capability.ID))
		writeJSON(w, http.StatusCreated, capability)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCompaniesCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createCompanyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	company, err := a.rbac.CreateCompany(r.Context(), req.Name)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditAdmin(r, "company.created", fmt.Sprintf("company %s (%d)", company.Name, company.ID))
	writeJSON(w, http.StatusCreated, company)
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "user creation failed")
		return
	}
	user, err := a.rbac.CreateUser(r.Context(), req.Username, req.Email, hash, req.CompanyID)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	a.auditAdmin(r, "user.created", fmt.Sprintf("user %s (%d)", user.Username, user.ID))
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%d", user.ID))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.rbac == nil {
		writeError(w, r, http.StatusServiceUnavailable, "rbac service unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	userID, err := parseID(parts[0])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	switch parts[1] {
	case "assignments":
		a.handleUserAssignments(w, r, userID, parts[2:])
	case "company-roles":
		a.handleUserCompanyRoles(w, r, userID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleUserAssignments(w http.ResponseWriter, r *http.Request, userID int64, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req assignRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.AssignRole(r.Context(), userID, req.RoleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "user.role.assigned", fmt.Sprintf("user %d role %d", userID, req.RoleID))
		w.WriteHeader(http.StatusCreated)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		roleID, err := parseID(rest[0])
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.RemoveRoleAssignment(r.Context(), userID, roleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "user.role.removed", fmt.Sprintf("user %d role %d", userID, roleID))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

func (a *API) handleUserCompanyRoles(w http.ResponseWriter, r *http.Request, userID int64, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodPost:
		var req assignCompanyRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		assignment := rbac.UserCompanyRole{
			UserID:    userID,
			CompanyID: req.CompanyID,
			RoleID:    req.RoleID,
			Primary:   req.Primary,
			Status:    req.Status,
		}
		if sess, ok := session.FromContext(r.Context()); ok && sess.LoggedIn() {
			actor := sess.MemberID
			assignment.AssignedBy = &actor
		}
		created, err := a.rbac.AssignCompanyRole(r.Context(), assignment)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "user.company_role.assigned",
			fmt.Sprintf("user %d company %d role %d", userID, created.CompanyID, created.RoleID))
		writeJSON(w, http.StatusCreated, created)
	case len(rest) == 2 && r.Method == http.MethodDelete:
		companyID, err := parseID(rest[0])
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		roleID, err := parseID(rest[1])
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.rbac.RevokeCompanyRole(r.Context(), userID, companyID, roleID); err != nil {
			handleRBACError(w, r, err)
			return
		}
		a.auditAdmin(r, "user.company_role.revoked",
			fmt.Sprintf("user %d company %d role %d", userID, companyID, roleID))
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodDelete)
	}
}

// auditAdmin records an administrative change with the acting session as
// the actor.
func (a *API) auditAdmin(r *http.Request, action, detail string) {
	entry := audit.Entry{
		Action:    action,
		Category:  audit.CategoryAdmin,
		Outcome:   audit.OutcomeSuccess,
		Detail:    detail,
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: RequestIDFromContext(r.Context()),
	}
	if sess, ok := session.FromContext(r.Context()); ok && sess.LoggedIn() {
		uid := sess.MemberID
		entry.ActorUserID = &uid
		entry.ActorUsername = sess.Username
	}
	a.record(r.Context(), entry)
}
