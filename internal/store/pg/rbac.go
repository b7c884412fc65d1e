package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"carbonledger.org/internal/rbac"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ rbac.Store = (*Store)(nil)

var errDBUnavailable = errors.New("database connection unavailable")

func (s *Store) CreateUser(ctx context.Context, u *rbac.User) error {
	if s.db == nil {
		return errDBUnavailable
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (username, email, password_hash, active, company_id)
		values ($1, $2, $3, $4, $5)
		returning id, created_at, updated_at
	`, u.Username, u.Email, u.PasswordHash, u.Active, u.CompanyID)
	if err := row.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (rbac.User, error) {
	if s.db == nil {
		return rbac.User{}, errDBUnavailable
	}
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, active, company_id,
		       failed_logins, last_failed_login_at, created_at, updated_at
		from users
		where id = $1
	`, id))
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, error) {
	if s.db == nil {
		return rbac.User{}, errDBUnavailable
	}
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, username, email, password_hash, active, company_id,
		       failed_logins, last_failed_login_at, created_at, updated_at
		from users
		where username = $1
	`, username))
}

func (s *Store) scanUser(row *sql.Row) (rbac.User, error) {
	var (
		user       rbac.User
		companyID  sql.NullInt64
		lastFailed sql.NullTime
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.Active,
		&companyID, &user.FailedLogins, &lastFailed, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.User{}, err
	}
	if companyID.Valid {
		user.CompanyID = &companyID.Int64
	}
	if lastFailed.Valid {
		t := lastFailed.Time
		user.LastFailedLoginAt = &t
	}
	return user, nil
}

func (s *Store) RecordLoginFailure(ctx context.Context, userID int64, failures int, at time.Time) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_logins = $2, last_failed_login_at = $3, updated_at = now()
		where id = $1
	`, userID, failures, at.UTC())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ResetLoginFailures(ctx context.Context, userID int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update users
		set failed_logins = 0, last_failed_login_at = null, updated_at = now()
		where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CreateCompany(ctx context.Context, name string) (rbac.Company, error) {
	if s.db == nil {
		return rbac.Company{}, errDBUnavailable
	}
	var company rbac.Company
	company.Name = name
	row := s.db.QueryRowContext(ctx, `
		insert into companies (name)
		values ($1)
		returning id, created_at, updated_at
	`, name)
	if err := row.Scan(&company.ID, &company.CreatedAt, &company.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Company{}, rbac.ErrConflict
		}
		return rbac.Company{}, err
	}
	return company, nil
}

func (s *Store) CreateRole(ctx context.Context, name, description string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errDBUnavailable
	}
	var role rbac.Role
	role.Name = name
	role.Description = description
	row := s.db.QueryRowContext(ctx, `
		insert into roles (name, description)
		values ($1, $2)
		returning id, created_at, updated_at
	`, name, nullIfEmpty(description))
	if err := row.Scan(&role.ID, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Role{}, rbac.ErrConflict
		}
		return rbac.Role{}, err
	}
	return role, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	if s.db == nil {
		return rbac.Role{}, errDBUnavailable
	}
	var (
		role rbac.Role
		desc sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		where name = $1
	`, name).Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, rbac.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, err
	}
	if desc.Valid {
		role.Description = desc.String
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at, updated_at
		from roles
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreatePermission(ctx context.Context, key, description string) (rbac.Permission, error) {
	if s.db == nil {
		return rbac.Permission{}, errDBUnavailable
	}
	var perm rbac.Permission
	perm.Key = key
	perm.Description = description
	row := s.db.QueryRowContext(ctx, `
		insert into permissions (key, description)
		values ($1, $2)
		returning id, created_at
	`, key, nullIfEmpty(description))
	if err := row.Scan(&perm.ID, &perm.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Permission{}, rbac.ErrConflict
		}
		return rbac.Permission{}, err
	}
	return perm, nil
}

func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, key, description, created_at
		from permissions
		order by key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var (
			perm rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Key, &desc, &perm.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			perm.Description = desc.String
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CreateCapability(ctx context.Context, name, description string) (rbac.Capability, error) {
	if s.db == nil {
		return rbac.Capability{}, errDBUnavailable
	}
	var cap rbac.Capability
	cap.Name = name
	cap.Description = description
	row := s.db.QueryRowContext(ctx, `
		insert into capabilities (name, description)
		values ($1, $2)
		returning id, created_at
	`, name, nullIfEmpty(description))
	if err := row.Scan(&cap.ID, &cap.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return rbac.Capability{}, rbac.ErrConflict
		}
		return rbac.Capability{}, err
	}
	return cap, nil
}

func (s *Store) ListCapabilities(ctx context.Context) ([]rbac.Capability, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, created_at
		from capabilities
		order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []rbac.Capability
	for rows.Next() {
		var (
			cap  rbac.Capability
			desc sql.NullString
		)
		if err := rows.Scan(&cap.ID, &cap.Name, &desc, &cap.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			cap.Description = desc.String
		}
		caps = append(caps, cap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return caps, nil
}

func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, userID, roleID)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) RemoveRoleAssignment(ctx context.Context, userID, roleID int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id = $1 and role_id = $2
	`, userID, roleID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) AssignCompanyRole(ctx context.Context, a rbac.UserCompanyRole) (rbac.UserCompanyRole, error) {
	if s.db == nil {
		return rbac.UserCompanyRole{}, errDBUnavailable
	}
	row := s.db.QueryRowContext(ctx, `
		insert into user_company_roles (user_id, company_id, role_id, is_primary, status, assigned_by)
		values ($1, $2, $3, $4, $5, $6)
		returning id, assigned_at
	`, a.UserID, a.CompanyID, a.RoleID, a.Primary, a.Status, a.AssignedBy)
	if err := row.Scan(&a.ID, &a.AssignedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return rbac.UserCompanyRole{}, rbac.ErrConflict
			case pgErrForeignKeyViolation:
				return rbac.UserCompanyRole{}, rbac.ErrNotFound
			}
		}
		return rbac.UserCompanyRole{}, err
	}
	return a, nil
}

func (s *Store) RevokeCompanyRole(ctx context.Context, userID, companyID, roleID int64) error {
	if s.db == nil {
		return errDBUnavailable
	}
	res, err := s.db.ExecContext(ctx, `
		update user_company_roles
		set status = $4, revoked_at = now()
		where user_id = $1 and company_id = $2 and role_id = $3 and status = $5
	`, userID, companyID, roleID, rbac.CompanyRoleStatusRevoked, rbac.CompanyRoleStatusActive)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, permissionKeys []string) error {
	if s.db == nil {
		return errDBUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from roles where id = $1`, roleID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	if len(permissionKeys) == 0 {
		return tx.Commit()
	}

	for _, key := range permissionKeys {
		var permID int64
		err := tx.QueryRowContext(ctx, `select id from permissions where key = $1`, key).Scan(&permID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: permission %s not found", rbac.ErrNotFound, key)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			values ($1, $2)
		`, roleID, permID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) SetPermissionCapabilities(ctx context.Context, permissionID int64, capabilityNames []string) error {
	if s.db == nil {
		return errDBUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, `select 1 from permissions where id = $1`, permissionID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rbac.ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from permission_capabilities where permission_id = $1`, permissionID); err != nil {
		return err
	}
	if len(capabilityNames) == 0 {
		return tx.Commit()
	}

	for _, name := range capabilityNames {
		var capID int64
		err := tx.QueryRowContext(ctx, `select id from capabilities where name = $1`, name).Scan(&capID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: capability %s not found", rbac.ErrNotFound, name)
			}
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into permission_capabilities (permission_id, capability_id)
			values ($1, $2)
		`, permissionID, capID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) RolesForUser(ctx context.Context, userID int64) ([]rbac.Role, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		select distinct r.id, r.name, r.description, r.created_at, r.updated_at
		from roles r
		where r.id in (
			select role_id from user_roles where user_id = $1
			union
			select role_id from user_company_roles where user_id = $1 and status = $2
		)
		order by r.name
	`, userID, rbac.CompanyRoleStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		var (
			role rbac.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]rbac.Permission, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	if len(roleIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		select distinct p.id, p.key, p.description, p.created_at
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		where rp.role_id in (%s)
		order by p.key
	`, placeholders(len(roleIDs)))
	rows, err := s.db.QueryContext(ctx, query, int64Args(roleIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []rbac.Permission
	for rows.Next() {
		var (
			perm rbac.Permission
			desc sql.NullString
		)
		if err := rows.Scan(&perm.ID, &perm.Key, &desc, &perm.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			perm.Description = desc.String
		}
		perms = append(perms, perm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *Store) CapabilitiesForPermissions(ctx context.Context, permissionIDs []int64) ([]rbac.Capability, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	if len(permissionIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`
		select distinct c.id, c.name, c.description, c.created_at
		from permission_capabilities pc
		join capabilities c on c.id = pc.capability_id
		where pc.permission_id in (%s)
		order by c.name
	`, placeholders(len(permissionIDs)))
	rows, err := s.db.QueryContext(ctx, query, int64Args(permissionIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []rbac.Capability
	for rows.Next() {
		var (
			cap  rbac.Capability
			desc sql.NullString
		)
		if err := rows.Scan(&cap.ID, &cap.Name, &desc, &cap.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			cap.Description = desc.String
		}
		caps = append(caps, cap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return caps, nil
}

// --- helpers ---

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func requireAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return rbac.ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
