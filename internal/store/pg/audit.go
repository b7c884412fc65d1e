package pg

import (
	"context"
	"database/sql"
	"time"

	"carbonledger.org/internal/audit"
	"carbonledger.org/internal/rbac"
)

var _ audit.Recorder = (*AuditStore)(nil)

// AuditStore persists activity entries in the activity_log table. The table
// is append-only; no update or delete statement exists in this package.
type AuditStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewAuditStore wraps the shared connection pool.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db, now: time.Now}
}

func (s *AuditStore) Append(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	if s.db == nil {
		return audit.Entry{}, errDBUnavailable
	}
	if e.Action == "" {
		return audit.Entry{}, rbac.ErrInvalidInput
	}
	e = audit.Normalize(e, s.now())
	_, err := s.db.ExecContext(ctx, `
		insert into activity_log
			(id, actor_user_id, actor_username, company_id, action, category,
			 outcome, detail, ip, user_agent, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.ActorUserID, nullIfEmpty(e.ActorUsername), e.CompanyID, e.Action, e.Category,
		e.Outcome, nullIfEmpty(e.Detail), nullIfEmpty(e.IP), nullIfEmpty(e.UserAgent),
		nullIfEmpty(e.RequestID), e.OccurredAt)
	if err != nil {
		return audit.Entry{}, err
	}
	return e, nil
}

func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if s.db == nil {
		return nil, errDBUnavailable
	}
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_user_id, actor_username, company_id, action, category,
		       outcome, detail, ip, user_agent, request_id, occurred_at
		from activity_log
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			actorID   sql.NullInt64
			actorName sql.NullString
			companyID sql.NullInt64
			detail    sql.NullString
			ip        sql.NullString
			agent     sql.NullString
			requestID sql.NullString
		)
		if err := rows.Scan(&e.ID, &actorID, &actorName, &companyID, &e.Action, &e.Category,
			&e.Outcome, &detail, &ip, &agent, &requestID, &e.OccurredAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			e.ActorUserID = &actorID.Int64
		}
		if companyID.Valid {
			e.CompanyID = &companyID.Int64
		}
		e.ActorUsername = actorName.String
		e.Detail = detail.String
		e.IP = ip.String
		e.UserAgent = agent.String
		e.RequestID = requestID.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
