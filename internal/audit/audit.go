// Package audit records security-relevant activity in an append-only log.
package audit

import (
	"context"
	"strings"
	"time"

	"carbonledger.org/internal/ids"
)

// Outcome labels for activity entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// Category labels for activity entries.
const (
	CategoryAuth      = "auth"
	CategoryAuthz     = "authz"
	CategoryAdmin     = "admin"
	CategoryLifecycle = "lifecycle"
)

// Entry is one immutable activity record. Actor fields are nil for
// anonymous activity such as a failed login with an unknown username.
type Entry struct {
	ID            string    `json:"id"`
	ActorUserID   *int64    `json:"actor_user_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	CompanyID     *int64    `json:"company_id,omitempty"`
	Action        string    `json:"action"`
	Category      string    `json:"category"`
	Outcome       string    `json:"outcome"`
	Detail        string    `json:"detail,omitempty"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Recorder is the append-only activity sink. Append must never mutate or
// drop prior entries; there is no update or delete operation.
type Recorder interface {
	Append(ctx context.Context, e Entry) (Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

// Normalize fills generated fields and trims free-form text. Called by
// recorder implementations before persisting.
func Normalize(e Entry, now time.Time) Entry {
	if e.ID == "" {
		e.ID = ids.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now.UTC()
	} else {
		e.OccurredAt = e.OccurredAt.UTC()
	}
	e.Action = strings.TrimSpace(e.Action)
	e.Detail = strings.TrimSpace(e.Detail)
	if e.Outcome == "" {
		e.Outcome = OutcomeSuccess
	}
	if e.ActorUserID == nil {
		// Only coarse origin data is kept for anonymous activity.
		e.IP = MaskIP(e.IP)
	}
	return e
}

// MaskIP zeroes the host portion of an address, keeping enough to spot
// patterns without storing a full identifier for anonymous actors.
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ""
	}
	if strings.Contains(ip, ":") {
		parts := strings.Split(ip, ":")
		if len(parts) > 2 {
			return strings.Join(parts[:2], ":") + "::"
		}
		return ip
	}
	parts := strings.Split(ip, ".")
	if len(parts) == 4 {
		return strings.Join(parts[:3], ".") + ".0"
	}
	return ip
}
