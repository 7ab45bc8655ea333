package domain

import "time"

// Audit actions.
const (
	ActionRequest = "REQUEST_ACCESS"
	ActionGrant   = "GRANT_PAID"
	ActionApprove = "APPROVE"
	ActionDeny    = "DENY"
	ActionRevoke  = "REVOKE"
	ActionRemove  = "REMOVE"
)

// AuditLog records an administrative or billing action performed on a record.
type AuditLog struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id"`
	Action     string    `json:"action"` // e.g. "APPROVE", "REMOVE"
	Actor      string    `json:"actor"`  // admin id, or "billing" for grants
	FromStatus Status    `json:"from_status,omitempty"`
	ToStatus   Status    `json:"to_status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
