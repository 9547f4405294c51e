package domain

import "time"

type AuditEventType string

const (
	AuditShareLinkCreated AuditEventType = "share_link.created"
	AuditShareLinkRevoked AuditEventType = "share_link.revoked"
	AuditShareLinkExpired AuditEventType = "share_link.expired"
	AuditAccessGranted    AuditEventType = "share_access.granted"
	AuditAccessDenied     AuditEventType = "share_access.denied"
	AuditClaimAdmitted    AuditEventType = "supply_claim.admitted"
	AuditClaimRejected    AuditEventType = "supply_claim.rejected"
	AuditRecordDisabled   AuditEventType = "supply_record.disabled"
)

type AuditEvent struct {
	ID              string
	Type            AuditEventType
	ShareCode       string
	PurchaseOrderID int64
	RecordID        string
	Actor           int64
	Reason          string
	Detail          map[string]any
	OccurredAt      time.Time
}
