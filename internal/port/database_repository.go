package port

import (
	"context"
	"time"

	"github.com/rl1809/supply-share/internal/core/domain"
)

// AdmissionCheck runs inside the storage transaction that holds the order's
// line locks, against the claimed quantities read under those locks. A
// non-nil error aborts the insert.
type AdmissionCheck func(lines []domain.PurchaseOrderLine, claimed map[int64]int64) error

type PurchaseOrderRepository interface {
	// GetPurchaseOrder returns nil when the order does not exist
	GetPurchaseOrder(ctx context.Context, orderID int64) (*domain.PurchaseOrder, error)

	GetPurchaseOrderLines(ctx context.Context, orderID int64) ([]domain.PurchaseOrderLine, error)
}

type ShareLinkRepository interface {
	// CreateShareLink inserts a link, returns domain.ErrDuplicateRequest on share code collision
	CreateShareLink(ctx context.Context, link domain.ShareLink) error

	// GetShareLink returns nil when the code is unknown
	GetShareLink(ctx context.Context, shareCode string) (*domain.ShareLink, error)

	ListShareLinks(ctx context.Context, orderID int64) ([]domain.ShareLink, error)

	// RevokeShareLink sets status=revoked, reports whether the row changed
	RevokeShareLink(ctx context.Context, shareCode string, now time.Time) (bool, error)

	// RecordVisit checks and increments the link counters as one unit under the link's row lock
	RecordVisit(ctx context.Context, shareCode, fingerprint string, now time.Time) (domain.VisitOutcome, error)

	ListAccessRecords(ctx context.Context, shareCode string) ([]domain.ShareAccessRecord, error)

	// ExpireShareLinks moves overdue active links to expired and returns their codes
	ExpireShareLinks(ctx context.Context, now time.Time) ([]string, error)
}

type SupplyRecordRepository interface {
	// ClaimedQuantities sums item quantities of active records per product
	ClaimedQuantities(ctx context.Context, orderID int64) (map[int64]int64, error)

	// CreateSupplyRecord locks the order lines the record touches, runs check against fresh
	// claimed sums and inserts the record in the same transaction
	CreateSupplyRecord(ctx context.Context, record domain.SupplyRecord, check AdmissionCheck) error

	// GetSupplyRecord returns nil when the record does not exist
	GetSupplyRecord(ctx context.Context, recordID string) (*domain.SupplyRecord, error)

	ListSupplyRecords(ctx context.Context, orderID int64) ([]domain.SupplyRecord, error)

	// DisableSupplyRecord transitions active to disabled under a row lock
	DisableSupplyRecord(ctx context.Context, recordID string, actor int64, now time.Time) error
}

type AuditRepository interface {
	SaveAuditEvent(ctx context.Context, event domain.AuditEvent) error
}
