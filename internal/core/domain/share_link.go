package domain

import "time"

type ShareLinkStatus string

const (
	ShareLinkStatusActive  ShareLinkStatus = "active"
	ShareLinkStatusRevoked ShareLinkStatus = "revoked"
	ShareLinkStatusExpired ShareLinkStatus = "expired"
)

// ShareLink grants anonymous, quota-limited access to one purchase order's
// supply submission flow.
type ShareLink struct {
	ShareCode       string
	ExtractCodeHash string // bcrypt hash, empty when the link has no extract code
	PurchaseOrderID int64
	Status          ShareLinkStatus
	ExpiresAt       time.Time
	AccessLimit     int64 // max unique visitors, 0 = unlimited
	AccessCount     int64
	UniqueUserCount int64
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (l *ShareLink) HasExtractCode() bool {
	return l.ExtractCodeHash != ""
}

func (l *ShareLink) HasAccessLimit() bool {
	return l.AccessLimit > 0
}

// CheckAccess reports why the link cannot be used at now, in the order
// callers see the reasons: expiry first, then status.
func (l *ShareLink) CheckAccess(now time.Time) error {
	if !now.Before(l.ExpiresAt) {
		return ErrLinkExpired
	}
	if l.Status != ShareLinkStatusActive {
		if l.Status == ShareLinkStatusExpired {
			return ErrLinkExpired
		}
		return ErrLinkRevoked
	}
	return nil
}

// IsUsable is a pre-check only. The unique visitor quota is enforced
// authoritatively when the visit is recorded under the link's row lock.
func (l *ShareLink) IsUsable(now time.Time) bool {
	if l.CheckAccess(now) != nil {
		return false
	}
	return !l.HasAccessLimit() || l.UniqueUserCount < l.AccessLimit
}

// ShareAccessRecord is one anonymous visitor of one link.
type ShareAccessRecord struct {
	ShareCode   string
	Fingerprint string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	AccessCount int64
}

type VisitOutcome struct {
	Admitted bool
	Reason   error // set when Admitted is false
	Link     ShareLink
}
