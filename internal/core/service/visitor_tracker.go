package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

// VisitorTracker deduplicates anonymous visitors of a link by fingerprint.
// Repeat visitors are always admitted; new visitors consume a unique-visitor
// slot, and the check and the increment happen in one storage transaction.
type VisitorTracker struct {
	links port.ShareLinkRepository
	log   logrus.FieldLogger
}

func NewVisitorTracker(links port.ShareLinkRepository, log logrus.FieldLogger) *VisitorTracker {
	return &VisitorTracker{links: links, log: log}
}

func (t *VisitorTracker) RecordVisit(ctx context.Context, shareCode, fingerprint string, now time.Time) (domain.VisitOutcome, error) {
	if fingerprint == "" {
		return domain.VisitOutcome{}, domain.InvalidInputf("fingerprint is required")
	}

	outcome, err := t.links.RecordVisit(ctx, shareCode, fingerprint, now)
	if err != nil {
		return domain.VisitOutcome{}, fmt.Errorf("record visit: %w", err)
	}

	if !outcome.Admitted {
		t.log.WithFields(logrus.Fields{
			"share_code":        shareCode,
			"reason":            domain.Reason(outcome.Reason),
			"unique_user_count": outcome.Link.UniqueUserCount,
			"access_limit":      outcome.Link.AccessLimit,
		}).Info("visit not admitted")
	}
	return outcome, nil
}
