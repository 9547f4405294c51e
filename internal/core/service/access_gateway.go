package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

type VerifyInput struct {
	ShareCode   string `validate:"required,max=64"`
	ExtractCode string `validate:"max=32"`
	Fingerprint string `validate:"required,max=128"`
}

type VerifyResult struct {
	PurchaseOrderID int64
	Link            domain.ShareLink
}

// AccessGateway decides whether an anonymous visitor gets through a share
// link and, if so, to which purchase order.
type AccessGateway struct {
	registry *ShareLinkService
	tracker  *VisitorTracker
	audit    port.AuditSink
	log      logrus.FieldLogger
	timeout  time.Duration
	now      func() time.Time
}

func NewAccessGateway(registry *ShareLinkService, tracker *VisitorTracker, audit port.AuditSink, log logrus.FieldLogger, timeout time.Duration) *AccessGateway {
	return &AccessGateway{
		registry: registry,
		tracker:  tracker,
		audit:    auditOrDiscard(audit),
		log:      log,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (g *AccessGateway) Verify(ctx context.Context, in VerifyInput) (result VerifyResult, err error) {
	ctx, span := startSpan(ctx, "AccessGateway.Verify", attribute.String("share_code", in.ShareCode))
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return VerifyResult{}, err
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	now := g.now().UTC()
	link, err := g.registry.Lookup(ctx, in.ShareCode)
	if err != nil {
		return VerifyResult{}, g.deny(in.ShareCode, 0, err, now)
	}
	if err := link.CheckAccess(now); err != nil {
		return VerifyResult{}, g.deny(link.ShareCode, link.PurchaseOrderID, err, now)
	}
	if link.HasExtractCode() && !matchExtractCode(link.ExtractCodeHash, in.ExtractCode) {
		return VerifyResult{}, g.deny(link.ShareCode, link.PurchaseOrderID, domain.ErrExtractCodeMismatch, now)
	}

	outcome, err := g.tracker.RecordVisit(ctx, link.ShareCode, in.Fingerprint, now)
	if err != nil {
		return VerifyResult{}, g.deny(link.ShareCode, link.PurchaseOrderID, err, now)
	}
	if !outcome.Admitted {
		return VerifyResult{}, g.deny(link.ShareCode, link.PurchaseOrderID, outcome.Reason, now)
	}

	g.audit.Record(domain.AuditEvent{
		Type:            domain.AuditAccessGranted,
		ShareCode:       link.ShareCode,
		PurchaseOrderID: link.PurchaseOrderID,
		OccurredAt:      now,
		Detail: map[string]any{
			"access_count":      outcome.Link.AccessCount,
			"unique_user_count": outcome.Link.UniqueUserCount,
		},
	})
	return VerifyResult{PurchaseOrderID: outcome.Link.PurchaseOrderID, Link: outcome.Link}, nil
}

// deny records the refusal and hands the error back unchanged. Storage
// faults are logged but not audited as denials.
func (g *AccessGateway) deny(shareCode string, orderID int64, err error, now time.Time) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}

	kind := domain.KindOf(err)
	entry := g.log.WithFields(logrus.Fields{
		"share_code": shareCode,
		"reason":     domain.Reason(err),
	})
	switch kind {
	case domain.KindDenied, domain.KindInvalidInput:
		entry.Info("share access denied")
		g.audit.Record(domain.AuditEvent{
			Type:            domain.AuditAccessDenied,
			ShareCode:       shareCode,
			PurchaseOrderID: orderID,
			Reason:          domain.Reason(err),
			OccurredAt:      now,
		})
	case domain.KindBusy:
		entry.Warn("share access contended")
	default:
		entry.WithError(err).Error("share access failed")
	}
	return err
}
