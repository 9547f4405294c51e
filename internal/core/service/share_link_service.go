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

const shareCodeAttempts = 3

type ShareLinkOptions struct {
	DefaultTTL        time.Duration
	MaxTTL            time.Duration
	ExtractCodeLength int
	BcryptCost        int
}

type CreateShareLinkInput struct {
	PurchaseOrderID  int64 `validate:"required,gt=0"`
	Actor            int64 `validate:"required,gt=0"`
	ExpiresInSeconds int64 `validate:"gte=0"`
	AccessLimit      int64 `validate:"gte=0"`
	UseExtractCode   bool
}

// CreatedShareLink carries the plain extract code, which is only ever
// available at creation time.
type CreatedShareLink struct {
	Link        domain.ShareLink
	ExtractCode string
}

// ShareLinkService is the registry of share links: creation, lookup and
// revocation on behalf of the purchase order owner.
type ShareLinkService struct {
	links  port.ShareLinkRepository
	orders port.PurchaseOrderRepository
	audit  port.AuditSink
	log    logrus.FieldLogger
	opts   ShareLinkOptions
	now    func() time.Time
}

func NewShareLinkService(links port.ShareLinkRepository, orders port.PurchaseOrderRepository, audit port.AuditSink, log logrus.FieldLogger, opts ShareLinkOptions) *ShareLinkService {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 72 * time.Hour
	}
	if opts.MaxTTL < opts.DefaultTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	if opts.ExtractCodeLength <= 0 {
		opts.ExtractCodeLength = 6
	}
	return &ShareLinkService{
		links:  links,
		orders: orders,
		audit:  auditOrDiscard(audit),
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *ShareLinkService) Create(ctx context.Context, in CreateShareLinkInput) (created CreatedShareLink, err error) {
	ctx, span := startSpan(ctx, "ShareLinkService.Create", attribute.Int64("purchase_order_id", in.PurchaseOrderID))
	defer func() { finishSpan(span, err) }()

	if err := validateInput(in); err != nil {
		return CreatedShareLink{}, err
	}

	ttl := s.opts.DefaultTTL
	if in.ExpiresInSeconds > 0 {
		// Compared in seconds, the conversion to Duration overflows for large inputs.
		if in.ExpiresInSeconds > int64(s.opts.MaxTTL/time.Second) {
			return CreatedShareLink{}, domain.InvalidInputf("expiry exceeds maximum of %s", s.opts.MaxTTL)
		}
		ttl = time.Duration(in.ExpiresInSeconds) * time.Second
	}
	if ttl > s.opts.MaxTTL {
		return CreatedShareLink{}, domain.InvalidInputf("expiry exceeds maximum of %s", s.opts.MaxTTL)
	}

	order, err := s.authorizeOwner(ctx, in.PurchaseOrderID, in.Actor)
	if err != nil {
		return CreatedShareLink{}, err
	}
	if order.Status == domain.PurchaseOrderStatusCancelled {
		return CreatedShareLink{}, domain.InvalidInputf("purchase order %d is cancelled", order.ID)
	}

	now := s.now().UTC()
	link := domain.ShareLink{
		PurchaseOrderID: in.PurchaseOrderID,
		Status:          domain.ShareLinkStatusActive,
		ExpiresAt:       now.Add(ttl),
		AccessLimit:     in.AccessLimit,
		CreatedBy:       in.Actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if in.UseExtractCode {
		code, err := newExtractCode(s.opts.ExtractCodeLength)
		if err != nil {
			return CreatedShareLink{}, fmt.Errorf("generate extract code: %w", err)
		}
		hash, err := hashExtractCode(code, s.opts.BcryptCost)
		if err != nil {
			return CreatedShareLink{}, fmt.Errorf("hash extract code: %w", err)
		}
		link.ExtractCodeHash = hash
		created.ExtractCode = code
	}

	for attempt := 1; ; attempt++ {
		link.ShareCode = newShareCode()
		err = s.links.CreateShareLink(ctx, link)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateRequest) || attempt == shareCodeAttempts {
			return CreatedShareLink{}, fmt.Errorf("create share link: %w", err)
		}
	}

	created.Link = link
	s.log.WithFields(logrus.Fields{
		"share_code":        link.ShareCode,
		"purchase_order_id": link.PurchaseOrderID,
		"access_limit":      link.AccessLimit,
		"expires_at":        link.ExpiresAt,
	}).Info("share link created")
	s.audit.Record(domain.AuditEvent{
		Type:            domain.AuditShareLinkCreated,
		ShareCode:       link.ShareCode,
		PurchaseOrderID: link.PurchaseOrderID,
		Actor:           in.Actor,
		OccurredAt:      now,
		Detail: map[string]any{
			"access_limit":     link.AccessLimit,
			"expires_at":       link.ExpiresAt,
			"has_extract_code": link.HasExtractCode(),
		},
	})
	return created, nil
}

func (s *ShareLinkService) Lookup(ctx context.Context, shareCode string) (*domain.ShareLink, error) {
	if shareCode == "" {
		return nil, domain.ErrLinkNotFound
	}
	link, err := s.links.GetShareLink(ctx, shareCode)
	if err != nil {
		return nil, fmt.Errorf("lookup share link: %w", err)
	}
	if link == nil {
		return nil, domain.ErrLinkNotFound
	}
	return link, nil
}

// Revoke is idempotent: revoking a revoked or expired link succeeds.
func (s *ShareLinkService) Revoke(ctx context.Context, shareCode string, actor int64) (err error) {
	ctx, span := startSpan(ctx, "ShareLinkService.Revoke", attribute.String("share_code", shareCode))
	defer func() { finishSpan(span, err) }()

	link, err := s.Lookup(ctx, shareCode)
	if err != nil {
		return err
	}
	if _, err := s.authorizeOwner(ctx, link.PurchaseOrderID, actor); err != nil {
		return err
	}

	now := s.now().UTC()
	changed, err := s.links.RevokeShareLink(ctx, shareCode, now)
	if err != nil {
		return fmt.Errorf("revoke share link: %w", err)
	}
	if !changed {
		return nil
	}

	s.log.WithField("share_code", shareCode).Info("share link revoked")
	s.audit.Record(domain.AuditEvent{
		Type:            domain.AuditShareLinkRevoked,
		ShareCode:       shareCode,
		PurchaseOrderID: link.PurchaseOrderID,
		Actor:           actor,
		OccurredAt:      now,
	})
	return nil
}

func (s *ShareLinkService) ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.ShareLink, error) {
	if _, err := s.authorizeOwner(ctx, orderID, actor); err != nil {
		return nil, err
	}
	links, err := s.links.ListShareLinks(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list share links: %w", err)
	}
	return links, nil
}

func (s *ShareLinkService) AccessRecords(ctx context.Context, shareCode string, actor int64) ([]domain.ShareAccessRecord, error) {
	link, err := s.Lookup(ctx, shareCode)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeOwner(ctx, link.PurchaseOrderID, actor); err != nil {
		return nil, err
	}
	records, err := s.links.ListAccessRecords(ctx, shareCode)
	if err != nil {
		return nil, fmt.Errorf("list access records: %w", err)
	}
	return records, nil
}

func (s *ShareLinkService) authorizeOwner(ctx context.Context, orderID, actor int64) (*domain.PurchaseOrder, error) {
	return authorizeOwner(ctx, s.orders, orderID, actor)
}

func authorizeOwner(ctx context.Context, orders port.PurchaseOrderRepository, orderID, actor int64) (*domain.PurchaseOrder, error) {
	order, err := orders.GetPurchaseOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order == nil {
		return nil, domain.InvalidInputf("purchase order %d not found", orderID)
	}
	if order.OwnerID != actor {
		return nil, domain.ErrForbidden
	}
	return order, nil
}
