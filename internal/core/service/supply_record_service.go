package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

type SubmitItem struct {
	ProductID int64           `validate:"required,gt=0"`
	Quantity  int64           `validate:"gt=0,lte=1000000000"`
	UnitPrice decimal.Decimal `validate:"-"`
}

type SubmitInput struct {
	PurchaseOrderID int64  `validate:"required,gt=0"`
	ShareCode       string `validate:"required,max=64"`
	ExtractCode     string `validate:"max=32"`
	Fingerprint     string `validate:"required,max=128"`
	RequestID       string `validate:"omitempty,max=64"`
	Supplier        domain.SupplierInfo
	Items           []SubmitItem `validate:"required,min=1,dive"`
}

// SupplyRecordService creates supply records through the quantity validator
// and disables them. Disabling is a plain status change: claimed quantities
// are derived from active records, so nothing else needs releasing.
type SupplyRecordService struct {
	gateway   *AccessGateway
	validator *QuantityValidator
	orders    port.PurchaseOrderRepository
	supplies  port.SupplyRecordRepository
	cache     port.CacheRepository
	audit     port.AuditSink
	log       logrus.FieldLogger
	timeout   time.Duration
	now       func() time.Time
}

func NewSupplyRecordService(
	gateway *AccessGateway,
	validator *QuantityValidator,
	orders port.PurchaseOrderRepository,
	supplies port.SupplyRecordRepository,
	cache port.CacheRepository,
	audit port.AuditSink,
	log logrus.FieldLogger,
	timeout time.Duration,
) *SupplyRecordService {
	return &SupplyRecordService{
		gateway:   gateway,
		validator: validator,
		orders:    orders,
		supplies:  supplies,
		cache:     cache,
		audit:     auditOrDiscard(audit),
		log:       log,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (s *SupplyRecordService) Submit(ctx context.Context, in SubmitInput) (record domain.SupplyRecord, err error) {
	ctx, span := startSpan(ctx, "SupplyRecordService.Submit",
		attribute.String("share_code", in.ShareCode),
		attribute.Int64("purchase_order_id", in.PurchaseOrderID),
	)
	defer func() { finishSpan(span, err) }()

	if err := validateSubmit(in); err != nil {
		return domain.SupplyRecord{}, err
	}

	access, err := s.gateway.Verify(ctx, VerifyInput{
		ShareCode:   in.ShareCode,
		ExtractCode: in.ExtractCode,
		Fingerprint: in.Fingerprint,
	})
	if err != nil {
		return domain.SupplyRecord{}, err
	}
	if access.PurchaseOrderID != in.PurchaseOrderID {
		return domain.SupplyRecord{}, domain.InvalidInputf("share link does not grant purchase order %d", in.PurchaseOrderID)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if in.RequestID != "" && s.cache != nil {
		key := idempotencyKey(in.ShareCode, in.RequestID)
		ok, err := s.cache.SetIdempotency(ctx, key)
		if err != nil {
			return domain.SupplyRecord{}, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return domain.SupplyRecord{}, domain.ErrDuplicateRequest
		}
		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.log.WithField("share_code", in.ShareCode).WithError(releaseErr).Warn("failed to release idempotency key")
			}
		}()
	}

	now := s.now().UTC()
	record = domain.SupplyRecord{
		ID:              uuid.NewString(),
		PurchaseOrderID: in.PurchaseOrderID,
		ShareCode:       in.ShareCode,
		RequestID:       in.RequestID,
		Status:          domain.SupplyRecordStatusActive,
		Supplier:        in.Supplier,
		Items:           make([]domain.SupplyRecordItem, 0, len(in.Items)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, item := range in.Items {
		record.Items = append(record.Items, domain.SupplyRecordItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	record.TotalAmount = domain.SumAmount(record.Items)

	if err := s.validator.AdmitClaim(ctx, record); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", domain.ErrBusy, err)
		}
		s.rejected(record, err)
		return domain.SupplyRecord{}, err
	}

	s.log.WithFields(logrus.Fields{
		"record_id":         record.ID,
		"share_code":        record.ShareCode,
		"purchase_order_id": record.PurchaseOrderID,
		"total_amount":      record.TotalAmount.String(),
	}).Info("supply record admitted")
	s.audit.Record(domain.AuditEvent{
		Type:            domain.AuditClaimAdmitted,
		ShareCode:       record.ShareCode,
		PurchaseOrderID: record.PurchaseOrderID,
		RecordID:        record.ID,
		OccurredAt:      now,
		Detail:          map[string]any{"total_amount": record.TotalAmount.String(), "items": len(record.Items)},
	})
	return record, nil
}

// SubmitWithRetry retries Submit while it fails with domain.ErrBusy.
// Business rejections are returned on the first attempt.
func (s *SupplyRecordService) SubmitWithRetry(ctx context.Context, in SubmitInput, maxTries uint) (domain.SupplyRecord, error) {
	return backoff.Retry(ctx, func() (domain.SupplyRecord, error) {
		record, err := s.Submit(ctx, in)
		if err != nil && !domain.Retryable(err) {
			return record, backoff.Permanent(err)
		}
		return record, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTries),
	)
}

func (s *SupplyRecordService) Disable(ctx context.Context, recordID string, actor int64) (err error) {
	ctx, span := startSpan(ctx, "SupplyRecordService.Disable", attribute.String("record_id", recordID))
	defer func() { finishSpan(span, err) }()

	record, err := s.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if _, err := authorizeOwner(ctx, s.orders, record.PurchaseOrderID, actor); err != nil {
		return err
	}

	now := s.now().UTC()
	if err := s.supplies.DisableSupplyRecord(ctx, recordID, actor, now); err != nil {
		if domain.KindOf(err) == domain.KindRejected {
			return err
		}
		return fmt.Errorf("disable supply record: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"record_id":         recordID,
		"purchase_order_id": record.PurchaseOrderID,
		"actor":             actor,
	}).Info("supply record disabled")
	s.audit.Record(domain.AuditEvent{
		Type:            domain.AuditRecordDisabled,
		ShareCode:       record.ShareCode,
		PurchaseOrderID: record.PurchaseOrderID,
		RecordID:        recordID,
		Actor:           actor,
		OccurredAt:      now,
	})
	return nil
}

func (s *SupplyRecordService) Get(ctx context.Context, recordID string) (*domain.SupplyRecord, error) {
	if recordID == "" {
		return nil, domain.ErrRecordNotFound
	}
	record, err := s.supplies.GetSupplyRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("get supply record: %w", err)
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}
	return record, nil
}

func (s *SupplyRecordService) ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.SupplyRecord, error) {
	if _, err := authorizeOwner(ctx, s.orders, orderID, actor); err != nil {
		return nil, err
	}
	records, err := s.supplies.ListSupplyRecords(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list supply records: %w", err)
	}
	return records, nil
}

func (s *SupplyRecordService) rejected(record domain.SupplyRecord, err error) {
	entry := s.log.WithFields(logrus.Fields{
		"share_code":        record.ShareCode,
		"purchase_order_id": record.PurchaseOrderID,
		"reason":            domain.Reason(err),
	})

	switch domain.KindOf(err) {
	case domain.KindRejected, domain.KindInvalidInput:
		entry.Info("supply claim rejected")
		event := domain.AuditEvent{
			Type:            domain.AuditClaimRejected,
			ShareCode:       record.ShareCode,
			PurchaseOrderID: record.PurchaseOrderID,
			Reason:          domain.Reason(err),
			OccurredAt:      record.CreatedAt,
		}
		var insufficient *domain.InsufficientQuantityError
		if errors.As(err, &insufficient) {
			event.Detail = map[string]any{
				"product_id": insufficient.ProductID,
				"requested":  insufficient.Requested,
				"available":  insufficient.Available,
			}
		}
		s.audit.Record(event)
	case domain.KindBusy:
		entry.Warn("supply claim contended")
	default:
		entry.WithError(err).Error("supply claim failed")
	}
}

func validateSubmit(in SubmitInput) error {
	if err := validateInput(in); err != nil {
		return err
	}
	for i, item := range in.Items {
		if item.UnitPrice.IsNegative() {
			return domain.InvalidInputf("items[%d] unit price must not be negative", i)
		}
	}
	return nil
}

func idempotencyKey(shareCode, requestID string) string {
	return fmt.Sprintf("supply:%s:%s", shareCode, requestID)
}
