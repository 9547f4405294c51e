package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

// QuantityValidator applies the quota ledger to live storage state. Claimed
// quantities are always derived from active records, never cached.
type QuantityValidator struct {
	orders   port.PurchaseOrderRepository
	supplies port.SupplyRecordRepository
}

func NewQuantityValidator(orders port.PurchaseOrderRepository, supplies port.SupplyRecordRepository) *QuantityValidator {
	return &QuantityValidator{orders: orders, supplies: supplies}
}

func (v *QuantityValidator) AvailableQuantities(ctx context.Context, orderID int64) (out []domain.QuantityAvailability, err error) {
	ctx, span := startSpan(ctx, "QuantityValidator.AvailableQuantities", attribute.Int64("purchase_order_id", orderID))
	defer func() { finishSpan(span, err) }()

	order, err := v.orders.GetPurchaseOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order: %w", err)
	}
	if order == nil {
		return nil, domain.InvalidInputf("purchase order %d not found", orderID)
	}

	lines, err := v.orders.GetPurchaseOrderLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get purchase order lines: %w", err)
	}
	claimed, err := v.supplies.ClaimedQuantities(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("claimed quantities: %w", err)
	}
	return domain.Availability(lines, claimed), nil
}

// AdmitClaim persists record only if every item fits into what remains of
// its line at admission time. The check and the insert form one storage
// transaction scoped to the record's purchase order.
func (v *QuantityValidator) AdmitClaim(ctx context.Context, record domain.SupplyRecord) (err error) {
	ctx, span := startSpan(ctx, "QuantityValidator.AdmitClaim",
		attribute.Int64("purchase_order_id", record.PurchaseOrderID),
		attribute.Int("items", len(record.Items)),
	)
	defer func() { finishSpan(span, err) }()

	return v.supplies.CreateSupplyRecord(ctx, record, func(lines []domain.PurchaseOrderLine, claimed map[int64]int64) error {
		return domain.CheckClaim(lines, claimed, record.Items)
	})
}

// OwnerAvailability is AvailableQuantities for the purchase order owner.
func (v *QuantityValidator) OwnerAvailability(ctx context.Context, orderID, actor int64) ([]domain.QuantityAvailability, error) {
	if _, err := authorizeOwner(ctx, v.orders, orderID, actor); err != nil {
		return nil, err
	}
	return v.AvailableQuantities(ctx, orderID)
}
