package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rl1809/supply-share/internal/core/domain"
)

func (m *MySQLAdapter) GetPurchaseOrder(ctx context.Context, orderID int64) (*domain.PurchaseOrder, error) {
	var order domain.PurchaseOrder
	err := m.db.QueryRowContext(ctx,
		"SELECT id, owner_id, status FROM purchase_orders WHERE id = ?", orderID,
	).Scan(&order.ID, &order.OwnerID, &order.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query purchase order: %w", err)
	}
	return &order, nil
}

func (m *MySQLAdapter) GetPurchaseOrderLines(ctx context.Context, orderID int64) ([]domain.PurchaseOrderLine, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT order_id, product_id, ordered_quantity FROM purchase_order_lines
		WHERE order_id = ? ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.PurchaseOrderLine
	for rows.Next() {
		var line domain.PurchaseOrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.OrderedQuantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// UpsertPurchaseOrder mirrors an order from the purchasing module. Used by
// seeding and tests.
func (m *MySQLAdapter) UpsertPurchaseOrder(ctx context.Context, order domain.PurchaseOrder, lines []domain.PurchaseOrderLine) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO purchase_orders (id, owner_id, status) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE owner_id = VALUES(owner_id), status = VALUES(status)`,
			order.ID, order.OwnerID, order.Status); err != nil {
			return fmt.Errorf("upsert purchase order: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM purchase_order_lines WHERE order_id = ?", order.ID); err != nil {
			return fmt.Errorf("clear order lines: %w", err)
		}
		for _, line := range lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO purchase_order_lines (order_id, product_id, ordered_quantity) VALUES (?, ?, ?)`,
				order.ID, line.ProductID, line.OrderedQuantity); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (m *MySQLAdapter) SaveAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	var detail []byte
	if len(event.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(event.Detail); err != nil {
			return fmt.Errorf("encode audit detail: %w", err)
		}
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO share_audit_events (id, event_type, share_code, purchase_order_id, record_id,
			actor, reason, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Type, event.ShareCode, event.PurchaseOrderID, event.RecordID,
		event.Actor, event.Reason, detail, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
