package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

const supplyRecordColumns = `id, purchase_order_id, share_code, request_id, status,
	supplier_name, supplier_contact, supplier_phone, supplier_remark, total_amount,
	disabled_by, disabled_at, created_at, updated_at`

func scanSupplyRecord(row rowScanner) (domain.SupplyRecord, error) {
	var (
		rec        domain.SupplyRecord
		requestID  sql.NullString
		remark     sql.NullString
		disabledBy sql.NullInt64
		disabledAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.PurchaseOrderID, &rec.ShareCode, &requestID, &rec.Status,
		&rec.Supplier.Name, &rec.Supplier.Contact, &rec.Supplier.Phone, &remark, &rec.TotalAmount,
		&disabledBy, &disabledAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.RequestID = requestID.String
	rec.Supplier.Remark = remark.String
	rec.DisabledBy = disabledBy.Int64
	if disabledAt.Valid {
		at := disabledAt.Time
		rec.DisabledAt = &at
	}
	return rec, nil
}

func (m *MySQLAdapter) ClaimedQuantities(ctx context.Context, orderID int64) (map[int64]int64, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT i.product_id, SUM(i.quantity)
		FROM supply_record_items i
		JOIN supply_records r ON r.id = i.record_id
		WHERE r.purchase_order_id = ? AND r.status = ?
		GROUP BY i.product_id`, orderID, domain.SupplyRecordStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query claimed quantities: %w", err)
	}
	defer rows.Close()

	return scanClaimed(rows)
}

func scanClaimed(rows *sql.Rows) (map[int64]int64, error) {
	claimed := make(map[int64]int64)
	for rows.Next() {
		var productID, qty int64
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, fmt.Errorf("scan claimed quantity: %w", err)
		}
		claimed[productID] = qty
	}
	return claimed, rows.Err()
}

func (m *MySQLAdapter) CreateSupplyRecord(ctx context.Context, record domain.SupplyRecord, check port.AdmissionCheck) error {
	products := touchedProducts(record.Items)
	if len(products) == 0 {
		return domain.InvalidInputf("supply record has no items")
	}

	return m.withTx(ctx, func(tx *sql.Tx) error {
		args := make([]any, 0, len(products)+1)
		args = append(args, record.PurchaseOrderID)
		for _, id := range products {
			args = append(args, id)
		}

		// Fixed product order keeps two claims over overlapping lines from
		// deadlocking each other.
		rows, err := tx.QueryContext(ctx, `
			SELECT order_id, product_id, ordered_quantity FROM purchase_order_lines
			WHERE order_id = ? AND product_id IN (`+placeholders(len(products))+`)
			ORDER BY product_id FOR UPDATE`, args...)
		if err != nil {
			return fmt.Errorf("lock order lines: %w", err)
		}
		var lines []domain.PurchaseOrderLine
		for rows.Next() {
			var line domain.PurchaseOrderLine
			if err := rows.Scan(&line.OrderID, &line.ProductID, &line.OrderedQuantity); err != nil {
				rows.Close()
				return fmt.Errorf("scan order line: %w", err)
			}
			lines = append(lines, line)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		claimedRows, err := tx.QueryContext(ctx, `
			SELECT i.product_id, SUM(i.quantity)
			FROM supply_record_items i
			JOIN supply_records r ON r.id = i.record_id
			WHERE r.purchase_order_id = ? AND r.status = ?
			  AND i.product_id IN (`+placeholders(len(products))+`)
			GROUP BY i.product_id`,
			append([]any{record.PurchaseOrderID, domain.SupplyRecordStatusActive}, args[1:]...)...)
		if err != nil {
			return fmt.Errorf("query claimed quantities: %w", err)
		}
		claimed, err := scanClaimed(claimedRows)
		claimedRows.Close()
		if err != nil {
			return err
		}

		if err := check(lines, claimed); err != nil {
			return err
		}

		var requestID sql.NullString
		if record.RequestID != "" {
			requestID = sql.NullString{String: record.RequestID, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO supply_records (id, purchase_order_id, share_code, request_id, status,
				supplier_name, supplier_contact, supplier_phone, supplier_remark, total_amount,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			record.ID, record.PurchaseOrderID, record.ShareCode, requestID, record.Status,
			record.Supplier.Name, record.Supplier.Contact, record.Supplier.Phone, record.Supplier.Remark,
			record.TotalAmount, record.CreatedAt, record.UpdatedAt,
		)
		if isDuplicateKeyErr(err) {
			return domain.ErrDuplicateRequest
		}
		if err != nil {
			return fmt.Errorf("insert supply record: %w", err)
		}

		for _, item := range record.Items {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO supply_record_items (record_id, product_id, quantity, unit_price)
				VALUES (?, ?, ?, ?)`, record.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
				return fmt.Errorf("insert supply record item: %w", err)
			}
		}
		return nil
	})
}

func touchedProducts(items []domain.SupplyRecordItem) []int64 {
	seen := make(map[int64]bool, len(items))
	products := make([]int64, 0, len(items))
	for _, item := range items {
		if !seen[item.ProductID] {
			seen[item.ProductID] = true
			products = append(products, item.ProductID)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i] < products[j] })
	return products
}

func (m *MySQLAdapter) GetSupplyRecord(ctx context.Context, recordID string) (*domain.SupplyRecord, error) {
	rec, err := scanSupplyRecord(m.db.QueryRowContext(ctx, `
		SELECT `+supplyRecordColumns+` FROM supply_records WHERE id = ?`, recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query supply record: %w", err)
	}

	items, err := m.loadItems(ctx, []string{rec.ID})
	if err != nil {
		return nil, err
	}
	rec.Items = items[rec.ID]
	return &rec, nil
}

func (m *MySQLAdapter) ListSupplyRecords(ctx context.Context, orderID int64) ([]domain.SupplyRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+supplyRecordColumns+` FROM supply_records
		WHERE purchase_order_id = ? ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query supply records: %w", err)
	}
	defer rows.Close()

	var records []domain.SupplyRecord
	var ids []string
	for rows.Next() {
		rec, err := scanSupplyRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan supply record: %w", err)
		}
		records = append(records, rec)
		ids = append(ids, rec.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	items, err := m.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Items = items[records[i].ID]
	}
	return records, nil
}

func (m *MySQLAdapter) loadItems(ctx context.Context, recordIDs []string) (map[string][]domain.SupplyRecordItem, error) {
	args := make([]any, len(recordIDs))
	for i, id := range recordIDs {
		args[i] = id
	}
	rows, err := m.db.QueryContext(ctx, `
		SELECT record_id, product_id, quantity, unit_price FROM supply_record_items
		WHERE record_id IN (`+placeholders(len(recordIDs))+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query supply record items: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]domain.SupplyRecordItem, len(recordIDs))
	for rows.Next() {
		var recordID string
		var item domain.SupplyRecordItem
		if err := rows.Scan(&recordID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan supply record item: %w", err)
		}
		items[recordID] = append(items[recordID], item)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) DisableSupplyRecord(ctx context.Context, recordID string, actor int64, now time.Time) error {
	return m.withTx(ctx, func(tx *sql.Tx) error {
		var status domain.SupplyRecordStatus
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM supply_records WHERE id = ? FOR UPDATE", recordID,
		).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrRecordNotFound
		}
		if err != nil {
			return fmt.Errorf("lock supply record: %w", err)
		}
		if status != domain.SupplyRecordStatusActive {
			return domain.ErrAlreadyDisabled
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE supply_records SET status = ?, disabled_by = ?, disabled_at = ?, updated_at = ?
			WHERE id = ?`, domain.SupplyRecordStatusDisabled, actor, now, now, recordID); err != nil {
			return fmt.Errorf("disable supply record: %w", err)
		}
		return nil
	})
}
