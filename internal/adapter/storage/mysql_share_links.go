package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/supply-share/internal/core/domain"
)

const expireBatchSize = 500

const shareLinkColumns = `share_code, extract_code_hash, purchase_order_id, status, expires_at,
	access_limit, access_count, unique_user_count, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShareLink(row rowScanner) (domain.ShareLink, error) {
	var link domain.ShareLink
	err := row.Scan(&link.ShareCode, &link.ExtractCodeHash, &link.PurchaseOrderID, &link.Status, &link.ExpiresAt,
		&link.AccessLimit, &link.AccessCount, &link.UniqueUserCount, &link.CreatedBy, &link.CreatedAt, &link.UpdatedAt)
	return link, err
}

func (m *MySQLAdapter) CreateShareLink(ctx context.Context, link domain.ShareLink) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO share_links (`+shareLinkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.ShareCode, link.ExtractCodeHash, link.PurchaseOrderID, link.Status, link.ExpiresAt,
		link.AccessLimit, link.AccessCount, link.UniqueUserCount, link.CreatedBy, link.CreatedAt, link.UpdatedAt,
	)
	if isDuplicateKeyErr(err) {
		return domain.ErrDuplicateRequest
	}
	if err != nil {
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetShareLink(ctx context.Context, shareCode string) (*domain.ShareLink, error) {
	link, err := scanShareLink(m.db.QueryRowContext(ctx, `
		SELECT `+shareLinkColumns+` FROM share_links WHERE share_code = ?`, shareCode))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query share link: %w", err)
	}
	return &link, nil
}

func (m *MySQLAdapter) ListShareLinks(ctx context.Context, orderID int64) ([]domain.ShareLink, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT `+shareLinkColumns+` FROM share_links
		WHERE purchase_order_id = ? ORDER BY created_at DESC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query share links: %w", err)
	}
	defer rows.Close()

	var links []domain.ShareLink
	for rows.Next() {
		link, err := scanShareLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan share link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (m *MySQLAdapter) RevokeShareLink(ctx context.Context, shareCode string, now time.Time) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE share_links SET status = ?, updated_at = ?
		WHERE share_code = ? AND status = ?`,
		domain.ShareLinkStatusRevoked, now, shareCode, domain.ShareLinkStatusActive,
	)
	if err != nil {
		return false, fmt.Errorf("revoke share link: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke share link rows affected: %w", err)
	}
	return rows > 0, nil
}

func (m *MySQLAdapter) RecordVisit(ctx context.Context, shareCode, fingerprint string, now time.Time) (domain.VisitOutcome, error) {
	var outcome domain.VisitOutcome

	err := m.withTx(ctx, func(tx *sql.Tx) error {
		link, err := scanShareLink(tx.QueryRowContext(ctx, `
			SELECT `+shareLinkColumns+` FROM share_links WHERE share_code = ? FOR UPDATE`, shareCode))
		if errors.Is(err, sql.ErrNoRows) {
			outcome = domain.VisitOutcome{Reason: domain.ErrLinkNotFound}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock share link: %w", err)
		}
		if err := link.CheckAccess(now); err != nil {
			outcome = domain.VisitOutcome{Reason: err, Link: link}
			return nil
		}

		var visits int64
		err = tx.QueryRowContext(ctx, `
			SELECT access_count FROM share_access_records
			WHERE share_code = ? AND fingerprint = ?`, shareCode, fingerprint,
		).Scan(&visits)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, `
				UPDATE share_access_records SET access_count = access_count + 1, last_seen_at = ?
				WHERE share_code = ? AND fingerprint = ?`, now, shareCode, fingerprint); err != nil {
				return fmt.Errorf("update access record: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE share_links SET access_count = access_count + 1, updated_at = ?
				WHERE share_code = ?`, now, shareCode); err != nil {
				return fmt.Errorf("update share link counters: %w", err)
			}
			link.AccessCount++

		case errors.Is(err, sql.ErrNoRows):
			if link.HasAccessLimit() && link.UniqueUserCount >= link.AccessLimit {
				outcome = domain.VisitOutcome{Reason: domain.ErrAccessLimitReached, Link: link}
				return nil
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO share_access_records (share_code, fingerprint, first_seen_at, last_seen_at, access_count)
				VALUES (?, ?, ?, ?, 1)`, shareCode, fingerprint, now, now); err != nil {
				return fmt.Errorf("insert access record: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE share_links
				SET access_count = access_count + 1, unique_user_count = unique_user_count + 1, updated_at = ?
				WHERE share_code = ?`, now, shareCode); err != nil {
				return fmt.Errorf("update share link counters: %w", err)
			}
			link.AccessCount++
			link.UniqueUserCount++

		default:
			return fmt.Errorf("query access record: %w", err)
		}

		link.UpdatedAt = now
		outcome = domain.VisitOutcome{Admitted: true, Link: link}
		return nil
	})
	if err != nil {
		return domain.VisitOutcome{}, err
	}
	return outcome, nil
}

func (m *MySQLAdapter) ListAccessRecords(ctx context.Context, shareCode string) ([]domain.ShareAccessRecord, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT share_code, fingerprint, first_seen_at, last_seen_at, access_count
		FROM share_access_records WHERE share_code = ? ORDER BY first_seen_at`, shareCode)
	if err != nil {
		return nil, fmt.Errorf("query access records: %w", err)
	}
	defer rows.Close()

	var records []domain.ShareAccessRecord
	for rows.Next() {
		var rec domain.ShareAccessRecord
		if err := rows.Scan(&rec.ShareCode, &rec.Fingerprint, &rec.FirstSeenAt, &rec.LastSeenAt, &rec.AccessCount); err != nil {
			return nil, fmt.Errorf("scan access record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *MySQLAdapter) ExpireShareLinks(ctx context.Context, now time.Time) ([]string, error) {
	var codes []string

	err := m.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT share_code FROM share_links
			WHERE status = ? AND expires_at <= ?
			ORDER BY share_code LIMIT ? FOR UPDATE SKIP LOCKED`,
			domain.ShareLinkStatusActive, now, expireBatchSize)
		if err != nil {
			return fmt.Errorf("query overdue links: %w", err)
		}
		for rows.Next() {
			var code string
			if err := rows.Scan(&code); err != nil {
				rows.Close()
				return fmt.Errorf("scan overdue link: %w", err)
			}
			codes = append(codes, code)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}

		args := make([]any, 0, len(codes)+2)
		args = append(args, domain.ShareLinkStatusExpired, now)
		for _, code := range codes {
			args = append(args, code)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE share_links SET status = ?, updated_at = ?
			WHERE share_code IN (`+placeholders(len(codes))+`)`, args...); err != nil {
			return fmt.Errorf("expire links: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
