package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/supply-share/internal/core/domain"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateEntry  = 1062
)

//go:embed schema.sql
var schemaSQL string

// MySQLAdapter holds the authoritative state. Every read-then-write runs in
// a READ COMMITTED transaction behind SELECT ... FOR UPDATE on the rows that
// scope it: the share link row for visits, the touched order lines for claims.
type MySQLAdapter struct {
	db       *sql.DB
	lockWait time.Duration
}

func NewMySQLAdapter(db *sql.DB, lockWait time.Duration) *MySQLAdapter {
	return &MySQLAdapter{db: db, lockWait: lockWait}
}

// EnsureSchema creates missing tables.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapLockError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	// InnoDB takes whole seconds, minimum 1
	if m.lockWait > 0 {
		secs := int(m.lockWait.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET SESSION innodb_lock_wait_timeout = %d", secs)); err != nil {
			return mapLockError(fmt.Errorf("set lock wait timeout: %w", err))
		}
	}

	if err := fn(tx); err != nil {
		return mapLockError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapLockError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapLockError turns lock contention into domain.ErrBusy and leaves every
// other error as is.
func mapLockError(err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && (mysqlErr.Number == errLockWaitTimeout || mysqlErr.Number == errDeadlock) {
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrBusy) {
		return fmt.Errorf("%w: %w", domain.ErrBusy, err)
	}
	return err
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == errDuplicateEntry
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
