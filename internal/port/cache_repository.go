package port

import (
	"context"
	"time"

	"github.com/rl1809/supply-share/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key when the guarded operation did not commit
	ReleaseIdempotency(ctx context.Context, key string) error
}

// AuditSink accepts audit events without blocking the caller.
type AuditSink interface {
	Record(event domain.AuditEvent)
}

type Lock interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Obtain takes a cross-process lock, returns domain.ErrBusy when another holder has it
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}
