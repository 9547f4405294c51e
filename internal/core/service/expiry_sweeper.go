package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

const sweepLockKey = "lock:share-link-expiry-sweep"

// ExpirySweeper moves overdue links to the expired status. Access checks
// compare expiresAt directly, so the sweep only keeps stored status honest
// for listings; one instance sweeps at a time.
type ExpirySweeper struct {
	links    port.ShareLinkRepository
	locker   port.Locker
	audit    port.AuditSink
	log      logrus.FieldLogger
	interval time.Duration
	now      func() time.Time
}

func NewExpirySweeper(links port.ShareLinkRepository, locker port.Locker, audit port.AuditSink, log logrus.FieldLogger, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		links:    links,
		locker:   locker,
		audit:    auditOrDiscard(audit),
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

func (s *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil && !errors.Is(err, domain.ErrBusy) {
				s.log.WithError(err).Error("share link sweep failed")
			}
		}
	}
}

// Sweep returns the number of links it expired. It returns domain.ErrBusy
// when another instance holds the sweep lock.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	if s.locker != nil {
		lock, err := s.locker.Obtain(ctx, sweepLockKey, s.interval)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.log.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	now := s.now().UTC()
	codes, err := s.links.ExpireShareLinks(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("expire share links: %w", err)
	}
	for _, code := range codes {
		s.audit.Record(domain.AuditEvent{
			Type:       domain.AuditShareLinkExpired,
			ShareCode:  code,
			OccurredAt: now,
		})
	}
	if len(codes) > 0 {
		s.log.WithField("count", len(codes)).Info("share links expired")
	}
	return len(codes), nil
}
