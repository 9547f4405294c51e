package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

const auditWriteTimeout = 5 * time.Second

// AuditDispatcher queues audit events and writes them from a worker pool.
// Record never blocks: when the queue is full the event is dropped and logged.
type AuditDispatcher struct {
	repo    port.AuditRepository
	log     logrus.FieldLogger
	queue   chan domain.AuditEvent
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewAuditDispatcher(repo port.AuditRepository, queueSize int, log logrus.FieldLogger) *AuditDispatcher {
	return &AuditDispatcher{
		repo:  repo,
		log:   log,
		queue: make(chan domain.AuditEvent, queueSize),
	}
}

func (d *AuditDispatcher) Start(workers int) {
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
}

func (d *AuditDispatcher) Record(event domain.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.log.WithFields(logrus.Fields{
			"event_type": event.Type,
			"share_code": event.ShareCode,
		}).Warn("audit queue full, event dropped")
	}
}

func (d *AuditDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain.
func (d *AuditDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *AuditDispatcher) workerLoop(id int) {
	for event := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		if err := d.repo.SaveAuditEvent(ctx, event); err != nil {
			d.log.WithFields(logrus.Fields{
				"worker":     id,
				"event_id":   event.ID,
				"event_type": event.Type,
			}).WithError(err).Error("failed to save audit event")
		}
		cancel()
	}
}

type discardAudit struct{}

func (discardAudit) Record(domain.AuditEvent) {}

func auditOrDiscard(sink port.AuditSink) port.AuditSink {
	if sink == nil {
		return discardAudit{}
	}
	return sink
}
