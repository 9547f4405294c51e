package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/port"
)

// memStore implements every storage port in memory. Its mutex plays the
// role of the row locks the MySQL adapter takes.
type memStore struct {
	mu         sync.Mutex
	orders     map[int64]domain.PurchaseOrder
	lines      map[int64][]domain.PurchaseOrderLine
	links      map[string]*domain.ShareLink
	visits     map[string]map[string]*domain.ShareAccessRecord
	records    map[string]*domain.SupplyRecord
	requestIDs map[string]bool
	audits     []domain.AuditEvent
	idem       map[string]bool
	locked     map[string]bool
	busyClaims int
	revokeErr  error
}

func newMemStore() *memStore {
	return &memStore{
		orders:     make(map[int64]domain.PurchaseOrder),
		lines:      make(map[int64][]domain.PurchaseOrderLine),
		links:      make(map[string]*domain.ShareLink),
		visits:     make(map[string]map[string]*domain.ShareAccessRecord),
		records:    make(map[string]*domain.SupplyRecord),
		requestIDs: make(map[string]bool),
		idem:       make(map[string]bool),
		locked:     make(map[string]bool),
	}
}

func (m *memStore) addOrder(id, owner int64, lines map[int64]int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[id] = domain.PurchaseOrder{ID: id, OwnerID: owner, Status: domain.PurchaseOrderStatusConfirmed}
	for productID, qty := range lines {
		m.lines[id] = append(m.lines[id], domain.PurchaseOrderLine{OrderID: id, ProductID: productID, OrderedQuantity: qty})
	}
}

func (m *memStore) GetPurchaseOrder(ctx context.Context, orderID int64) (*domain.PurchaseOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[orderID]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (m *memStore) GetPurchaseOrderLines(ctx context.Context, orderID int64) ([]domain.PurchaseOrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PurchaseOrderLine(nil), m.lines[orderID]...), nil
}

func (m *memStore) CreateShareLink(ctx context.Context, link domain.ShareLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[link.ShareCode]; exists {
		return domain.ErrDuplicateRequest
	}
	m.links[link.ShareCode] = &link
	return nil
}

func (m *memStore) GetShareLink(ctx context.Context, shareCode string) (*domain.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[shareCode]
	if !ok {
		return nil, nil
	}
	copied := *link
	return &copied, nil
}

func (m *memStore) ListShareLinks(ctx context.Context, orderID int64) ([]domain.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ShareLink
	for _, link := range m.links {
		if link.PurchaseOrderID == orderID {
			out = append(out, *link)
		}
	}
	return out, nil
}

func (m *memStore) RevokeShareLink(ctx context.Context, shareCode string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.revokeErr != nil {
		return false, m.revokeErr
	}
	link, ok := m.links[shareCode]
	if !ok || link.Status != domain.ShareLinkStatusActive {
		return false, nil
	}
	link.Status = domain.ShareLinkStatusRevoked
	link.UpdatedAt = now
	return true, nil
}

func (m *memStore) RecordVisit(ctx context.Context, shareCode, fingerprint string, now time.Time) (domain.VisitOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[shareCode]
	if !ok {
		return domain.VisitOutcome{Reason: domain.ErrLinkNotFound}, nil
	}
	if err := link.CheckAccess(now); err != nil {
		return domain.VisitOutcome{Reason: err, Link: *link}, nil
	}

	visitors := m.visits[shareCode]
	if visitors == nil {
		visitors = make(map[string]*domain.ShareAccessRecord)
		m.visits[shareCode] = visitors
	}

	if rec, ok := visitors[fingerprint]; ok {
		rec.AccessCount++
		rec.LastSeenAt = now
		link.AccessCount++
		return domain.VisitOutcome{Admitted: true, Link: *link}, nil
	}

	if link.HasAccessLimit() && link.UniqueUserCount >= link.AccessLimit {
		return domain.VisitOutcome{Reason: domain.ErrAccessLimitReached, Link: *link}, nil
	}
	visitors[fingerprint] = &domain.ShareAccessRecord{
		ShareCode:   shareCode,
		Fingerprint: fingerprint,
		FirstSeenAt: now,
		LastSeenAt:  now,
		AccessCount: 1,
	}
	link.AccessCount++
	link.UniqueUserCount++
	return domain.VisitOutcome{Admitted: true, Link: *link}, nil
}

func (m *memStore) ListAccessRecords(ctx context.Context, shareCode string) ([]domain.ShareAccessRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.ShareAccessRecord
	for _, rec := range m.visits[shareCode] {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *memStore) ExpireShareLinks(ctx context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var codes []string
	for code, link := range m.links {
		if link.Status == domain.ShareLinkStatusActive && !now.Before(link.ExpiresAt) {
			link.Status = domain.ShareLinkStatusExpired
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (m *memStore) claimedLocked(orderID int64) map[int64]int64 {
	claimed := make(map[int64]int64)
	for _, rec := range m.records {
		if rec.PurchaseOrderID != orderID || !rec.IsActive() {
			continue
		}
		for _, item := range rec.Items {
			claimed[item.ProductID] += item.Quantity
		}
	}
	return claimed
}

func (m *memStore) ClaimedQuantities(ctx context.Context, orderID int64) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.claimedLocked(orderID), nil
}

func (m *memStore) CreateSupplyRecord(ctx context.Context, record domain.SupplyRecord, check port.AdmissionCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busyClaims > 0 {
		m.busyClaims--
		return domain.ErrBusy
	}
	if err := check(m.lines[record.PurchaseOrderID], m.claimedLocked(record.PurchaseOrderID)); err != nil {
		return err
	}
	if record.RequestID != "" {
		key := record.ShareCode + ":" + record.RequestID
		if m.requestIDs[key] {
			return domain.ErrDuplicateRequest
		}
		m.requestIDs[key] = true
	}
	record.Items = append([]domain.SupplyRecordItem(nil), record.Items...)
	m.records[record.ID] = &record
	return nil
}

func (m *memStore) GetSupplyRecord(ctx context.Context, recordID string) (*domain.SupplyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (m *memStore) ListSupplyRecords(ctx context.Context, orderID int64) ([]domain.SupplyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SupplyRecord
	for _, rec := range m.records {
		if rec.PurchaseOrderID == orderID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (m *memStore) DisableSupplyRecord(ctx context.Context, recordID string, actor int64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[recordID]
	if !ok {
		return domain.ErrRecordNotFound
	}
	if !rec.IsActive() {
		return domain.ErrAlreadyDisabled
	}
	rec.Status = domain.SupplyRecordStatusDisabled
	rec.DisabledBy = actor
	rec.DisabledAt = &now
	rec.UpdatedAt = now
	return nil
}

func (m *memStore) SaveAuditEvent(ctx context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, event)
	return nil
}

func (m *memStore) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idem[key] {
		return false, nil
	}
	m.idem[key] = true
	return true, nil
}

func (m *memStore) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idem, key)
	return nil
}

type memLock struct {
	store *memStore
	key   string
}

func (l *memLock) Release(ctx context.Context) error {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	delete(l.store.locked, l.key)
	return nil
}

func (m *memStore) Obtain(ctx context.Context, key string, ttl time.Duration) (port.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locked[key] {
		return nil, domain.ErrBusy
	}
	m.locked[key] = true
	return &memLock{store: m, key: key}, nil
}

// recordingSink captures audit events synchronously.
type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingSink) Record(event domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []domain.AuditEventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.AuditEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingSink) count(t domain.AuditEventType) int {
	n := 0
	for _, got := range r.types() {
		if got == t {
			n++
		}
	}
	return n
}

type testEnv struct {
	store     *memStore
	audit     *recordingSink
	registry  *ShareLinkService
	tracker   *VisitorTracker
	gateway   *AccessGateway
	validator *QuantityValidator
	records   *SupplyRecordService
}

const (
	testOwner   int64 = 7
	testOrderID int64 = 1001
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	audit := &recordingSink{}
	log := quietLogger()

	registry := NewShareLinkService(store, store, audit, log, ShareLinkOptions{
		DefaultTTL:        time.Hour,
		MaxTTL:            24 * time.Hour,
		ExtractCodeLength: 6,
		BcryptCost:        bcrypt.MinCost,
	})
	tracker := NewVisitorTracker(store, log)
	gateway := NewAccessGateway(registry, tracker, audit, log, time.Second)
	validator := NewQuantityValidator(store, store)
	records := NewSupplyRecordService(gateway, validator, store, store, store, audit, log, time.Second)

	return &testEnv{
		store:     store,
		audit:     audit,
		registry:  registry,
		tracker:   tracker,
		gateway:   gateway,
		validator: validator,
		records:   records,
	}
}

func (e *testEnv) createLink(t *testing.T, in CreateShareLinkInput) CreatedShareLink {
	t.Helper()

	if in.PurchaseOrderID == 0 {
		in.PurchaseOrderID = testOrderID
	}
	if in.Actor == 0 {
		in.Actor = testOwner
	}
	created, err := e.registry.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("create share link: %v", err)
	}
	return created
}

func (e *testEnv) setClock(now time.Time) {
	clock := func() time.Time { return now }
	e.registry.now = clock
	e.gateway.now = clock
	e.records.now = clock
}
