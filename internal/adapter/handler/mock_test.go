package handler

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/core/service"
)

// stubServices answers every handler dependency with canned results and
// remembers the last inputs it saw.
type stubServices struct {
	mu sync.Mutex

	createErr  error
	verifyErr  error
	submitErr  error
	disableErr error
	listErr    error

	lastCreate service.CreateShareLinkInput
	lastVerify service.VerifyInput
	lastSubmit service.SubmitInput
	lastActor  int64

	availability []domain.QuantityAvailability
	records      []domain.SupplyRecord
}

func (s *stubServices) Create(ctx context.Context, in service.CreateShareLinkInput) (service.CreatedShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCreate = in
	if s.createErr != nil {
		return service.CreatedShareLink{}, s.createErr
	}
	return service.CreatedShareLink{
		Link: domain.ShareLink{
			ShareCode:       "CODE123",
			ExtractCodeHash: "hash",
			PurchaseOrderID: in.PurchaseOrderID,
			Status:          domain.ShareLinkStatusActive,
			AccessLimit:     in.AccessLimit,
		},
		ExtractCode: "ABC234",
	}, nil
}

func (s *stubServices) Revoke(ctx context.Context, shareCode string, actor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	return s.listErr
}

func (s *stubServices) ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.ShareLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	if s.listErr != nil {
		return nil, s.listErr
	}
	expires := time.Now().Add(time.Hour)
	return []domain.ShareLink{
		{ShareCode: "CODE123", PurchaseOrderID: orderID, Status: domain.ShareLinkStatusActive, ExpiresAt: expires},
		{ShareCode: "FULL456", PurchaseOrderID: orderID, Status: domain.ShareLinkStatusActive, ExpiresAt: expires, AccessLimit: 2, UniqueUserCount: 2},
	}, nil
}

func (s *stubServices) AccessRecords(ctx context.Context, shareCode string, actor int64) ([]domain.ShareAccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []domain.ShareAccessRecord{{ShareCode: shareCode, Fingerprint: "fp", AccessCount: 2}}, nil
}

func (s *stubServices) Verify(ctx context.Context, in service.VerifyInput) (service.VerifyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastVerify = in
	if s.verifyErr != nil {
		return service.VerifyResult{}, s.verifyErr
	}
	return service.VerifyResult{PurchaseOrderID: 1001}, nil
}

func (s *stubServices) AvailableQuantities(ctx context.Context, orderID int64) ([]domain.QuantityAvailability, error) {
	return s.availability, nil
}

func (s *stubServices) OwnerAvailability(ctx context.Context, orderID, actor int64) ([]domain.QuantityAvailability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.availability, nil
}

func (s *stubServices) Submit(ctx context.Context, in service.SubmitInput) (domain.SupplyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSubmit = in
	if s.submitErr != nil {
		return domain.SupplyRecord{}, s.submitErr
	}
	items := make([]domain.SupplyRecordItem, 0, len(in.Items))
	for _, item := range in.Items {
		items = append(items, domain.SupplyRecordItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: item.UnitPrice})
	}
	return domain.SupplyRecord{ID: "rec-1", PurchaseOrderID: in.PurchaseOrderID, Items: items, TotalAmount: domain.SumAmount(items)}, nil
}

func (s *stubServices) Disable(ctx context.Context, recordID string, actor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	return s.disableErr
}

// supplyRecords adapts the stub to SupplyRecordManager, whose ListForOrder
// returns records rather than links.
type supplyRecords struct{ *stubServices }

func (s supplyRecords) ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.SupplyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActor = actor
	return s.records, s.listErr
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
