package handler

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/supply-share/internal/core/domain"
)

func startGRPC(t *testing.T, stub *stubServices) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterShareServiceServer(srv, NewGRPCHandler(stub, stub, stub, supplyRecords{stub}))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(JSONCodecName)),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func invoke(t *testing.T, conn *grpc.ClientConn, method string, req, resp any) error {
	t.Helper()
	return conn.Invoke(context.Background(), "/"+shareServiceName+"/"+method, req, resp)
}

func TestGRPC_CreateShareLink(t *testing.T) {
	stub := &stubServices{}
	conn := startGRPC(t, stub)

	var resp CreateShareLinkResponse
	err := invoke(t, conn, "CreateShareLink", &CreateShareLinkRequest{PurchaseOrderID: 1001, ActorID: 7, UseExtractCode: true}, &resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.ShareCode != "CODE123" || resp.ExtractCode != "ABC234" {
		t.Errorf("unexpected response %+v", resp)
	}
	if stub.lastCreate.Actor != 7 {
		t.Errorf("expected actor 7, got %d", stub.lastCreate.Actor)
	}
}

func TestGRPC_VerifyDeniedIsAnOutcome(t *testing.T) {
	conn := startGRPC(t, &stubServices{verifyErr: domain.ErrAccessLimitReached})

	var resp VerifyShareAccessResponse
	if err := invoke(t, conn, "VerifyShareAccess", &VerifyShareAccessRequest{ShareCode: "CODE123", Fingerprint: "fp"}, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || resp.Reason != "access_limit_reached" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGRPC_BusyIsUnavailable(t *testing.T) {
	conn := startGRPC(t, &stubServices{verifyErr: domain.ErrBusy})

	var resp VerifyShareAccessResponse
	err := invoke(t, conn, "VerifyShareAccess", &VerifyShareAccessRequest{ShareCode: "CODE123", Fingerprint: "fp"}, &resp)
	if status.Code(err) != codes.Unavailable {
		t.Errorf("expected Unavailable, got %v", err)
	}
}

func TestGRPC_InvalidInput(t *testing.T) {
	conn := startGRPC(t, &stubServices{submitErr: domain.InvalidInputf("items must not be empty")})

	var resp SubmitSupplyRecordResponse
	err := invoke(t, conn, "SubmitSupplyRecord", &SubmitSupplyRecordRequest{PurchaseOrderID: 1001, ShareCode: "CODE123"}, &resp)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("expected InvalidArgument, got %v", err)
	}
}

func TestGRPC_SubmitSupplyRecord(t *testing.T) {
	stub := &stubServices{}
	conn := startGRPC(t, stub)

	req := &SubmitSupplyRecordRequest{
		PurchaseOrderID: 1001,
		ShareCode:       "CODE123",
		Fingerprint:     "fp",
		Supplier:        domain.SupplierInfo{Name: "Acme"},
		Items:           []SupplyItem{{ProductID: 1, Quantity: 4, UnitPrice: decimal.RequireFromString("1.25")}},
	}
	var resp SubmitSupplyRecordResponse
	if err := invoke(t, conn, "SubmitSupplyRecord", req, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.RecordID != "rec-1" || !resp.TotalAmount.Equal(decimal.NewFromInt(5)) {
		t.Errorf("unexpected response %+v", resp)
	}

	stub.mu.Lock()
	stub.submitErr = &domain.InsufficientQuantityError{ProductID: 1, Requested: 4, Available: 1}
	stub.mu.Unlock()
	resp = SubmitSupplyRecordResponse{}
	if err := invoke(t, conn, "SubmitSupplyRecord", req, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || resp.Reason != "insufficient_quantity" || resp.Available != 1 || resp.Requested != 4 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGRPC_GetAvailableQuantities(t *testing.T) {
	stub := &stubServices{availability: []domain.QuantityAvailability{{ProductID: 1, OrderedQuantity: 10, AvailableQuantity: 10}}}
	conn := startGRPC(t, stub)

	var resp GetAvailableQuantitiesResponse
	if err := invoke(t, conn, "GetAvailableQuantities", &VerifyShareAccessRequest{ShareCode: "CODE123", Fingerprint: "fp"}, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.OK || resp.PurchaseOrderID != 1001 || len(resp.Availability) != 1 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestGRPC_DisableSupplyRecord(t *testing.T) {
	stub := &stubServices{disableErr: domain.ErrRecordNotFound}
	conn := startGRPC(t, stub)

	var resp DisableSupplyRecordResponse
	if err := invoke(t, conn, "DisableSupplyRecord", &DisableSupplyRecordRequest{RecordID: "rec-x", ActorID: 7}, &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OK || resp.Reason != "not_found" {
		t.Errorf("unexpected response %+v", resp)
	}

	stub.mu.Lock()
	stub.disableErr = errors.New("db down")
	stub.mu.Unlock()
	err := invoke(t, conn, "DisableSupplyRecord", &DisableSupplyRecordRequest{RecordID: "rec-x", ActorID: 7}, &resp)
	if status.Code(err) != codes.Internal {
		t.Errorf("expected Internal, got %v", err)
	}
}
