package handler

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/core/service"
)

const shareServiceName = "supplyshare.ShareService"

type CreateShareLinkRequest struct {
	PurchaseOrderID  int64 `json:"purchase_order_id"`
	ActorID          int64 `json:"actor_id"`
	ExpiresInSeconds int64 `json:"expires_in_seconds"`
	AccessLimit      int64 `json:"access_limit"`
	UseExtractCode   bool  `json:"use_extract_code"`
}

type CreateShareLinkResponse struct {
	OK          bool      `json:"ok"`
	Reason      string    `json:"reason,omitempty"`
	ShareCode   string    `json:"share_code,omitempty"`
	ExtractCode string    `json:"extract_code,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

type VerifyShareAccessRequest struct {
	ShareCode   string `json:"share_code"`
	ExtractCode string `json:"extract_code"`
	Fingerprint string `json:"fingerprint"`
}

type VerifyShareAccessResponse struct {
	OK              bool   `json:"ok"`
	Reason          string `json:"reason,omitempty"`
	PurchaseOrderID int64  `json:"purchase_order_id,omitempty"`
}

type GetAvailableQuantitiesResponse struct {
	OK              bool                          `json:"ok"`
	Reason          string                        `json:"reason,omitempty"`
	PurchaseOrderID int64                         `json:"purchase_order_id,omitempty"`
	Availability    []domain.QuantityAvailability `json:"availability,omitempty"`
}

type SupplyItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SubmitSupplyRecordRequest struct {
	PurchaseOrderID int64               `json:"purchase_order_id"`
	ShareCode       string              `json:"share_code"`
	ExtractCode     string              `json:"extract_code"`
	Fingerprint     string              `json:"fingerprint"`
	RequestID       string              `json:"request_id"`
	Supplier        domain.SupplierInfo `json:"supplier"`
	Items           []SupplyItem        `json:"items"`
}

type SubmitSupplyRecordResponse struct {
	OK          bool            `json:"ok"`
	Reason      string          `json:"reason,omitempty"`
	RecordID    string          `json:"record_id,omitempty"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ProductID   int64           `json:"product_id,omitempty"`
	Requested   int64           `json:"requested,omitempty"`
	Available   int64           `json:"available,omitempty"`
}

type DisableSupplyRecordRequest struct {
	RecordID string `json:"record_id"`
	ActorID  int64  `json:"actor_id"`
}

type DisableSupplyRecordResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

type ShareServiceServer interface {
	CreateShareLink(context.Context, *CreateShareLinkRequest) (*CreateShareLinkResponse, error)
	VerifyShareAccess(context.Context, *VerifyShareAccessRequest) (*VerifyShareAccessResponse, error)
	GetAvailableQuantities(context.Context, *VerifyShareAccessRequest) (*GetAvailableQuantitiesResponse, error)
	SubmitSupplyRecord(context.Context, *SubmitSupplyRecordRequest) (*SubmitSupplyRecordResponse, error)
	DisableSupplyRecord(context.Context, *DisableSupplyRecordRequest) (*DisableSupplyRecordResponse, error)
}

// GRPCHandler serves the share flow to internal callers. Denials and
// business rejections come back as ok=false with a reason; only bad input,
// contention and internal faults are gRPC errors.
type GRPCHandler struct {
	links      ShareLinkManager
	gateway    AccessVerifier
	quantities AvailabilityReader
	records    SupplyRecordManager
}

func NewGRPCHandler(links ShareLinkManager, gateway AccessVerifier, quantities AvailabilityReader, records SupplyRecordManager) *GRPCHandler {
	return &GRPCHandler{
		links:      links,
		gateway:    gateway,
		quantities: quantities,
		records:    records,
	}
}

func (h *GRPCHandler) CreateShareLink(ctx context.Context, req *CreateShareLinkRequest) (*CreateShareLinkResponse, error) {
	created, err := h.links.Create(ctx, service.CreateShareLinkInput{
		PurchaseOrderID:  req.PurchaseOrderID,
		Actor:            req.ActorID,
		ExpiresInSeconds: req.ExpiresInSeconds,
		AccessLimit:      req.AccessLimit,
		UseExtractCode:   req.UseExtractCode,
	})
	if err != nil {
		if reason, ok := outcomeReason(err); ok {
			return &CreateShareLinkResponse{Reason: reason}, nil
		}
		return nil, grpcError(err)
	}

	return &CreateShareLinkResponse{
		OK:          true,
		ShareCode:   created.Link.ShareCode,
		ExtractCode: created.ExtractCode,
		ExpiresAt:   created.Link.ExpiresAt,
	}, nil
}

func (h *GRPCHandler) VerifyShareAccess(ctx context.Context, req *VerifyShareAccessRequest) (*VerifyShareAccessResponse, error) {
	result, err := h.gateway.Verify(ctx, verifyInput(req))
	if err != nil {
		if reason, ok := outcomeReason(err); ok {
			return &VerifyShareAccessResponse{Reason: reason}, nil
		}
		return nil, grpcError(err)
	}
	return &VerifyShareAccessResponse{OK: true, PurchaseOrderID: result.PurchaseOrderID}, nil
}

func (h *GRPCHandler) GetAvailableQuantities(ctx context.Context, req *VerifyShareAccessRequest) (*GetAvailableQuantitiesResponse, error) {
	result, err := h.gateway.Verify(ctx, verifyInput(req))
	if err != nil {
		if reason, ok := outcomeReason(err); ok {
			return &GetAvailableQuantitiesResponse{Reason: reason}, nil
		}
		return nil, grpcError(err)
	}

	rows, err := h.quantities.AvailableQuantities(ctx, result.PurchaseOrderID)
	if err != nil {
		return nil, grpcError(err)
	}
	return &GetAvailableQuantitiesResponse{
		OK:              true,
		PurchaseOrderID: result.PurchaseOrderID,
		Availability:    rows,
	}, nil
}

func (h *GRPCHandler) SubmitSupplyRecord(ctx context.Context, req *SubmitSupplyRecordRequest) (*SubmitSupplyRecordResponse, error) {
	items := make([]service.SubmitItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SubmitItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	record, err := h.records.Submit(ctx, service.SubmitInput{
		PurchaseOrderID: req.PurchaseOrderID,
		ShareCode:       req.ShareCode,
		ExtractCode:     req.ExtractCode,
		Fingerprint:     req.Fingerprint,
		RequestID:       req.RequestID,
		Supplier:        req.Supplier,
		Items:           items,
	})
	if err != nil {
		reason, ok := outcomeReason(err)
		if !ok {
			return nil, grpcError(err)
		}
		resp := &SubmitSupplyRecordResponse{Reason: reason}
		var insufficient *domain.InsufficientQuantityError
		if errors.As(err, &insufficient) {
			resp.ProductID = insufficient.ProductID
			resp.Requested = insufficient.Requested
			resp.Available = insufficient.Available
		}
		return resp, nil
	}

	return &SubmitSupplyRecordResponse{
		OK:          true,
		RecordID:    record.ID,
		TotalAmount: record.TotalAmount,
	}, nil
}

func (h *GRPCHandler) DisableSupplyRecord(ctx context.Context, req *DisableSupplyRecordRequest) (*DisableSupplyRecordResponse, error) {
	if err := h.records.Disable(ctx, req.RecordID, req.ActorID); err != nil {
		if reason, ok := outcomeReason(err); ok {
			return &DisableSupplyRecordResponse{Reason: reason}, nil
		}
		return nil, grpcError(err)
	}
	return &DisableSupplyRecordResponse{OK: true}, nil
}

func verifyInput(req *VerifyShareAccessRequest) service.VerifyInput {
	return service.VerifyInput{
		ShareCode:   req.ShareCode,
		ExtractCode: req.ExtractCode,
		Fingerprint: req.Fingerprint,
	}
}

// outcomeReason reports whether err is a decision the caller should see in
// the response body rather than as a transport error.
func outcomeReason(err error) (string, bool) {
	switch domain.KindOf(err) {
	case domain.KindDenied, domain.KindRejected:
		return domain.Reason(err), true
	default:
		return "", false
	}
}

func grpcError(err error) error {
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		return status.Error(codes.InvalidArgument, err.Error())
	case domain.KindBusy:
		return status.Error(codes.Unavailable, domain.Reason(err))
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func RegisterShareServiceServer(s grpc.ServiceRegistrar, srv ShareServiceServer) {
	s.RegisterService(&ShareServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(ShareServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ShareServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + shareServiceName + "/" + method,
			}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(ShareServiceServer), ctx, req.(*Req))
			})
		},
	}
}

// ShareServiceDesc is written by hand; messages travel through the JSON codec.
var ShareServiceDesc = grpc.ServiceDesc{
	ServiceName: shareServiceName,
	HandlerType: (*ShareServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("CreateShareLink", ShareServiceServer.CreateShareLink),
		unaryHandler("VerifyShareAccess", ShareServiceServer.VerifyShareAccess),
		unaryHandler("GetAvailableQuantities", ShareServiceServer.GetAvailableQuantities),
		unaryHandler("SubmitSupplyRecord", ShareServiceServer.SubmitSupplyRecord),
		unaryHandler("DisableSupplyRecord", ShareServiceServer.DisableSupplyRecord),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "supplyshare/share_service",
}
