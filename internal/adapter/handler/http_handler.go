package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rl1809/supply-share/internal/core/domain"
	"github.com/rl1809/supply-share/internal/core/service"
)

const (
	userIDHeader      = "X-User-ID"
	extractCodeHeader = "X-Extract-Code"
)

type ShareLinkManager interface {
	Create(ctx context.Context, in service.CreateShareLinkInput) (service.CreatedShareLink, error)
	Revoke(ctx context.Context, shareCode string, actor int64) error
	ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.ShareLink, error)
	AccessRecords(ctx context.Context, shareCode string, actor int64) ([]domain.ShareAccessRecord, error)
}

type AccessVerifier interface {
	Verify(ctx context.Context, in service.VerifyInput) (service.VerifyResult, error)
}

type AvailabilityReader interface {
	AvailableQuantities(ctx context.Context, orderID int64) ([]domain.QuantityAvailability, error)
	OwnerAvailability(ctx context.Context, orderID, actor int64) ([]domain.QuantityAvailability, error)
}

type SupplyRecordManager interface {
	Submit(ctx context.Context, in service.SubmitInput) (domain.SupplyRecord, error)
	Disable(ctx context.Context, recordID string, actor int64) error
	ListForOrder(ctx context.Context, orderID, actor int64) ([]domain.SupplyRecord, error)
}

type HTTPHandler struct {
	links      ShareLinkManager
	gateway    AccessVerifier
	quantities AvailabilityReader
	records    SupplyRecordManager
	log        logrus.FieldLogger
}

func NewHTTPHandler(links ShareLinkManager, gateway AccessVerifier, quantities AvailabilityReader, records SupplyRecordManager, log logrus.FieldLogger) *HTTPHandler {
	return &HTTPHandler{
		links:      links,
		gateway:    gateway,
		quantities: quantities,
		records:    records,
		log:        log,
	}
}

type CreateShareLinkHTTPRequest struct {
	ExpiresInSeconds int64 `json:"expires_in_seconds" binding:"gte=0"`
	AccessLimit      int64 `json:"access_limit" binding:"gte=0"`
	UseExtractCode   bool  `json:"use_extract_code"`
}

type ShareLinkHTTPResponse struct {
	ShareCode       string    `json:"share_code"`
	ExtractCode     string    `json:"extract_code,omitempty"`
	HasExtractCode  bool      `json:"has_extract_code"`
	PurchaseOrderID int64     `json:"purchase_order_id"`
	Status          string    `json:"status"`
	ExpiresAt       time.Time `json:"expires_at"`
	AccessLimit     int64     `json:"access_limit"`
	AccessCount     int64     `json:"access_count"`
	UniqueUserCount int64     `json:"unique_user_count"`
	Usable          bool      `json:"usable"`
	CreatedAt       time.Time `json:"created_at"`
}

type VerifyHTTPRequest struct {
	ExtractCode  string `json:"extract_code"`
	ClientSignal string `json:"client_signal"`
}

type SupplyItemHTTPRequest struct {
	ProductID int64           `json:"product_id" binding:"required"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type SubmitSupplyHTTPRequest struct {
	PurchaseOrderID int64                   `json:"purchase_order_id" binding:"required"`
	RequestID       string                  `json:"request_id"`
	ExtractCode     string                  `json:"extract_code"`
	ClientSignal    string                  `json:"client_signal"`
	Supplier        domain.SupplierInfo     `json:"supplier"`
	Items           []SupplyItemHTTPRequest `json:"items"`
}

type SupplyItemHTTPResponse struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
}

type SupplyRecordHTTPResponse struct {
	ID              string                   `json:"id"`
	PurchaseOrderID int64                    `json:"purchase_order_id"`
	ShareCode       string                   `json:"share_code"`
	Status          string                   `json:"status"`
	Supplier        domain.SupplierInfo      `json:"supplier"`
	Items           []SupplyItemHTTPResponse `json:"items"`
	TotalAmount     decimal.Decimal          `json:"total_amount"`
	DisabledBy      int64                    `json:"disabled_by,omitempty"`
	DisabledAt      *time.Time               `json:"disabled_at,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

type AccessRecordHTTPResponse struct {
	Fingerprint string    `json:"fingerprint"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	AccessCount int64     `json:"access_count"`
}

func (h *HTTPHandler) CreateShareLink(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.int64Param(c, "orderId")
	if !ok {
		return
	}

	var req CreateShareLinkHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid request body")
		return
	}

	created, err := h.links.Create(c.Request.Context(), service.CreateShareLinkInput{
		PurchaseOrderID:  orderID,
		Actor:            actor,
		ExpiresInSeconds: req.ExpiresInSeconds,
		AccessLimit:      req.AccessLimit,
		UseExtractCode:   req.UseExtractCode,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := toShareLinkResponse(created.Link, time.Now())
	resp.ExtractCode = created.ExtractCode
	c.JSON(http.StatusCreated, resp)
}

func (h *HTTPHandler) ListShareLinks(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.int64Param(c, "orderId")
	if !ok {
		return
	}

	links, err := h.links.ListForOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	now := time.Now()
	out := make([]ShareLinkHTTPResponse, 0, len(links))
	for _, link := range links {
		out = append(out, toShareLinkResponse(link, now))
	}
	c.JSON(http.StatusOK, gin.H{"share_links": out})
}

func (h *HTTPHandler) RevokeShareLink(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.links.Revoke(c.Request.Context(), c.Param("code"), actor); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *HTTPHandler) ListVisitors(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	records, err := h.links.AccessRecords(c.Request.Context(), c.Param("code"), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]AccessRecordHTTPResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, AccessRecordHTTPResponse{
			Fingerprint: rec.Fingerprint,
			FirstSeenAt: rec.FirstSeenAt,
			LastSeenAt:  rec.LastSeenAt,
			AccessCount: rec.AccessCount,
		})
	}
	c.JSON(http.StatusOK, gin.H{"visitors": out})
}

func (h *HTTPHandler) VerifyShareAccess(c *gin.Context) {
	var req VerifyHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.gateway.Verify(c.Request.Context(), service.VerifyInput{
		ShareCode:   c.Param("code"),
		ExtractCode: req.ExtractCode,
		Fingerprint: fingerprint(c, req.ClientSignal),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"purchase_order_id": result.PurchaseOrderID,
		"expires_at":        result.Link.ExpiresAt,
	})
}

// ShareAvailability verifies the visitor before showing figures, so it
// counts as a visit like any other. The extract code travels in a header
// and never in the URL.
func (h *HTTPHandler) ShareAvailability(c *gin.Context) {
	if c.Query("extract_code") != "" {
		h.badRequest(c, "extract code must be sent in the "+extractCodeHeader+" header")
		return
	}
	result, err := h.gateway.Verify(c.Request.Context(), service.VerifyInput{
		ShareCode:   c.Param("code"),
		ExtractCode: c.GetHeader(extractCodeHeader),
		Fingerprint: fingerprint(c, c.Query("client_signal")),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	rows, err := h.quantities.AvailableQuantities(c.Request.Context(), result.PurchaseOrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase_order_id": result.PurchaseOrderID, "availability": rows})
}

func (h *HTTPHandler) OrderAvailability(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.int64Param(c, "orderId")
	if !ok {
		return
	}

	rows, err := h.quantities.OwnerAvailability(c.Request.Context(), orderID, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchase_order_id": orderID, "availability": rows})
}

func (h *HTTPHandler) SubmitSupplyRecord(c *gin.Context) {
	var req SubmitSupplyHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	items := make([]service.SubmitItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.SubmitItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	record, err := h.records.Submit(c.Request.Context(), service.SubmitInput{
		PurchaseOrderID: req.PurchaseOrderID,
		ShareCode:       c.Param("code"),
		ExtractCode:     req.ExtractCode,
		Fingerprint:     fingerprint(c, req.ClientSignal),
		RequestID:       req.RequestID,
		Supplier:        req.Supplier,
		Items:           items,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":           true,
		"record_id":    record.ID,
		"total_amount": record.TotalAmount,
	})
}

func (h *HTTPHandler) ListSupplyRecords(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	orderID, ok := h.int64Param(c, "orderId")
	if !ok {
		return
	}

	records, err := h.records.ListForOrder(c.Request.Context(), orderID, actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	out := make([]SupplyRecordHTTPResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSupplyRecordResponse(rec))
	}
	c.JSON(http.StatusOK, gin.H{"supply_records": out})
}

func (h *HTTPHandler) DisableSupplyRecord(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	if err := h.records.Disable(c.Request.Context(), c.Param("id"), actor); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) actor(c *gin.Context) (int64, bool) {
	actor, err := strconv.ParseInt(c.GetHeader(userIDHeader), 10, 64)
	if err != nil || actor <= 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "reason": "unauthorized"})
		return 0, false
	}
	return actor, true
}

func (h *HTTPHandler) int64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || v <= 0 {
		h.badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func (h *HTTPHandler) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"ok":      false,
		"reason":  domain.Reason(domain.ErrInvalidInput),
		"message": message,
	})
}

// writeError renders every failure as {ok:false, reason}. Internal errors
// are logged here and never echoed to the caller.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	body := gin.H{"ok": false, "reason": domain.Reason(err)}
	status := statusFor(err)

	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		body["message"] = err.Error()
	case domain.KindBusy:
		c.Header("Retry-After", "1")
	case domain.KindInternal:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	}

	var insufficient *domain.InsufficientQuantityError
	if errors.As(err, &insufficient) {
		body["product_id"] = insufficient.ProductID
		body["requested"] = insufficient.Requested
		body["available"] = insufficient.Available
	}
	c.AbortWithStatusJSON(status, body)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLinkNotFound), errors.Is(err, domain.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLinkExpired), errors.Is(err, domain.ErrLinkRevoked):
		return http.StatusGone
	case errors.Is(err, domain.ErrExtractCodeMismatch),
		errors.Is(err, domain.ErrAccessLimitReached),
		errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInsufficientQuantity),
		errors.Is(err, domain.ErrAlreadyDisabled),
		errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fingerprint derives the anonymous visitor identity. The client signal is
// whatever the browser keeps between visits; header and address only
// narrow it down.
func fingerprint(c *gin.Context, clientSignal string) string {
	sum := sha256.Sum256([]byte(clientSignal + "|" + c.Request.UserAgent() + "|" + c.ClientIP()))
	return hex.EncodeToString(sum[:])
}

// toShareLinkResponse reports usable as seen by a new visitor; returning
// visitors of a full link are still let in.
func toShareLinkResponse(link domain.ShareLink, now time.Time) ShareLinkHTTPResponse {
	return ShareLinkHTTPResponse{
		ShareCode:       link.ShareCode,
		HasExtractCode:  link.HasExtractCode(),
		PurchaseOrderID: link.PurchaseOrderID,
		Status:          string(link.Status),
		ExpiresAt:       link.ExpiresAt,
		AccessLimit:     link.AccessLimit,
		AccessCount:     link.AccessCount,
		UniqueUserCount: link.UniqueUserCount,
		Usable:          link.IsUsable(now),
		CreatedAt:       link.CreatedAt,
	}
}

func toSupplyRecordResponse(rec domain.SupplyRecord) SupplyRecordHTTPResponse {
	items := make([]SupplyItemHTTPResponse, 0, len(rec.Items))
	for _, item := range rec.Items {
		items = append(items, SupplyItemHTTPResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Amount:    item.Amount(),
		})
	}
	return SupplyRecordHTTPResponse{
		ID:              rec.ID,
		PurchaseOrderID: rec.PurchaseOrderID,
		ShareCode:       rec.ShareCode,
		Status:          string(rec.Status),
		Supplier:        rec.Supplier,
		Items:           items,
		TotalAmount:     rec.TotalAmount,
		DisabledBy:      rec.DisabledBy,
		DisabledAt:      rec.DisabledAt,
		CreatedAt:       rec.CreatedAt,
	}
}
