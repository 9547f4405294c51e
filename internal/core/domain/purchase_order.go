package domain

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusDraft     PurchaseOrderStatus = "draft"
	PurchaseOrderStatusConfirmed PurchaseOrderStatus = "confirmed"
	PurchaseOrderStatusClosed    PurchaseOrderStatus = "closed"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "cancelled"
)

// PurchaseOrder is owned by the purchasing module; this service only reads it.
type PurchaseOrder struct {
	ID      int64
	OwnerID int64
	Status  PurchaseOrderStatus
}

type PurchaseOrderLine struct {
	OrderID         int64
	ProductID       int64
	OrderedQuantity int64
}
