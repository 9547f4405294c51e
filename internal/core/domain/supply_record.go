package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SupplyRecordStatus string

const (
	SupplyRecordStatusActive   SupplyRecordStatus = "active"
	SupplyRecordStatusDisabled SupplyRecordStatus = "disabled"
)

type SupplierInfo struct {
	Name    string `json:"name" validate:"required,max=100"`
	Contact string `json:"contact" validate:"max=100"`
	Phone   string `json:"phone" validate:"max=32"`
	Remark  string `json:"remark" validate:"max=500"`
}

type SupplyRecordItem struct {
	ProductID int64
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (i SupplyRecordItem) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// SupplyRecord is one supplier's claim against a purchase order. Records are
// never deleted; disabling one returns its quantities to the available pool.
type SupplyRecord struct {
	ID              string
	PurchaseOrderID int64
	ShareCode       string
	RequestID       string
	Status          SupplyRecordStatus
	Supplier        SupplierInfo
	Items           []SupplyRecordItem
	TotalAmount     decimal.Decimal
	DisabledBy      int64
	DisabledAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r *SupplyRecord) IsActive() bool {
	return r.Status == SupplyRecordStatusActive
}

func SumAmount(items []SupplyRecordItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount())
	}
	return total
}

// QuantityAvailability is the per-product figure shown to every visitor.
type QuantityAvailability struct {
	ProductID         int64 `json:"product_id"`
	OrderedQuantity   int64 `json:"ordered_quantity"`
	ClaimedQuantity   int64 `json:"claimed_quantity"`
	AvailableQuantity int64 `json:"available_quantity"`
}
