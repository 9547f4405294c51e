package domain

import (
	"math"
	"sort"
)

// Remaining is the quantity of a line still open for claims.
func Remaining(orderedQuantity, activeClaimedQuantity int64) int64 {
	if remaining := orderedQuantity - activeClaimedQuantity; remaining > 0 {
		return remaining
	}
	return 0
}

func CanAdmit(orderedQuantity, activeClaimedQuantity, requestedQuantity int64) bool {
	return requestedQuantity <= Remaining(orderedQuantity, activeClaimedQuantity)
}

// Availability derives the per-product figures for an order from its lines
// and the quantities claimed by active records. Lines are returned in
// product order.
func Availability(lines []PurchaseOrderLine, claimed map[int64]int64) []QuantityAvailability {
	out := make([]QuantityAvailability, 0, len(lines))
	for _, line := range lines {
		c := claimed[line.ProductID]
		out = append(out, QuantityAvailability{
			ProductID:         line.ProductID,
			OrderedQuantity:   line.OrderedQuantity,
			ClaimedQuantity:   c,
			AvailableQuantity: Remaining(line.OrderedQuantity, c),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// CheckClaim applies the admission rule to a whole batch: every product must
// be a line of the order and fit into what remains, otherwise nothing is
// admitted. Items naming the same product are summed before comparing.
func CheckClaim(lines []PurchaseOrderLine, claimed map[int64]int64, items []SupplyRecordItem) error {
	ordered := make(map[int64]int64, len(lines))
	for _, line := range lines {
		ordered[line.ProductID] += line.OrderedQuantity
	}

	requested := make(map[int64]int64, len(items))
	var productIDs []int64
	for _, item := range items {
		if _, ok := ordered[item.ProductID]; !ok {
			return InvalidInputf("product %d is not part of purchase order", item.ProductID)
		}
		if item.Quantity <= 0 {
			return InvalidInputf("quantity for product %d must be positive", item.ProductID)
		}
		sofar, seen := requested[item.ProductID]
		if !seen {
			productIDs = append(productIDs, item.ProductID)
		}
		// Anything past the ordered quantity is rejected before summing so
		// the running total stays bounded by the line.
		if limit := ordered[item.ProductID]; item.Quantity > limit || sofar > limit-item.Quantity {
			total := int64(math.MaxInt64)
			if sofar <= math.MaxInt64-item.Quantity {
				total = sofar + item.Quantity
			}
			return &InsufficientQuantityError{
				ProductID: item.ProductID,
				Requested: total,
				Available: Remaining(limit, claimed[item.ProductID]),
			}
		}
		requested[item.ProductID] = sofar + item.Quantity
	}

	for _, productID := range productIDs {
		if !CanAdmit(ordered[productID], claimed[productID], requested[productID]) {
			return &InsufficientQuantityError{
				ProductID: productID,
				Requested: requested[productID],
				Available: Remaining(ordered[productID], claimed[productID]),
			}
		}
	}
	return nil
}
