package domain

import (
	"errors"
	"math"
	"testing"
)

func TestRemaining(t *testing.T) {
	cases := []struct {
		ordered, claimed, want int64
	}{
		{200, 0, 200},
		{200, 150, 50},
		{200, 200, 0},
		{200, 250, 0},
		{0, 0, 0},
	}
	for _, c := range cases {
		if got := Remaining(c.ordered, c.claimed); got != c.want {
			t.Errorf("Remaining(%d, %d) = %d, want %d", c.ordered, c.claimed, got, c.want)
		}
	}
}

func TestCanAdmit(t *testing.T) {
	if !CanAdmit(200, 50, 150) {
		t.Error("expected 150 to fit exactly")
	}
	if CanAdmit(200, 51, 150) {
		t.Error("expected 150 to exceed 149 remaining")
	}
	if CanAdmit(10, 20, 1) {
		t.Error("over-claimed line must admit nothing")
	}
}

func TestCheckClaim(t *testing.T) {
	lines := []PurchaseOrderLine{
		{OrderID: 1, ProductID: 10, OrderedQuantity: 100},
		{OrderID: 1, ProductID: 20, OrderedQuantity: 5},
	}
	claimed := map[int64]int64{10: 40}

	if err := CheckClaim(lines, claimed, []SupplyRecordItem{{ProductID: 10, Quantity: 60}, {ProductID: 20, Quantity: 5}}); err != nil {
		t.Errorf("expected admission, got: %v", err)
	}

	err := CheckClaim(lines, claimed, []SupplyRecordItem{{ProductID: 10, Quantity: 1}, {ProductID: 20, Quantity: 6}})
	var insufficient *InsufficientQuantityError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientQuantityError, got: %v", err)
	}
	if insufficient.ProductID != 20 || insufficient.Requested != 6 || insufficient.Available != 5 {
		t.Errorf("unexpected detail %+v", insufficient)
	}
	if !errors.Is(err, ErrInsufficientQuantity) {
		t.Error("expected errors.Is to match ErrInsufficientQuantity")
	}

	err = CheckClaim(lines, claimed, []SupplyRecordItem{{ProductID: 10, Quantity: 30}, {ProductID: 10, Quantity: 31}})
	if !errors.As(err, &insufficient) || insufficient.Requested != 61 || insufficient.Available != 60 {
		t.Errorf("expected duplicate lines summed to 61 against 60, got: %v", err)
	}

	if err := CheckClaim(lines, claimed, []SupplyRecordItem{{ProductID: 30, Quantity: 1}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for product outside order, got: %v", err)
	}
}

func TestCheckClaim_HugeQuantities(t *testing.T) {
	lines := []PurchaseOrderLine{{OrderID: 1, ProductID: 11, OrderedQuantity: 100}}

	cases := []struct {
		name  string
		items []SupplyRecordItem
		want  int64
	}{
		{"max plus two", []SupplyRecordItem{{ProductID: 11, Quantity: math.MaxInt64}, {ProductID: 11, Quantity: 2}}, math.MaxInt64},
		{"two then max", []SupplyRecordItem{{ProductID: 11, Quantity: 2}, {ProductID: 11, Quantity: math.MaxInt64}}, math.MaxInt64},
		{"single over line", []SupplyRecordItem{{ProductID: 11, Quantity: 101}}, 101},
	}
	for _, c := range cases {
		err := CheckClaim(lines, nil, c.items)
		var insufficient *InsufficientQuantityError
		if !errors.As(err, &insufficient) {
			t.Errorf("%s: expected InsufficientQuantityError, got: %v", c.name, err)
			continue
		}
		if insufficient.Requested != c.want || insufficient.Available != 100 {
			t.Errorf("%s: unexpected detail %+v", c.name, insufficient)
		}
	}

	if err := CheckClaim(lines, nil, []SupplyRecordItem{{ProductID: 11, Quantity: -5}}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative quantity, got: %v", err)
	}
}

func TestAvailability(t *testing.T) {
	lines := []PurchaseOrderLine{
		{ProductID: 20, OrderedQuantity: 5},
		{ProductID: 10, OrderedQuantity: 100},
	}
	rows := Availability(lines, map[int64]int64{10: 30, 20: 9})

	if len(rows) != 2 || rows[0].ProductID != 10 {
		t.Fatalf("expected rows sorted by product, got %+v", rows)
	}
	if rows[0].AvailableQuantity != 70 || rows[0].ClaimedQuantity != 30 {
		t.Errorf("unexpected row %+v", rows[0])
	}
	if rows[1].AvailableQuantity != 0 {
		t.Errorf("expected clamped availability 0, got %d", rows[1].AvailableQuantity)
	}
}
