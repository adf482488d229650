package execution

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestIcebergState_VisibleSlices(t *testing.T) {
	total := decimal.RequireFromString("100")
	visible := decimal.RequireFromString("0.1")

	ice, err := newIcebergState(total, visible, 2)
	if err != nil {
		t.Fatalf("newIcebergState failed: %v", err)
	}

	first := ice.nextVisible()
	if !first.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Expected first visible 10, got %s", first)
	}

	ice.applyFill(first)
	second := ice.nextVisible()
	if !second.Equal(decimal.RequireFromString("9")) {
		t.Errorf("Expected second visible 9, got %s", second)
	}
}

func TestIcebergState_ExposesWholeRemainderWhenTruncationWouldStall(t *testing.T) {
	// 10% of 0.05 truncated to 2 decimal places is zero; the whole
	// remainder must be exposed instead so the order can finish.
	ice, err := newIcebergState(decimal.RequireFromString("0.05"), decimal.RequireFromString("0.1"), 2)
	if err != nil {
		t.Fatalf("newIcebergState failed: %v", err)
	}

	visible := ice.nextVisible()
	if !visible.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("Expected whole remainder 0.05, got %s", visible)
	}

	ice.applyFill(visible)
	if !ice.exhausted() {
		t.Error("Expected iceberg to be exhausted")
	}
	if !ice.nextVisible().IsZero() {
		t.Errorf("Expected zero visible after exhaustion, got %s", ice.nextVisible())
	}
}

func TestIcebergState_FillsConserveQuantity(t *testing.T) {
	total := decimal.RequireFromString("1")
	ice, err := newIcebergState(total, decimal.RequireFromString("0.3"), 8)
	if err != nil {
		t.Fatalf("newIcebergState failed: %v", err)
	}

	filled := decimal.Zero
	for i := 0; i < 1000 && !ice.exhausted(); i++ {
		visible := ice.nextVisible()
		if !visible.IsPositive() {
			t.Fatalf("Visible slice %d is not positive: %s", i, visible)
		}
		ice.applyFill(visible)
		filled = filled.Add(visible)
	}

	if !ice.exhausted() {
		t.Fatal("Iceberg did not exhaust within 1000 slices")
	}
	if !filled.Equal(total) {
		t.Errorf("Filled %s, want %s", filled, total)
	}
}

func TestNewIcebergState_InvalidParams(t *testing.T) {
	one := decimal.NewFromInt(1)

	if _, err := newIcebergState(decimal.Zero, decimal.RequireFromString("0.5"), 2); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("zero total: expected ErrInvalidParams, got %v", err)
	}
	if _, err := newIcebergState(one, decimal.Zero, 2); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("zero fraction: expected ErrInvalidParams, got %v", err)
	}
	if _, err := newIcebergState(one, decimal.RequireFromString("1.5"), 2); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("fraction above 1: expected ErrInvalidParams, got %v", err)
	}
	if _, err := newIcebergState(one, one, 2); err != nil {
		t.Errorf("fraction exactly 1 should be valid, got %v", err)
	}
}
