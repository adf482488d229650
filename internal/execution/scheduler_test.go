package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// captureSubmitter records submitted slices for assertions.
type captureSubmitter struct {
	slices []*domain.ChildOrderSlice
	err    error
}

func (c *captureSubmitter) SubmitSlice(_ context.Context, slice *domain.ChildOrderSlice) error {
	if c.err != nil {
		return c.err
	}
	c.slices = append(c.slices, slice)
	return nil
}

func newTwapParent(id string) *domain.ParentOrder {
	return &domain.ParentOrder{
		OrderID:       id,
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideBuy,
		TotalQuantity: decimal.RequireFromString("1.0"),
		Algo:          domain.AlgoTwap,
		Params:        domain.AlgoParams{HorizonSecs: 20, IntervalSecs: 5},
	}
}

func TestScheduler_TwapSubmitsAllSlices(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	if err := sched.Submit(ctx, newTwapParent("p1"), 8); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// First slice is due immediately.
	if len(sub.slices) != 1 {
		t.Fatalf("Expected 1 slice before advancing, got %d", len(sub.slices))
	}

	clock.AdvanceTo(20 * nanosPerSec)

	if len(sub.slices) != 4 {
		t.Fatalf("Expected 4 slices, got %d", len(sub.slices))
	}

	sum := decimal.Zero
	for i, slice := range sub.slices {
		if slice.SliceIndex != i {
			t.Errorf("Slice %d has index %d", i, slice.SliceIndex)
		}
		wantAt := int64(i) * 5 * nanosPerSec
		if slice.ScheduledAtNs != wantAt {
			t.Errorf("Slice %d scheduled at %d, want %d", i, slice.ScheduledAtNs, wantAt)
		}
		sum = sum.Add(slice.Quantity)
	}
	if !sum.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("Slices sum to %s, want 1.0", sum)
	}
}

func TestScheduler_CancelStopsPendingSlices(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	if err := sched.Submit(ctx, newTwapParent("p1"), 8); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(sub.slices) != 1 {
		t.Fatalf("Expected 1 immediate slice, got %d", len(sub.slices))
	}

	// Cancel before the second slice becomes due.
	if err := sched.Cancel("p1"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	clock.AdvanceTo(20 * nanosPerSec)

	if len(sub.slices) != 1 {
		t.Errorf("Expected no slices after cancel, got %d total", len(sub.slices))
	}

	state, _ := sched.State("p1")
	if state != domain.ParentCancelled {
		t.Errorf("Expected CANCELLED, got %s", state)
	}

	// A second cancel is an error: the parent is already terminal.
	if err := sched.Cancel("p1"); !errors.Is(err, ErrParentTerminal) {
		t.Errorf("Expected ErrParentTerminal, got %v", err)
	}
}

func TestScheduler_CompletesOnFullFill(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	if err := sched.Submit(ctx, newTwapParent("p1"), 8); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	clock.AdvanceTo(20 * nanosPerSec)

	for _, slice := range sub.slices {
		if err := sched.OnFill(ctx, "p1", slice.Quantity); err != nil {
			t.Fatalf("OnFill failed: %v", err)
		}
	}

	state, lastErr := sched.State("p1")
	if state != domain.ParentCompleted {
		t.Errorf("Expected COMPLETED, got %s", state)
	}
	if lastErr != nil {
		t.Errorf("Unexpected async error: %v", lastErr)
	}

	// Fills after completion are rejected.
	err := sched.OnFill(ctx, "p1", decimal.NewFromInt(1))
	if !errors.Is(err, ErrParentTerminal) {
		t.Errorf("Expected ErrParentTerminal, got %v", err)
	}
}

func TestScheduler_IcebergReexposesOnFill(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	parent := &domain.ParentOrder{
		OrderID:       "ice1",
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideSell,
		TotalQuantity: decimal.RequireFromString("100"),
		Algo:          domain.AlgoIceberg,
		Params:        domain.AlgoParams{VisibleFraction: decimal.RequireFromString("0.5")},
	}

	if err := sched.Submit(ctx, parent, 2); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(sub.slices) != 1 {
		t.Fatalf("Expected 1 visible slice, got %d", len(sub.slices))
	}
	if !sub.slices[0].Quantity.Equal(decimal.RequireFromString("50")) {
		t.Errorf("Expected visible 50, got %s", sub.slices[0].Quantity)
	}

	// Filling the visible slice immediately exposes the next one.
	if err := sched.OnFill(ctx, "ice1", sub.slices[0].Quantity); err != nil {
		t.Fatalf("OnFill failed: %v", err)
	}
	if len(sub.slices) != 2 {
		t.Fatalf("Expected re-exposed slice, got %d", len(sub.slices))
	}
	if !sub.slices[1].Quantity.Equal(decimal.RequireFromString("25")) {
		t.Errorf("Expected visible 25, got %s", sub.slices[1].Quantity)
	}
}

func TestScheduler_IcebergDrainsToCompletion(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	total := decimal.RequireFromString("1")
	parent := &domain.ParentOrder{
		OrderID:       "ice1",
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideBuy,
		TotalQuantity: total,
		Algo:          domain.AlgoIceberg,
		Params:        domain.AlgoParams{VisibleFraction: decimal.RequireFromString("0.3")},
	}
	if err := sched.Submit(ctx, parent, 8); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	filled := decimal.Zero
	for i := 0; i < 1000; i++ {
		if len(sub.slices) == i {
			break
		}
		qty := sub.slices[i].Quantity
		filled = filled.Add(qty)
		if err := sched.OnFill(ctx, "ice1", qty); err != nil {
			t.Fatalf("OnFill %d failed: %v", i, err)
		}
	}

	if !filled.Equal(total) {
		t.Errorf("Filled %s, want %s", filled, total)
	}
	state, _ := sched.State("ice1")
	if state != domain.ParentCompleted {
		t.Errorf("Expected COMPLETED, got %s", state)
	}
}

func TestScheduler_RejectsInvalidParents(t *testing.T) {
	clock := NewVirtualClock(0)
	sub := &captureSubmitter{}
	sched := NewScheduler(clock, sub, nil)
	ctx := context.Background()

	parent := newTwapParent("bad")
	parent.TotalQuantity = decimal.Zero
	if err := sched.Submit(ctx, parent, 8); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams, got %v", err)
	}
	state, lastErr := sched.State("bad")
	if state != domain.ParentCancelled {
		t.Errorf("Expected CANCELLED after rejection, got %s", state)
	}
	if lastErr == nil {
		t.Error("Expected recorded planning error")
	}

	// Duplicate order ids are refused outright.
	if err := sched.Submit(ctx, newTwapParent("p1"), 8); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := sched.Submit(ctx, newTwapParent("p1"), 8); !errors.Is(err, ErrInvalidParams) {
		t.Errorf("Expected ErrInvalidParams for duplicate id, got %v", err)
	}

	if _, err := sched.State("missing"); !errors.Is(err, ErrUnknownParent) {
		t.Errorf("Expected ErrUnknownParent, got %v", err)
	}
}
