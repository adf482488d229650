// Package execution slices parent orders into timed child orders against
// a clock abstraction. Scheduling is cooperative: during a backtest the
// replay engine's virtual clock drives alarms deterministically, and a
// live deployment swaps in the real clock.
package execution

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/observability"
)

// SliceSubmitter receives child order slices as they become due.
type SliceSubmitter interface {
	SubmitSlice(ctx context.Context, slice *domain.ChildOrderSlice) error
}

// parentState tracks one parent order's lifecycle inside the scheduler.
type parentState struct {
	order     *domain.ParentOrder
	precision int32
	state     domain.ParentState
	cancels   []func()
	nextIndex int
	filled    decimal.Decimal
	iceberg   *icebergState
	lastErr   error
}

// Scheduler works parent orders by emitting child order slices over time.
// All state transitions happen under one mutex, so a cancelled parent can
// never have a slice fire after cancellation is observed.
type Scheduler struct {
	clock   Clock
	submit  SliceSubmitter
	metrics *observability.Metrics

	mu      sync.Mutex
	parents map[string]*parentState
}

// NewScheduler creates a scheduler over the given clock and submitter.
func NewScheduler(clock Clock, submit SliceSubmitter, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		clock:   clock,
		submit:  submit,
		metrics: metrics,
		parents: make(map[string]*parentState),
	}
}

// Submit accepts a parent order and begins working it. Slices due
// immediately are submitted synchronously before Submit returns; later
// slices are scheduled as clock alarms. sizePrecision is the instrument's
// quantity precision used for slice rounding.
func (s *Scheduler) Submit(ctx context.Context, parent *domain.ParentOrder, sizePrecision int32) error {
	if parent == nil || parent.OrderID == "" {
		return fmt.Errorf("%w: missing order id", ErrInvalidParams)
	}

	s.mu.Lock()
	if _, exists := s.parents[parent.OrderID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: duplicate order id %s", ErrInvalidParams, parent.OrderID)
	}
	ps := &parentState{
		order:     parent,
		precision: sizePrecision,
		state:     domain.ParentPending,
	}
	s.parents[parent.OrderID] = ps
	s.mu.Unlock()

	switch parent.Algo {
	case domain.AlgoTwap:
		specs, err := planTwap(parent.TotalQuantity, sizePrecision, parent.Params.HorizonSecs, parent.Params.IntervalSecs)
		if err != nil {
			return s.reject(parent.OrderID, err)
		}
		return s.scheduleSpecs(ctx, ps, specs)

	case domain.AlgoVwap:
		specs, err := planVwap(parent.TotalQuantity, sizePrecision, parent.Params.HorizonSecs, parent.Params.IntervalSecs, parent.Params.VolumeProfile)
		if err != nil {
			return s.reject(parent.OrderID, err)
		}
		return s.scheduleSpecs(ctx, ps, specs)

	case domain.AlgoIceberg:
		ice, err := newIcebergState(parent.TotalQuantity, parent.Params.VisibleFraction, sizePrecision)
		if err != nil {
			return s.reject(parent.OrderID, err)
		}
		s.mu.Lock()
		ps.iceberg = ice
		ps.state = domain.ParentSlicing
		s.mu.Unlock()
		if err := s.exposeIceberg(ctx, ps); err != nil {
			return err
		}
		return nil

	case domain.AlgoNone, "":
		if !parent.TotalQuantity.IsPositive() {
			return s.reject(parent.OrderID, fmt.Errorf("%w: total quantity %s", ErrInvalidParams, parent.TotalQuantity))
		}
		specs := []sliceSpec{{quantity: parent.TotalQuantity, offsetNs: 0}}
		return s.scheduleSpecs(ctx, ps, specs)

	default:
		return s.reject(parent.OrderID, fmt.Errorf("%w: unknown algo %q", ErrInvalidParams, parent.Algo))
	}
}

// scheduleSpecs emits or schedules every non-zero slice of a plan. Slices
// with zero delay are submitted synchronously so they never race with
// same-timestamp replay events.
func (s *Scheduler) scheduleSpecs(ctx context.Context, ps *parentState, specs []sliceSpec) error {
	now := s.clock.NowNs()

	s.mu.Lock()
	ps.state = domain.ParentSlicing
	s.mu.Unlock()

	for _, spec := range specs {
		if spec.quantity.IsZero() {
			// A no-op order is never submitted.
			continue
		}
		at := now + spec.offsetNs
		if spec.offsetNs == 0 {
			if err := s.emitSlice(ctx, ps, spec.quantity, at); err != nil {
				return err
			}
			continue
		}

		qty := spec.quantity
		cancel := s.clock.SetAlarm(at, func(nowNs int64) {
			if err := s.emitSlice(ctx, ps, qty, nowNs); err != nil {
				s.mu.Lock()
				ps.lastErr = err
				s.mu.Unlock()
			}
		})
		s.mu.Lock()
		ps.cancels = append(ps.cancels, cancel)
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.SlicesScheduled.Inc()
		}
	}

	s.mu.Lock()
	if ps.state == domain.ParentSlicing {
		ps.state = domain.ParentAwaitingFills
	}
	s.mu.Unlock()
	return nil
}

// emitSlice submits one child slice unless the parent has gone terminal.
func (s *Scheduler) emitSlice(ctx context.Context, ps *parentState, qty decimal.Decimal, at int64) error {
	s.mu.Lock()
	if ps.state == domain.ParentCancelled || ps.state == domain.ParentCompleted {
		s.mu.Unlock()
		return nil
	}
	slice := &domain.ChildOrderSlice{
		ParentID:      ps.order.OrderID,
		SliceIndex:    ps.nextIndex,
		Quantity:      qty,
		ScheduledAtNs: at,
	}
	ps.nextIndex++
	s.mu.Unlock()

	if err := s.submit.SubmitSlice(ctx, slice); err != nil {
		return fmt.Errorf("submit slice %d of %s: %w", slice.SliceIndex, slice.ParentID, err)
	}
	if s.metrics != nil {
		s.metrics.SlicesSubmitted.Inc()
	}
	return nil
}

// exposeIceberg submits the next visible slice of an iceberg parent.
func (s *Scheduler) exposeIceberg(ctx context.Context, ps *parentState) error {
	visible := ps.iceberg.nextVisible()
	if visible.IsZero() {
		return nil
	}
	return s.emitSlice(ctx, ps, visible, s.clock.NowNs())
}

// OnFill notifies the scheduler of a fill against one of the parent's
// slices. Iceberg parents immediately re-expose the next visible slice;
// any parent completes once cumulative fills reach its total quantity.
func (s *Scheduler) OnFill(ctx context.Context, parentID string, qty decimal.Decimal) error {
	s.mu.Lock()
	ps, ok := s.parents[parentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
	}
	if ps.state == domain.ParentCancelled || ps.state == domain.ParentCompleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrParentTerminal, parentID, ps.state)
	}

	ps.filled = ps.filled.Add(qty)
	if ps.iceberg != nil {
		ps.iceberg.applyFill(qty)
	}
	done := ps.filled.GreaterThanOrEqual(ps.order.TotalQuantity)
	if done {
		ps.state = domain.ParentCompleted
	}
	s.mu.Unlock()

	if done {
		return nil
	}
	if ps.iceberg != nil && !ps.iceberg.exhausted() {
		return s.exposeIceberg(ctx, ps)
	}
	return nil
}

// Cancel withdraws a parent order. All pending alarms are invalidated
// atomically with the state change: once Cancel returns, no further slice
// for this parent will be submitted.
func (s *Scheduler) Cancel(parentID string) error {
	s.mu.Lock()
	ps, ok := s.parents[parentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
	}
	if ps.state == domain.ParentCancelled || ps.state == domain.ParentCompleted {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", ErrParentTerminal, parentID, ps.state)
	}
	ps.state = domain.ParentCancelled
	cancels := ps.cancels
	ps.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		if s.metrics != nil {
			s.metrics.SlicesCancelled.Inc()
		}
	}
	return nil
}

// State returns the current lifecycle state of a parent order, along with
// any error recorded by an asynchronous slice submission.
func (s *Scheduler) State(parentID string) (domain.ParentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ps, ok := s.parents[parentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownParent, parentID)
	}
	return ps.state, ps.lastErr
}

// reject marks a parent cancelled after a planning failure and returns err.
func (s *Scheduler) reject(parentID string, err error) error {
	s.mu.Lock()
	if ps, ok := s.parents[parentID]; ok {
		ps.state = domain.ParentCancelled
		ps.lastErr = err
	}
	s.mu.Unlock()
	return err
}
