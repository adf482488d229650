// Package engine defines the replay/matching engine collaborator contract.
// The engine itself is external; this core consumes it purely through the
// query and event surfaces below, so any implementation (including the
// in-repo sim engine used by tests) can stand in.
package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// AccountingView exposes the engine's position, commission, and price
// queries. Positions returns every position object ever created for the
// instrument, open or flat: under a netting model one position object per
// instrument persists across direction flips, and its id is the key into
// the snapshot history.
type AccountingView interface {
	Positions(ctx context.Context, instrumentID string) ([]*domain.Position, error)

	// PositionSnapshots returns the terminal states of all superseded
	// cycles for a position id, oldest first.
	PositionSnapshots(ctx context.Context, positionID string) ([]*domain.PositionSnapshot, error)

	// Commissions returns the position's commission ledger, one Money
	// value per currency.
	Commissions(ctx context.Context, positionID string) ([]domain.Money, error)

	// LastPrice returns the latest trade price for the instrument.
	LastPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)
}

// BalanceView optionally exposes observed account balance changes. The
// reconciliation engine uses it only for the last-resort algebraic
// commission fallback.
type BalanceView interface {
	// BalanceChanges returns the net balance change per currency since
	// run start.
	BalanceChanges(ctx context.Context) ([]domain.Money, error)
}

// EventFeed exposes the engine's order, fill, and rejection streams,
// each in its own arrival order.
type EventFeed interface {
	OrderEvents() []*domain.OrderEvent
	FillEvents() []*domain.FillEvent
	RejectionEvents() []*domain.RejectionEvent
}

// Engine is the full collaborator surface consumed by this core.
type Engine interface {
	AccountingView
	EventFeed
}
