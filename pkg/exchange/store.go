package exchange

import (
	"context"

	"nof0-api/pkg/executor"
)

// PositionStore is the Scheduler's exchange contract (spec'd as the
// PositionStore collaborator): read live positions/balance and execute a
// single decision as an order. Implementations own venue-specific wire
// formats; the Scheduler and Risk Policy only ever see executor's
// normalized types.
type PositionStore interface {
	// Positions returns the currently open positions, one per (symbol, side).
	Positions(ctx context.Context) ([]executor.Position, error)
	// Account returns the current account-level balances.
	Account(ctx context.Context) (executor.AccountSnapshot, error)
	// Execute attempts one decision and reports its fill. An error
	// represents an ExchangeError: it is recorded in the per-action result
	// and never aborts the cycle.
	Execute(ctx context.Context, decision executor.Decision) (ExecutionOutcome, error)
}

// ExecutionOutcome reports the fill price and venue order id for one
// executed decision.
type ExecutionOutcome struct {
	Price   float64
	OrderID string
}
