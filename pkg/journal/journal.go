// Package journal implements the append-mostly per-trader decision log: the
// durable record of what a trader observed, decided, and executed each cycle.
package journal

import (
	"fmt"
	"time"
)

// AccountSnapshot is the account-level state embedded in a DecisionRecord.
type AccountSnapshot struct {
	TotalBalance     float64
	AvailableBalance float64
	UnrealizedProfit float64
	PositionCount    int
	MarginUsedPct    float64
}

// PositionSnapshot is one open position embedded in a DecisionRecord.
type PositionSnapshot struct {
	Symbol           string
	Side             string
	Quantity         float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
	LiquidationPrice float64
}

// ActionResult records the outcome of executing one decision action against
// the exchange.
type ActionResult struct {
	Action    string
	Symbol    string
	Quantity  float64
	Leverage  int
	Price     float64
	OrderID   string
	Timestamp time.Time
	Success   bool
	Error     string
}

// DecisionRecord is one cycle's full audit trail for one trader.
//
// CycleNumber is monotonic starting at 1; cycle 0 is the seed record that
// carries the trader's initial balance and precedes any decision.
type DecisionRecord struct {
	TraderID       string
	CycleNumber    int
	Timestamp      time.Time
	InputPrompt    string
	CoTTrace       string
	DecisionJSON   string
	RawResponse    string
	Success        bool
	ErrorMessage   string
	Account        AccountSnapshot
	Positions      []PositionSnapshot
	Actions        []ActionResult
	CandidateCoins []string
	ExecutionLog   []string
}

// ConflictError is returned by Append when (trader_id, cycle_number) already
// exists — the journal is append-only and never overwrites a cycle.
type ConflictError struct {
	TraderID    string
	CycleNumber int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("journal: cycle %d already recorded for trader %s", e.CycleNumber, e.TraderID)
}

// SeedRecord is the synthetic cycle-0 entry recorded once per trader at boot,
// carrying the initial balance the trader started with.
func SeedRecord(traderID string, initialBalance float64, at time.Time) DecisionRecord {
	return DecisionRecord{
		TraderID:     traderID,
		CycleNumber:  0,
		Timestamp:    at,
		Success:      true,
		DecisionJSON: `{"seed":true}`,
		Account:      AccountSnapshot{TotalBalance: initialBalance, AvailableBalance: initialBalance},
	}
}

// ResumeState is what a trader needs at boot to pick up where it left off.
type ResumeState struct {
	InitialBalance    float64
	LastAccount       AccountSnapshot
	ResumeCycleNumber int
}

// Store is the durable per-trader decision journal. Implementations must
// make Append transactional across the record and its embedded positions and
// actions — a partial append must never be observable to a concurrent
// reader.
type Store interface {
	// Append persists rec. It returns *ConflictError if (rec.TraderID,
	// rec.CycleNumber) already exists.
	Append(rec DecisionRecord) error

	// Latest returns the DecisionRecord with the highest cycle_number for
	// traderID, or the seed record if no cycles beyond 0 exist yet.
	Latest(traderID string) (DecisionRecord, error)

	// Range returns records for traderID with cycle_number in [from, to],
	// ordered ascending.
	Range(traderID string, from, to int) ([]DecisionRecord, error)

	// All returns the full ordered history for traderID, ascending by
	// cycle_number.
	All(traderID string) ([]DecisionRecord, error)

	// Seed inserts the cycle-0 record for traderID if absent. Idempotent.
	Seed(traderID string, initialBalance float64, at time.Time) error

	// RestoreState reads the seed and latest record for traderID and
	// returns the state a scheduler needs to resume the trader's loop.
	RestoreState(traderID string) (ResumeState, error)

	// Close releases any resources (connections, file handles) held by the
	// store.
	Close() error
}

// ErrNotFound is returned by Latest/RestoreState when a trader has not been
// seeded yet.
var ErrNotFound = fmt.Errorf("journal: trader not found")
