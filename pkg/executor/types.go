package executor

import "time"

// Side identifies a position or trade direction.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Action enumerates the decisions an AI model (or consensus of models) may emit.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
	ActionHold       Action = "hold"
	ActionWait       Action = "wait"
)

// AllSymbol is the sentinel symbol used by non-directional decisions such as "wait".
const AllSymbol = "ALL"

// Position is a normalized view of an open position held by a trader.
type Position struct {
	Symbol           string
	Side             Side
	Quantity         float64
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
	LiquidationPrice float64
}

// AccountSnapshot captures account-level balances at the time a Context was built.
type AccountSnapshot struct {
	TotalBalance      float64
	AvailableBalance  float64
	UnrealizedProfit  float64
	PositionCount     int
	MarginUsedPct     float64
}

// CandidateCoin is a symbol surfaced to the model as a trade candidate, with provenance.
type CandidateCoin struct {
	Symbol  string
	Sources []string
}

// MarketData is the normalized per-symbol market view handed to the prompt builder.
type MarketData struct {
	Symbol     string
	LastPrice  float64
	Change1h   float64
	Change4h   float64
	FundingPct float64
	Indicators map[string]float64
}

// OpenInterestData reports top-of-book open-interest metrics for a symbol.
type OpenInterestData struct {
	Latest  float64
	Average float64
}

// LeveragePolicy carries the configured leverage caps for a cycle.
type LeveragePolicy struct {
	BTCETHLeverage  int
	AltcoinLeverage int
}

// PerformanceSummary is an opaque, read-only rollup surfaced to the prompt builder.
type PerformanceSummary struct {
	SharpeRatio float64
	WinRate     float64
	TotalTrades int
	UpdatedAt   time.Time
}

// Context aggregates every input required to produce a decision for one cycle.
type Context struct {
	CurrentTime     time.Time
	RuntimeMinutes  int
	CycleCount      int
	Account         AccountSnapshot
	Positions       []Position
	CandidateCoins  []CandidateCoin
	MarketDataMap   map[string]MarketData
	OpenInterestMap map[string]OpenInterestData
	Leverage        LeveragePolicy
	Performance     *PerformanceSummary
}

// Clone returns a deep-ish copy suitable for handing to one multi-agent task: map
// fields are nilled so each agent repopulates its own private copy; slices are
// shared read-only as the source data will not be mutated by downstream callers.
func (c Context) Clone() Context {
	cp := c
	cp.MarketDataMap = nil
	cp.OpenInterestMap = nil
	return cp
}

// Decision captures a single trading action suggested by a model.
type Decision struct {
	Symbol     string
	Action     Action
	Quantity   float64
	Leverage   int
	TakeProfit float64
	StopLoss   float64
	Confidence int
	Reasoning  string
}

// FullDecision is the full, validated response produced for one decision cycle.
type FullDecision struct {
	Decisions   []Decision
	CoTTrace    string
	UserPrompt  string
	RawResponse string
}

// Wait builds the canonical "decline to act" decision used whenever a cycle, an
// agent, or a consensus merge has nothing actionable to report.
func Wait(reason string) FullDecision {
	return FullDecision{
		Decisions: []Decision{{Symbol: AllSymbol, Action: ActionWait, Reasoning: reason}},
	}
}
