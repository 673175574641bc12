package market

import (
	"context"

	"nof0-api/pkg/executor"
)

// MarketSnapshotProvider is the Scheduler's market-data contract: given the
// symbols currently relevant to a trader (open positions plus whatever
// candidate-discovery the implementation performs), return the normalized
// per-symbol data and open-interest metrics a Context needs for one cycle.
type MarketSnapshotProvider interface {
	Snapshot(ctx context.Context, watchedSymbols []string) (SnapshotResult, error)
}

// SnapshotResult is one cycle's worth of market input to a Context.
type SnapshotResult struct {
	Candidates      []executor.CandidateCoin
	MarketDataMap   map[string]executor.MarketData
	OpenInterestMap map[string]executor.OpenInterestData
}
