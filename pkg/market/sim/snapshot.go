// Package sim provides a deterministic, in-memory MarketSnapshotProvider for
// tests and the Scheduler's paper-trading mode — no network calls, no
// external venue.
package sim

import (
	"context"
	"sort"
	"strings"
	"sync"

	"nof0-api/pkg/executor"
	"nof0-api/pkg/market"
)

// Provider is a MarketSnapshotProvider backed by data the caller sets
// explicitly via SetMarketData/SetCandidates, rather than fetched from a
// venue.
type Provider struct {
	mu         sync.Mutex
	marketData map[string]executor.MarketData
	openInt    map[string]executor.OpenInterestData
	candidates []executor.CandidateCoin
}

// New constructs an empty Provider.
func New() *Provider {
	return &Provider{
		marketData: make(map[string]executor.MarketData),
		openInt:    make(map[string]executor.OpenInterestData),
	}
}

// SetMarketData seeds (or updates) the per-symbol market view.
func (p *Provider) SetMarketData(md executor.MarketData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marketData[strings.ToUpper(md.Symbol)] = md
}

// SetOpenInterest seeds (or updates) the per-symbol open-interest view.
func (p *Provider) SetOpenInterest(symbol string, oi executor.OpenInterestData) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openInt[strings.ToUpper(symbol)] = oi
}

// SetCandidates replaces the candidate-coin list surfaced on every Snapshot.
func (p *Provider) SetCandidates(candidates []executor.CandidateCoin) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.candidates = append([]executor.CandidateCoin(nil), candidates...)
}

// Snapshot implements market.MarketSnapshotProvider: it returns market data
// and open-interest entries for every watched symbol that has been seeded,
// plus the configured candidate list.
func (p *Provider) Snapshot(ctx context.Context, watchedSymbols []string) (market.SnapshotResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	symbols := make(map[string]struct{}, len(watchedSymbols)+len(p.candidates))
	for _, s := range watchedSymbols {
		symbols[strings.ToUpper(s)] = struct{}{}
	}
	for _, c := range p.candidates {
		symbols[strings.ToUpper(c.Symbol)] = struct{}{}
	}

	mdMap := make(map[string]executor.MarketData, len(symbols))
	oiMap := make(map[string]executor.OpenInterestData, len(symbols))
	for sym := range symbols {
		if md, ok := p.marketData[sym]; ok {
			mdMap[sym] = md
		}
		if oi, ok := p.openInt[sym]; ok {
			oiMap[sym] = oi
		}
	}

	candidates := append([]executor.CandidateCoin(nil), p.candidates...)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Symbol < candidates[j].Symbol })

	return market.SnapshotResult{
		Candidates:      candidates,
		MarketDataMap:   mdMap,
		OpenInterestMap: oiMap,
	}, nil
}
