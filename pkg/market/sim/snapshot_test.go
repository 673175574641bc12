package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nof0-api/pkg/executor"
)

func TestSnapshotReturnsSeededDataForWatchedAndCandidateSymbols(t *testing.T) {
	p := New()
	p.SetMarketData(executor.MarketData{Symbol: "BTC", LastPrice: 100})
	p.SetOpenInterest("BTC", executor.OpenInterestData{Latest: 500, Average: 450})
	p.SetCandidates([]executor.CandidateCoin{{Symbol: "ETH", Sources: []string{"volume"}}})

	result, err := p.Snapshot(context.Background(), []string{"BTC"})
	require.NoError(t, err)

	require.Contains(t, result.MarketDataMap, "BTC")
	assert.Equal(t, 100.0, result.MarketDataMap["BTC"].LastPrice)
	assert.Equal(t, 500.0, result.OpenInterestMap["BTC"].Latest)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "ETH", result.Candidates[0].Symbol)
}

func TestSnapshotOmitsUnseededSymbols(t *testing.T) {
	p := New()
	result, err := p.Snapshot(context.Background(), []string{"DOGE"})
	require.NoError(t, err)
	assert.NotContains(t, result.MarketDataMap, "DOGE")
}

func TestSnapshotCandidatesAreStableSorted(t *testing.T) {
	p := New()
	p.SetCandidates([]executor.CandidateCoin{{Symbol: "ZEC"}, {Symbol: "BTC"}, {Symbol: "ETH"}})
	result, err := p.Snapshot(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, []string{"BTC", "ETH", "ZEC"}, []string{result.Candidates[0].Symbol, result.Candidates[1].Symbol, result.Candidates[2].Symbol})
}
