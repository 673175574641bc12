package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nof0-api/pkg/reconstruct"
)

func sampleTrade(side string, openPx, closePx, qty float64, leverage int) reconstruct.Trade {
	return reconstruct.Trade{
		Symbol:     "BTC",
		Side:       side,
		OpenPrice:  openPx,
		ClosePrice: closePx,
		OpenTime:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		CloseTime:  time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC),
		Quantity:   qty,
		Leverage:   leverage,
	}
}

func TestZeroThresholdReproducesHistoricalOutcome(t *testing.T) {
	trades := []reconstruct.Trade{sampleTrade("long", 100, 150, 1, 10)}
	report := RunAutoCloseBacktest(trades, []float64{0})
	require.Len(t, report.Results, 1)
	assert.Equal(t, 50.0, report.Results[0].TotalPnL)
	assert.Equal(t, 0.0, report.Results[0].MissedProfit)
}

func TestAutoCloseClipsProfitableLongAndTallysMissedProfit(t *testing.T) {
	// threshold=10%, leverage=10 -> price_change_pct = 10/(100*10) = 1%
	// auto-close price = 100*1.01 = 101; historical close=150 crossed it.
	trades := []reconstruct.Trade{sampleTrade("long", 100, 150, 1, 10)}
	report := RunAutoCloseBacktest(trades, []float64{10})
	require.Len(t, report.Results, 1)
	r := report.Results[0]
	assert.InDelta(t, 1.0, r.TotalPnL, 0.001)
	assert.InDelta(t, 49.0, r.MissedProfit, 0.001)
	assert.Equal(t, 1, r.EarlyCloseCount)
}

func TestAutoCloseDoesNotReclipLosses(t *testing.T) {
	trades := []reconstruct.Trade{sampleTrade("long", 100, 90, 1, 10)}
	report := RunAutoCloseBacktest(trades, []float64{10})
	r := report.Results[0]
	assert.Equal(t, -10.0, r.TotalPnL)
	assert.Equal(t, 0.0, r.MissedProfit)
	assert.Equal(t, 0, r.EarlyCloseCount)
}

func TestProfitFactorCapsAt999WhenNoLosses(t *testing.T) {
	trades := []reconstruct.Trade{sampleTrade("long", 100, 110, 1, 10)}
	report := RunAutoCloseBacktest(trades, []float64{0})
	assert.Equal(t, 999.0, report.Results[0].ProfitFactor)
}

func TestBestSelectionsBreakTiesOnLowestThreshold(t *testing.T) {
	// A losing trade never reaches any auto-close price, so every threshold
	// yields the same -10 PnL and the tie goes to the lowest threshold.
	trades := []reconstruct.Trade{sampleTrade("long", 100, 90, 1, 10)}
	report := RunAutoCloseBacktest(trades, []float64{20, 10, 30})
	assert.Equal(t, 10.0, report.BestByTotalPnL.ThresholdPct)
}

func TestWinRateAndCountsAcrossMixedTrades(t *testing.T) {
	trades := []reconstruct.Trade{
		sampleTrade("long", 100, 110, 1, 10),
		sampleTrade("long", 100, 90, 1, 10),
		sampleTrade("long", 100, 100, 1, 10),
	}
	report := RunAutoCloseBacktest(trades, []float64{0})
	r := report.Results[0]
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 1, r.Neutral)
	assert.InDelta(t, 33.333, r.WinRate, 0.01)
}
