package reconstruct

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nof0-api/pkg/journal"
)

func action(a journal.ActionResult) journal.ActionResult {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	a.Success = true
	return a
}

func TestReconstructPairsOpenAndClose(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	records := []journal.DecisionRecord{
		{CycleNumber: 1, Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100, Leverage: 5, Timestamp: t0}),
		}},
		{CycleNumber: 2, Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 1, Price: 110, Timestamp: t1}),
		}},
	}

	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "BTC", tr.Symbol)
	assert.Equal(t, "long", tr.Side)
	assert.Equal(t, 100.0, tr.OpenPrice)
	assert.Equal(t, 110.0, tr.ClosePrice)
	assert.Equal(t, 10.0, tr.PnL)
	assert.InDelta(t, 50.0, tr.PnLPct, 0.001) // margin=100*1/5=20, pnl=10 -> 50%
}

func TestReconstructShortPnL(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_short", Symbol: "ETH", Quantity: 2, Price: 3000, Leverage: 10}),
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_short", Symbol: "ETH", Quantity: 2, Price: 2900}),
		}},
	}
	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	assert.Equal(t, 200.0, trades[0].PnL) // 2*(3000-2900)
}

func TestReconstructDropsOverlappingOpen(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100}),
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 2, Price: 105}),
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 2, Price: 110}),
		}},
	}
	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	assert.Equal(t, 105.0, trades[0].OpenPrice) // second open replaced the first
	assert.Equal(t, 2.0, trades[0].Quantity)
}

func TestReconstructIgnoresOrphanClose(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 1, Price: 100}),
		}},
	}
	trades := Reconstruct(records)
	assert.Empty(t, trades)
}

func TestReconstructDiscardsResidualOpenAtEndOfJournal(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100}),
		}},
	}
	trades := Reconstruct(records)
	assert.Empty(t, trades)
}

func TestReconstructSkipsFailedActions(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100, Success: false},
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 1, Price: 110}),
		}},
	}
	trades := Reconstruct(records)
	assert.Empty(t, trades) // no open ever succeeded, so close is an orphan
}

func TestReconstructHandlesZeroMarginAsZeroPnLPct(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100, Leverage: 0}),
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 1, Price: 110}),
		}},
	}
	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	assert.Equal(t, 0.0, trades[0].PnLPct)
}

func TestReconstructLiftsTakeProfitStopLossFromDecisionJSON(t *testing.T) {
	records := []journal.DecisionRecord{
		{
			DecisionJSON: `[{"symbol":"BTC","action":"open_long","take_profit":120,"stop_loss":90}]`,
			Actions: []journal.ActionResult{
				action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100}),
			},
		},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "close_long", Symbol: "BTC", Quantity: 1, Price: 110}),
		}},
	}
	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	assert.Equal(t, 120.0, trades[0].TakeProfit)
	assert.Equal(t, 90.0, trades[0].StopLoss)
}

func TestReconstructHandlesAutoCloseActionNaming(t *testing.T) {
	records := []journal.DecisionRecord{
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "open_long", Symbol: "BTC", Quantity: 1, Price: 100}),
		}},
		{Actions: []journal.ActionResult{
			action(journal.ActionResult{Action: "auto_close_long", Symbol: "BTC", Quantity: 1, Price: 130}),
		}},
	}
	trades := Reconstruct(records)
	require.Len(t, trades, 1)
	assert.Equal(t, 130.0, trades[0].ClosePrice)
}
