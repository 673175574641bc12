// Package reconstruct folds a trader's decision journal into completed
// trades by pairing open and close actions.
package reconstruct

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nof0-api/pkg/journal"
)

// Trade is a completed open/close pair reconstructed from the journal. It is
// derived data, never itself persisted.
type Trade struct {
	Symbol     string
	Side       string
	OpenPrice  float64
	ClosePrice float64
	OpenTime   time.Time
	CloseTime  time.Time
	Quantity   float64
	Leverage   int
	TakeProfit float64
	StopLoss   float64
	PnL        float64
	PnLPct     float64
}

type openTrade struct {
	side       string
	price      float64
	at         time.Time
	quantity   float64
	leverage   int
	takeProfit float64
	stopLoss   float64
}

type openKey struct {
	symbol string
	side   string
}

// Reconstruct walks records in ascending cycle order and returns the ordered
// sequence of completed trades. Only successful actions participate; any
// residual opens left at end-of-journal are discarded; a close with no
// matching open is an orphan and is ignored.
func Reconstruct(records []journal.DecisionRecord) []Trade {
	open := make(map[openKey]openTrade)
	var trades []Trade

	for _, rec := range records {
		for _, action := range rec.Actions {
			if !action.Success {
				continue
			}
			switch {
			case isOpenAction(action.Action):
				side := sideFromOpenAction(action.Action)
				key := openKey{symbol: action.Symbol, side: side}
				tp, sl := liftTakeProfitStopLoss(rec.DecisionJSON, action.Symbol, action.Action)
				open[key] = openTrade{
					side:       side,
					price:      action.Price,
					at:         action.Timestamp,
					quantity:   action.Quantity,
					leverage:   action.Leverage,
					takeProfit: tp,
					stopLoss:   sl,
				}
			case isCloseAction(action.Action):
				side := sideFromCloseAction(action.Action)
				key := openKey{symbol: action.Symbol, side: side}
				ot, ok := open[key]
				if !ok {
					continue // orphan close
				}
				delete(open, key)
				trades = append(trades, finalize(action.Symbol, ot, action.Price, action.Timestamp))
			}
		}
	}

	return trades
}

func finalize(symbol string, ot openTrade, closePrice float64, closeAt time.Time) Trade {
	t := Trade{
		Symbol:     symbol,
		Side:       ot.side,
		OpenPrice:  ot.price,
		ClosePrice: closePrice,
		OpenTime:   ot.at,
		CloseTime:  closeAt,
		Quantity:   ot.quantity,
		Leverage:   ot.leverage,
		TakeProfit: ot.takeProfit,
		StopLoss:   ot.stopLoss,
	}

	qty := decimal.NewFromFloat(ot.quantity)
	openPx := decimal.NewFromFloat(ot.price)
	closePx := decimal.NewFromFloat(closePrice)

	var pnl decimal.Decimal
	if ot.side == "long" {
		pnl = qty.Mul(closePx.Sub(openPx))
	} else {
		pnl = qty.Mul(openPx.Sub(closePx))
	}
	t.PnL, _ = pnl.Float64()

	marginUsed := decimal.Zero
	if ot.leverage > 0 {
		marginUsed = qty.Mul(openPx).Div(decimal.NewFromInt(int64(ot.leverage)))
	}
	if !marginUsed.IsZero() {
		pct, _ := pnl.Div(marginUsed).Mul(decimal.NewFromInt(100)).Float64()
		t.PnLPct = pct
	}

	return t
}

func isOpenAction(action string) bool {
	return action == "open_long" || action == "open_short"
}

func isCloseAction(action string) bool {
	return strings.HasSuffix(action, "close_long") || strings.HasSuffix(action, "close_short")
}

func sideFromOpenAction(action string) string {
	if action == "open_short" {
		return "short"
	}
	return "long"
}

func sideFromCloseAction(action string) string {
	if strings.HasSuffix(action, "close_short") {
		return "short"
	}
	return "long"
}
