package backtest

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"nof0-api/pkg/reconstruct"
)

// StrategyResult is the simulated performance of one auto-close threshold
// over a sequence of reconstructed trades.
type StrategyResult struct {
	ThresholdPct    float64
	TotalPnL        float64
	Wins            int
	Losses          int
	Neutral         int
	WinRate         float64
	AvgWin          float64
	AvgLoss         float64
	ProfitFactor    float64
	AvgHoldMinutes  float64
	EarlyCloseCount int
	MissedProfit    float64
	MaxDrawdownPct  float64
	Sharpe          float64
	EndingEquity    float64
}

// Report is the ranked output of a backtest run across a family of
// thresholds, including 0 (no auto-close, i.e. the historical outcome).
type Report struct {
	Results        []StrategyResult
	BestBySharpe   StrategyResult
	BestByTotalPnL StrategyResult
	BestByWinRate  StrategyResult
}

const startingEquity = 10000.0

// RunAutoCloseBacktest simulates every threshold in thresholds (percent of
// margin) over trades and returns one StrategyResult per threshold plus the
// best-by-{sharpe,pnl,win_rate} selections, ties broken by the lowest
// threshold.
func RunAutoCloseBacktest(trades []reconstruct.Trade, thresholds []float64) Report {
	results := make([]StrategyResult, 0, len(thresholds))
	for _, p := range thresholds {
		results = append(results, simulateThreshold(trades, p))
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].ThresholdPct < results[j].ThresholdPct })

	return Report{
		Results:        results,
		BestBySharpe:   bestBy(results, func(r StrategyResult) float64 { return r.Sharpe }),
		BestByTotalPnL: bestBy(results, func(r StrategyResult) float64 { return r.TotalPnL }),
		BestByWinRate:  bestBy(results, func(r StrategyResult) float64 { return r.WinRate }),
	}
}

func bestBy(results []StrategyResult, score func(StrategyResult) float64) StrategyResult {
	best := results[0]
	bestScore := score(best)
	for _, r := range results[1:] {
		s := score(r)
		if s > bestScore {
			best, bestScore = r, s
		}
		// results is sorted by ascending threshold, so the first result
		// encountered with the max score is already the lowest-threshold tie.
	}
	return best
}

func simulateThreshold(trades []reconstruct.Trade, thresholdPct float64) StrategyResult {
	res := StrategyResult{ThresholdPct: thresholdPct}
	equity := decimal.NewFromFloat(startingEquity)
	maxEquity := equity
	equityCurve := []decimal.Decimal{equity}

	var sumWins, sumLosses decimal.Decimal
	var holdMinutesTotal float64

	for _, tr := range trades {
		closePrice := tr.ClosePrice
		missed := 0.0
		earlyClosed := false

		if thresholdPct > 0 && tr.Leverage > 0 {
			priceChangePct := thresholdPct / (100 * float64(tr.Leverage))
			var autoClosePrice float64
			if tr.Side == "long" {
				autoClosePrice = tr.OpenPrice * (1 + priceChangePct)
			} else {
				autoClosePrice = tr.OpenPrice * (1 - priceChangePct)
			}

			crossedProfitably := (tr.Side == "long" && tr.ClosePrice >= autoClosePrice) ||
				(tr.Side == "short" && tr.ClosePrice <= autoClosePrice)
			if crossedProfitably {
				missed = tr.Quantity * math.Abs(tr.ClosePrice-autoClosePrice)
				closePrice = autoClosePrice
				earlyClosed = true
			}
		}

		pnl := simulatedPnL(tr, closePrice)
		pnlF, _ := pnl.Float64()

		switch {
		case pnlF > 0:
			res.Wins++
			sumWins = sumWins.Add(pnl)
		case pnlF < 0:
			res.Losses++
			sumLosses = sumLosses.Add(pnl)
		default:
			res.Neutral++
		}

		res.TotalPnL += pnlF
		res.MissedProfit += missed
		if earlyClosed {
			res.EarlyCloseCount++
		}
		holdMinutesTotal += tr.CloseTime.Sub(tr.OpenTime).Minutes()

		equity = equity.Add(pnl)
		equityCurve = append(equityCurve, equity)
		if equity.GreaterThan(maxEquity) {
			maxEquity = equity
		}
		if maxEquity.IsPositive() {
			dd, _ := maxEquity.Sub(equity).Div(maxEquity).Mul(decimal.NewFromInt(100)).Float64()
			if dd > res.MaxDrawdownPct {
				res.MaxDrawdownPct = dd
			}
		}
	}

	total := res.Wins + res.Losses + res.Neutral
	if total > 0 {
		res.WinRate = float64(res.Wins) / float64(total) * 100
		res.AvgHoldMinutes = holdMinutesTotal / float64(total)
	}
	if res.Wins > 0 {
		avgWin, _ := sumWins.Div(decimal.NewFromInt(int64(res.Wins))).Float64()
		res.AvgWin = avgWin
	}
	if res.Losses > 0 {
		avgLoss, _ := sumLosses.Div(decimal.NewFromInt(int64(res.Losses))).Float64()
		res.AvgLoss = avgLoss
	}

	absLosses := sumLosses.Abs()
	switch {
	case absLosses.IsZero() && res.Wins > 0:
		res.ProfitFactor = 999
	case !absLosses.IsZero():
		pf, _ := sumWins.Div(absLosses).Float64()
		res.ProfitFactor = pf
	}

	res.Sharpe = sharpeFromEquityCurve(equityCurve)
	endingEquity, _ := equity.Float64()
	res.EndingEquity = endingEquity

	return res
}

func simulatedPnL(tr reconstruct.Trade, closePrice float64) decimal.Decimal {
	qty := decimal.NewFromFloat(tr.Quantity)
	open := decimal.NewFromFloat(tr.OpenPrice)
	closeD := decimal.NewFromFloat(closePrice)
	if tr.Side == "long" {
		return qty.Mul(closeD.Sub(open))
	}
	return qty.Mul(open.Sub(closeD))
}

// sharpeFromEquityCurve mirrors the teacher's per-step-return Sharpe formula
// (mean/stdev of (eq_i - eq_{i-1})/eq_{i-1}), not annualized per spec §4.C —
// the annualization factor on numerator and denominator cancels, so it is
// omitted rather than computed and discarded.
func sharpeFromEquityCurve(curve []decimal.Decimal) float64 {
	if len(curve) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1]
		if prev.IsZero() {
			continue
		}
		r, _ := curve[i].Sub(prev).Div(prev).Float64()
		rets = append(rets, r)
	}
	if len(rets) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))

	variance := 0.0
	for _, r := range rets {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(rets))

	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}
