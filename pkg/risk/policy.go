// Package risk implements the Risk/Leverage Policy: a pure function mapping
// a candidate decision and the context it was produced from to an
// accept/reject/adjust verdict. It never calls an exchange or journal and
// never mutates its inputs.
package risk

import (
	"fmt"
	"strings"

	"nof0-api/pkg/executor"
)

// defaultLeverage is applied when a decision omits leverage entirely.
const defaultLeverage = 5

// Policy carries the configured leverage caps and auto-take-profit
// threshold spec §6's config schema exposes.
type Policy struct {
	BTCETHLeverage    int
	AltcoinLeverage   int
	AutoTakeProfitPct float64
}

// Verdict is the outcome of evaluating one Decision against a Policy.
type Verdict struct {
	Accept   bool
	Adjusted executor.Decision
	Reason   string
}

// ApplyAutoTakeProfit scans ctx.Positions for any whose unrealized profit,
// as a percentage of margin used, has reached policy.AutoTakeProfitPct, and
// prepends a synthetic close_<side> decision for each ahead of decisions —
// the AI's own decisions are considered only after any auto-take-profit
// closes. A no-op when AutoTakeProfitPct <= 0.
func ApplyAutoTakeProfit(policy Policy, ctx executor.Context, decisions []executor.Decision) []executor.Decision {
	if policy.AutoTakeProfitPct <= 0 {
		return decisions
	}

	var injected []executor.Decision
	for _, p := range ctx.Positions {
		if p.Leverage <= 0 {
			continue
		}
		marginUsed := p.Quantity * p.EntryPrice / float64(p.Leverage)
		if marginUsed <= 0 {
			continue
		}
		pct := p.UnrealizedProfit / marginUsed * 100
		if pct < policy.AutoTakeProfitPct {
			continue
		}
		action := executor.ActionCloseLong
		if p.Side == executor.SideShort {
			action = executor.ActionCloseShort
		}
		injected = append(injected, executor.Decision{
			Symbol:    p.Symbol,
			Action:    action,
			Quantity:  p.Quantity,
			Reasoning: fmt.Sprintf("auto-take-profit: unrealized profit %.2f%% of margin reached threshold %.2f%%", pct, policy.AutoTakeProfitPct),
		})
	}

	if len(injected) == 0 {
		return decisions
	}
	return append(injected, decisions...)
}

// Evaluate applies the leverage clamp, margin gate, position cap, and
// symbol gate spec §4.H mandates, returning a verdict without ever
// erroring: rejection is communicated via Accept=false+Reason.
func Evaluate(policy Policy, ctx executor.Context, d executor.Decision) Verdict {
	adjusted := d

	switch d.Action {
	case executor.ActionHold, executor.ActionWait:
		return Verdict{Accept: true, Adjusted: adjusted, Reason: "no position change requested"}

	case executor.ActionCloseLong, executor.ActionCloseShort:
		wantSide := executor.SideLong
		if d.Action == executor.ActionCloseShort {
			wantSide = executor.SideShort
		}
		if !hasPosition(ctx.Positions, d.Symbol, wantSide) {
			return Verdict{Accept: false, Reason: fmt.Sprintf("no matching %s position to close for %s", wantSide, d.Symbol)}
		}
		return Verdict{Accept: true, Adjusted: adjusted, Reason: "close accepted"}

	case executor.ActionOpenLong, executor.ActionOpenShort:
		// falls through to the full open-position gate below

	default:
		return Verdict{Accept: false, Reason: fmt.Sprintf("unknown action %q", d.Action)}
	}

	if strings.TrimSpace(d.Symbol) == "" {
		return Verdict{Accept: false, Reason: "symbol is required"}
	}

	// Symbol gate: the symbol must be one the scheduler fetched market data
	// for this cycle.
	md, hasMarketData := ctx.MarketDataMap[d.Symbol]
	if !hasMarketData {
		return Verdict{Accept: false, Reason: fmt.Sprintf("no market data for symbol %s", d.Symbol)}
	}

	// Position cap / no pyramiding / no hedging: an existing position on
	// this symbol, either side, blocks any further open.
	for _, p := range ctx.Positions {
		if strings.EqualFold(p.Symbol, d.Symbol) {
			return Verdict{Accept: false, Reason: fmt.Sprintf("position already open on %s; no add/hedge allowed", d.Symbol)}
		}
	}

	// Leverage clamp: defaults to 5x, capped per symbol class, further
	// tightened by a per-asset max_leverage indicator when present.
	cap := policy.AltcoinLeverage
	if cap <= 0 {
		cap = defaultLeverage
	}
	if executor.IsMajorCoin(d.Symbol) {
		cap = policy.BTCETHLeverage
		if cap <= 0 {
			cap = defaultLeverage
		}
	}
	if meta, ok := assetMaxLeverage(ctx, d.Symbol); ok && meta > 0 && meta < cap {
		cap = meta
	}

	leverage := d.Leverage
	if leverage <= 0 {
		leverage = defaultLeverage
	}
	if leverage > cap {
		leverage = cap
	}
	adjusted.Leverage = leverage

	// Margin gate: required margin must not exceed available balance.
	requiredMargin := adjusted.Quantity * md.LastPrice / float64(leverage)
	if requiredMargin > ctx.Account.AvailableBalance {
		return Verdict{Accept: false, Reason: fmt.Sprintf("required margin %.2f exceeds available balance %.2f", requiredMargin, ctx.Account.AvailableBalance)}
	}

	return Verdict{Accept: true, Adjusted: adjusted, Reason: "accepted"}
}

func hasPosition(positions []executor.Position, symbol string, side executor.Side) bool {
	for _, p := range positions {
		if strings.EqualFold(p.Symbol, symbol) && p.Side == side {
			return true
		}
	}
	return false
}

// assetMaxLeverage is an enrichment hook: when market data carries a
// per-asset max-leverage indicator (keyed "max_leverage"), it further
// tightens the configured cap.
func assetMaxLeverage(ctx executor.Context, symbol string) (int, bool) {
	md, ok := ctx.MarketDataMap[symbol]
	if !ok || md.Indicators == nil {
		return 0, false
	}
	v, ok := md.Indicators["max_leverage"]
	if !ok || v <= 0 {
		return 0, false
	}
	return int(v), true
}
