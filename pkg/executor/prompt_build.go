package executor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// BuildPromptInputs renders the dynamic sections used by the executor
// prompt template. riskBudget is a pre-formatted summary supplied by the
// caller (see PromptInputs.RiskBudget).
func BuildPromptInputs(ctx Context, riskBudget string) PromptInputs {
	current := ctx.CurrentTime
	if current.IsZero() {
		current = time.Now().UTC()
	}
	return PromptInputs{
		CurrentTime:     current.UTC().Format(time.RFC3339),
		RuntimeMinutes:  ctx.RuntimeMinutes,
		AccountOverview: formatAccount(ctx.Account),
		OpenPositions:   formatPositions(ctx.Positions),
		RiskBudget:      riskBudget,
		PerformanceView: formatPerformance(ctx.Performance),
		CandidateCoins:  formatCandidates(ctx.CandidateCoins),
		MarketSnapshots: formatMarketJSON(ctx.MarketDataMap),
	}
}

func formatAccount(a AccountSnapshot) string {
	return fmt.Sprintf("balance=%.2f, avail=%.2f, upnl=%.2f, margin_used=%.2f%%, positions=%d",
		a.TotalBalance, a.AvailableBalance, a.UnrealizedProfit, a.MarginUsedPct, a.PositionCount,
	)
}

func formatPositions(positions []Position) string {
	if len(positions) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(positions))
	for _, p := range positions {
		items = append(items, fmt.Sprintf("%s %s qty=%.4f lev=%dx entry=%.4f mark=%.4f upnl=%.2f liq=%.4f",
			p.Symbol, p.Side, p.Quantity, p.Leverage, p.EntryPrice, p.MarkPrice, p.UnrealizedProfit, p.LiquidationPrice,
		))
	}
	sort.Strings(items)
	return strings.Join(items, "\n")
}

func formatCandidates(cands []CandidateCoin) string {
	if len(cands) == 0 {
		return "(none)"
	}
	items := make([]string, 0, len(cands))
	for _, c := range cands {
		items = append(items, fmt.Sprintf("%s [%s]", c.Symbol, strings.Join(c.Sources, ",")))
	}
	sort.Strings(items)
	return strings.Join(items, ", ")
}

func formatPerformance(p *PerformanceSummary) string {
	if p == nil {
		return "(n/a)"
	}
	return fmt.Sprintf("sharpe=%.3f, win_rate=%.1f%%, trades=%d, updated=%s",
		p.SharpeRatio, p.WinRate*100, p.TotalTrades, p.UpdatedAt.UTC().Format(time.RFC3339),
	)
}

func formatMarketJSON(snaps map[string]MarketData) string {
	if len(snaps) == 0 {
		return "{}"
	}
	type lite struct {
		Price      float64            `json:"price"`
		Change1h   float64            `json:"change_1h"`
		Change4h   float64            `json:"change_4h"`
		Funding    float64            `json:"funding,omitempty"`
		Indicators map[string]float64 `json:"indicators,omitempty"`
	}
	out := make(map[string]lite, len(snaps))
	for sym, s := range snaps {
		out[sym] = lite{
			Price:      s.LastPrice,
			Change1h:   s.Change1h,
			Change4h:   s.Change4h,
			Funding:    s.FundingPct,
			Indicators: s.Indicators,
		}
	}
	b, _ := json.Marshal(out)
	return string(b)
}
