package reconstruct

import "encoding/json"

type decisionWire struct {
	Symbol     string  `json:"symbol"`
	Action     string  `json:"action"`
	TakeProfit float64 `json:"take_profit"`
	StopLoss   float64 `json:"stop_loss"`
}

// liftTakeProfitStopLoss extracts the take-profit/stop-loss the opening
// decision requested for symbol, by scanning the cycle's decision_json for
// the entry matching both symbol and the given open action. Best-effort:
// malformed or absent JSON yields zero values, which Reconstruct treats as
// "not set" rather than an error — the journal's raw_response/cot_trace
// remain the source of truth for audit, not this derived field.
func liftTakeProfitStopLoss(decisionJSON, symbol, action string) (takeProfit, stopLoss float64) {
	if decisionJSON == "" {
		return 0, 0
	}
	var wire []decisionWire
	if err := json.Unmarshal([]byte(decisionJSON), &wire); err != nil {
		return 0, 0
	}
	for _, d := range wire {
		if d.Symbol == symbol && d.Action == action {
			return d.TakeProfit, d.StopLoss
		}
	}
	return 0, 0
}
