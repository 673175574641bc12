package agents

import (
	"sort"

	"nof0-api/pkg/executor"
)

// mergeVoting groups decisions by (symbol, action); a group wins if its
// count exceeds floor(n/2) clamped to at least 1, where n is the number of
// valid agent results (so a single result never wins on its own). Winners
// are emitted in a stable order (first-seen across agents). No
// winners falls back to wait.
func mergeVoting(valid []result) executor.FullDecision {
	n := len(valid)
	threshold := n / 2
	if threshold < 1 {
		threshold = 1
	}

	counts := make(map[decisionKey]int)
	first := make(map[decisionKey]executor.Decision)
	var order []decisionKey

	for _, r := range valid {
		seenInAgent := make(map[decisionKey]bool)
		for _, d := range r.decision.Decisions {
			k := decisionKey{symbol: d.Symbol, action: d.Action}
			if seenInAgent[k] {
				continue
			}
			seenInAgent[k] = true
			if counts[k] == 0 {
				order = append(order, k)
				first[k] = d
			}
			counts[k]++
		}
	}

	var winners []executor.Decision
	for _, k := range order {
		if counts[k] > threshold {
			winners = append(winners, first[k])
		}
	}
	if len(winners) == 0 {
		return executor.Wait("voting: no decision reached quorum")
	}
	return executor.FullDecision{Decisions: winners}
}

// mergeWeighted sums each agent's normalized weight per (symbol, action)
// group; a group wins if its weight sum exceeds 0.5. The winning decision's
// confidence is the weight-weighted mean confidence of its contributors.
// Ties (multiple winning groups for the same symbol) are broken by higher
// weight sum, then alphabetical action.
func mergeWeighted(valid []result, weights map[string]float64) executor.FullDecision {
	type group struct {
		key        decisionKey
		weightSum  float64
		confSum    float64 // weight-weighted
		sample     executor.Decision
		firstOrder int
	}
	groups := make(map[decisionKey]*group)
	var order []decisionKey

	for _, r := range valid {
		w := weights[r.agentID]
		seenInAgent := make(map[decisionKey]bool)
		for _, d := range r.decision.Decisions {
			k := decisionKey{symbol: d.Symbol, action: d.Action}
			if seenInAgent[k] {
				continue
			}
			seenInAgent[k] = true
			g, ok := groups[k]
			if !ok {
				g = &group{key: k, sample: d, firstOrder: len(order)}
				groups[k] = g
				order = append(order, k)
			}
			g.weightSum += w
			g.confSum += w * float64(d.Confidence)
		}
	}

	var winners []*group
	for _, k := range order {
		g := groups[k]
		if g.weightSum > 0.5 {
			winners = append(winners, g)
		}
	}
	if len(winners) == 0 {
		return executor.Wait("weighted: no decision reached majority weight")
	}

	// Break ties per-symbol: keep only the highest weight_sum action for a
	// symbol, then alphabetically by action on remaining ties.
	bySymbol := make(map[string]*group)
	for _, g := range winners {
		cur, ok := bySymbol[g.key.symbol]
		if !ok {
			bySymbol[g.key.symbol] = g
			continue
		}
		switch {
		case g.weightSum > cur.weightSum:
			bySymbol[g.key.symbol] = g
		case g.weightSum == cur.weightSum && g.key.action < cur.key.action:
			bySymbol[g.key.symbol] = g
		}
	}

	final := make([]*group, 0, len(bySymbol))
	for _, g := range bySymbol {
		final = append(final, g)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].firstOrder < final[j].firstOrder })

	decisions := make([]executor.Decision, 0, len(final))
	for _, g := range final {
		d := g.sample
		if g.weightSum > 0 {
			d.Confidence = int(g.confSum / g.weightSum)
		}
		decisions = append(decisions, d)
	}
	return executor.FullDecision{Decisions: decisions}
}

// mergeUnanimous returns the first agent's FullDecision unmodified iff every
// other agent's decision set is the same under (symbol, action) set
// equality (numeric fields ignored); otherwise emits wait.
func mergeUnanimous(valid []result) executor.FullDecision {
	base := keySet(valid[0].decision.Decisions)
	for _, r := range valid[1:] {
		if !base.equals(keySet(r.decision.Decisions)) {
			return executor.Wait("unanimous: agents disagree")
		}
	}
	return valid[0].decision
}

type keySetT map[decisionKey]struct{}

func keySet(decisions []executor.Decision) keySetT {
	s := make(keySetT, len(decisions))
	for _, d := range decisions {
		s[decisionKey{symbol: d.Symbol, action: d.Action}] = struct{}{}
	}
	return s
}

func (a keySetT) equals(b keySetT) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// mergeBest picks the agent result whose decisions contain the highest
// confidence non-wait trade action; if no non-wait action exists across any
// agent, picks the highest-confidence wait. Trade actions outrank wait at
// equal confidence.
func mergeBest(valid []result) executor.FullDecision {
	type candidate struct {
		decision   executor.Decision
		full       executor.FullDecision
		isTrade    bool
		confidence int
	}
	var best *candidate

	better := func(c candidate) bool {
		if best == nil {
			return true
		}
		if c.isTrade != best.isTrade {
			return c.isTrade
		}
		return c.confidence > best.confidence
	}

	for _, r := range valid {
		for _, d := range r.decision.Decisions {
			c := candidate{
				decision:   d,
				full:       r.decision,
				isTrade:    isTradeAction(d.Action),
				confidence: d.Confidence,
			}
			if better(c) {
				cc := c
				best = &cc
			}
		}
	}
	if best == nil {
		return executor.Wait("best: no decisions across agents")
	}
	return executor.FullDecision{
		Decisions:   []executor.Decision{best.decision},
		UserPrompt:  best.full.UserPrompt,
		RawResponse: best.full.RawResponse,
	}
}

func isTradeAction(a executor.Action) bool {
	switch a {
	case executor.ActionOpenLong, executor.ActionOpenShort, executor.ActionCloseLong, executor.ActionCloseShort:
		return true
	default:
		return false
	}
}
