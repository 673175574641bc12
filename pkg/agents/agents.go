// Package agents implements the Multi-Agent Engine: fan a Context out to N
// independent Assemblers concurrently and reduce their FullDecisions to one
// via a configured consensus mode. It never evaluates risk and never talks
// to an exchange — callers run pkg/risk over the merged result themselves.
package agents

import (
	"context"
	"sort"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/sync/errgroup"

	"nof0-api/pkg/executor"
)

// ConsensusMode names the reduction rule applied to the set of valid agent
// results.
type ConsensusMode string

const (
	ConsensusVoting    ConsensusMode = "voting"
	ConsensusWeighted  ConsensusMode = "weighted"
	ConsensusUnanimous ConsensusMode = "unanimous"
	ConsensusBest      ConsensusMode = "best"
)

// AgentConfig describes one participating agent.
type AgentConfig struct {
	ID     string
	Weight float64 // only consulted under ConsensusWeighted
}

// Config carries the multi-agent run parameters spec §6 exposes.
type Config struct {
	Agents      []AgentConfig
	Consensus   ConsensusMode
	FastFirst   bool
	MinAgents   int
	MaxWaitTime time.Duration
}

// Agent pairs an AgentConfig with the Assembler that will run it.
type Agent struct {
	Config    AgentConfig
	Assembler executor.Assembler
}

// result is one agent's outcome, valid only when Err is nil and Decision has
// at least one Decision.
type result struct {
	agentID  string
	decision executor.FullDecision
	err      error
}

func (r result) valid() bool {
	return r.err == nil && len(r.decision.Decisions) > 0
}

// Run executes every agent concurrently against its own clone of input,
// collects results per cfg's fast-first/min-agents/max-wait-time rules, and
// reduces the valid results to a single FullDecision via cfg.Consensus.
func Run(ctx context.Context, cfg Config, agents []Agent, input executor.Context, riskBudget string) executor.FullDecision {
	if len(agents) == 0 {
		return executor.Wait("no agents configured")
	}

	results := collect(ctx, cfg, agents, input, riskBudget)

	valid := make([]result, 0, len(results))
	for _, r := range results {
		if r.valid() {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return executor.Wait("All agents returned errors")
	}

	// Results arrive in completion order; restore the configured agent order
	// so "first agent" and "first three agents" do not depend on timing.
	rank := make(map[string]int, len(agents))
	for i, a := range agents {
		rank[a.Config.ID] = i
	}
	sort.SliceStable(valid, func(i, j int) bool { return rank[valid[i].agentID] < rank[valid[j].agentID] })

	return merge(cfg, agents, valid)
}

// collect launches one goroutine per agent and gathers results, honoring
// fast-first early return and the hard max-wait-time deadline. It always
// returns once every launched task has either reported in or been abandoned
// past the deadline; abandoned tasks' results are simply never waited on.
func collect(ctx context.Context, cfg Config, agents []Agent, input executor.Context, riskBudget string) []result {
	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.MaxWaitTime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.MaxWaitTime)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	out := make(chan result, len(agents))
	var g errgroup.Group
	for _, a := range agents {
		a := a
		g.Go(func() error {
			clone := input.Clone()
			decision, err := a.Assembler.Assemble(runCtx, clone, riskBudget)
			if err != nil {
				logx.WithContext(ctx).Errorf("agents: agent %s failed: %v", a.Config.ID, err)
			}
			select {
			case out <- result{agentID: a.Config.ID, decision: decision, err: err}:
			case <-runCtx.Done():
			}
			// A per-agent failure never aborts the other agents' tasks — only
			// fast-first or max_wait_time does that, so this always returns nil.
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(out)
	}()

	minAgents := cfg.MinAgents
	if minAgents <= 0 {
		minAgents = len(agents)
	}

	results := make([]result, 0, len(agents))
	validCount := 0
	for {
		select {
		case r, ok := <-out:
			if !ok {
				return results
			}
			results = append(results, r)
			if r.valid() {
				validCount++
			}
			if cfg.FastFirst && validCount >= minAgents {
				return results
			}
		case <-runCtx.Done():
			return results
		}
	}
}

// merge reduces valid results to one FullDecision per cfg.Consensus.
func merge(cfg Config, agents []Agent, valid []result) executor.FullDecision {
	weights := resolveWeights(cfg, agents)

	var merged executor.FullDecision
	switch cfg.Consensus {
	case ConsensusWeighted:
		merged = mergeWeighted(valid, weights)
	case ConsensusUnanimous:
		merged = mergeUnanimous(valid)
	case ConsensusBest:
		merged = mergeBest(valid)
	default:
		merged = mergeVoting(valid)
	}

	merged.CoTTrace = concatCoT(valid)
	return merged
}

// resolveWeights assigns 1/n to any agent whose configured weight is unset,
// then normalizes the full set so the weights sum to 1.
func resolveWeights(cfg Config, agents []Agent) map[string]float64 {
	n := len(agents)
	if n == 0 {
		return nil
	}
	raw := make(map[string]float64, n)
	for _, a := range agents {
		w := a.Config.Weight
		if w <= 0 {
			w = 1.0 / float64(n)
		}
		raw[a.Config.ID] = w
	}
	var sum float64
	for _, w := range raw {
		sum += w
	}
	if sum <= 0 {
		return raw
	}
	for id, w := range raw {
		raw[id] = w / sum
	}
	return raw
}

// concatCoT tags and concatenates the first three agents' chain-of-thought
// traces, in configured agent order.
func concatCoT(valid []result) string {
	n := len(valid)
	if n > 3 {
		n = 3
	}
	var b []byte
	for i := 0; i < n; i++ {
		r := valid[i]
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, []byte("["+r.agentID+"] "+r.decision.CoTTrace)...)
	}
	return string(b)
}

type decisionKey struct {
	symbol string
	action executor.Action
}
