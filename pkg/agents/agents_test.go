package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nof0-api/pkg/executor"
)

// fakeAssembler returns a fixed FullDecision or error, optionally after a
// delay, ignoring its input entirely.
type fakeAssembler struct {
	decision executor.FullDecision
	err      error
	delay    time.Duration
}

func (f *fakeAssembler) Assemble(ctx context.Context, _ executor.Context, _ string) (executor.FullDecision, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return executor.FullDecision{}, ctx.Err()
		}
	}
	if f.err != nil {
		return executor.FullDecision{}, f.err
	}
	return f.decision, nil
}

func decide(symbol string, action executor.Action, confidence int) executor.Decision {
	return executor.Decision{Symbol: symbol, Action: action, Confidence: confidence}
}

func fd(decisions ...executor.Decision) executor.FullDecision {
	return executor.FullDecision{Decisions: decisions}
}

func agentsOf(assemblers ...executor.Assembler) []Agent {
	out := make([]Agent, len(assemblers))
	for i, a := range assemblers {
		out[i] = Agent{Config: AgentConfig{ID: "agent" + string(rune('1'+i))}, Assembler: a}
	}
	return out
}

func TestRunNoAgentsReturnsWait(t *testing.T) {
	out := Run(context.Background(), Config{}, nil, executor.Context{}, "")
	assert.Equal(t, executor.ActionWait, out.Decisions[0].Action)
}

func TestRunAllAgentsErrorReturnsWait(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{err: errors.New("boom")},
		&fakeAssembler{err: errors.New("boom")},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusVoting}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, executor.ActionWait, out.Decisions[0].Action)
	assert.Equal(t, "All agents returned errors", out.Decisions[0].Reasoning)
}

// S4 — Voting consensus, 3 agents: A1/A2 open_long BTC, A3 waits. Threshold
// floor(3/2)=1, (BTC,open_long) count=2 > 1 wins.
func TestVotingConsensusThreeAgents(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 70))},
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))},
		&fakeAssembler{decision: executor.Wait("nothing compelling")},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusVoting}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, "BTC", out.Decisions[0].Symbol)
	assert.Equal(t, executor.ActionOpenLong, out.Decisions[0].Action)
}

func TestVotingConsensusNoQuorumWaits(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 70))},
		&fakeAssembler{decision: fd(decide("ETH", executor.ActionOpenShort, 70))},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusVoting}, agents, executor.Context{}, "")
	assert.Equal(t, executor.ActionWait, out.Decisions[0].Action)
}

// S5 — Unanimous consensus, disagreement: A1 ETH open_short, A2 ETH
// open_long. No agreement, so the merge waits.
func TestUnanimousDisagreementWaits(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(decide("ETH", executor.ActionOpenShort, 60))},
		&fakeAssembler{decision: fd(decide("ETH", executor.ActionOpenLong, 60))},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusUnanimous}, agents, executor.Context{}, "")
	assert.Equal(t, executor.ActionWait, out.Decisions[0].Action)
}

func TestUnanimousAgreementReturnsFirstAgentDecision(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 60))},
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 95))}, // numeric fields ignored
	)
	out := Run(context.Background(), Config{Consensus: ConsensusUnanimous}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, 60, out.Decisions[0].Confidence, "first agent's decision returned verbatim")
}

func TestWeightedConsensusMajorityWeightWins(t *testing.T) {
	agents := []Agent{
		{Config: AgentConfig{ID: "a1", Weight: 0.6}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))}},
		{Config: AgentConfig{ID: "a2", Weight: 0.4}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenShort, 40))}},
	}
	out := Run(context.Background(), Config{Consensus: ConsensusWeighted}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, executor.ActionOpenLong, out.Decisions[0].Action)
}

func TestWeightedConsensusDefaultsToEqualWeightWhenUnset(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 100))},
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 0))},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusWeighted}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, 50, out.Decisions[0].Confidence, "weight-weighted mean of two equally-weighted agents")
}

func TestWeightedConsensusNoMajorityWaits(t *testing.T) {
	agents := []Agent{
		{Config: AgentConfig{ID: "a1", Weight: 0.5}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))}},
		{Config: AgentConfig{ID: "a2", Weight: 0.5}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenShort, 40))}},
	}
	out := Run(context.Background(), Config{Consensus: ConsensusWeighted}, agents, executor.Context{}, "")
	assert.Equal(t, executor.ActionWait, out.Decisions[0].Action)
}

func TestBestConsensusPicksHighestConfidenceTradeOverWait(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: executor.Wait("unclear")},
		&fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 55))},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusBest}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, executor.ActionOpenLong, out.Decisions[0].Action)
}

func TestBestConsensusAllWaitPicksHighestConfidenceWait(t *testing.T) {
	agents := agentsOf(
		&fakeAssembler{decision: fd(executor.Decision{Symbol: executor.AllSymbol, Action: executor.ActionWait, Confidence: 20})},
		&fakeAssembler{decision: fd(executor.Decision{Symbol: executor.AllSymbol, Action: executor.ActionWait, Confidence: 90})},
	)
	out := Run(context.Background(), Config{Consensus: ConsensusBest}, agents, executor.Context{}, "")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, 90, out.Decisions[0].Confidence)
}

func TestCoTTraceConcatenatesFirstThreeAgentsTaggedByID(t *testing.T) {
	agents := []Agent{
		{Config: AgentConfig{ID: "a1"}, Assembler: &fakeAssembler{decision: executor.FullDecision{Decisions: []executor.Decision{decide("BTC", executor.ActionHold, 0)}, CoTTrace: "trace-a1"}}},
		{Config: AgentConfig{ID: "a2"}, Assembler: &fakeAssembler{decision: executor.FullDecision{Decisions: []executor.Decision{decide("BTC", executor.ActionHold, 0)}, CoTTrace: "trace-a2"}}},
	}
	out := Run(context.Background(), Config{Consensus: ConsensusVoting}, agents, executor.Context{}, "")
	assert.Contains(t, out.CoTTrace, "[a1] trace-a1")
	assert.Contains(t, out.CoTTrace, "[a2] trace-a2")
}

func TestFastFirstReturnsOnceMinAgentsValid(t *testing.T) {
	agents := []Agent{
		{Config: AgentConfig{ID: "fast1"}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))}},
		{Config: AgentConfig{ID: "fast2"}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))}},
		{Config: AgentConfig{ID: "slow"}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80)), delay: 2 * time.Second}},
	}
	start := time.Now()
	out := Run(context.Background(), Config{Consensus: ConsensusVoting, FastFirst: true, MinAgents: 2}, agents, executor.Context{}, "")
	assert.Less(t, time.Since(start), time.Second, "fast_first should not wait for the slow agent")
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, executor.ActionOpenLong, out.Decisions[0].Action)
}

func TestMaxWaitTimeAbortsSlowAgents(t *testing.T) {
	agents := []Agent{
		{Config: AgentConfig{ID: "timely"}, Assembler: &fakeAssembler{decision: fd(decide("BTC", executor.ActionOpenLong, 80))}},
		{Config: AgentConfig{ID: "stuck"}, Assembler: &fakeAssembler{decision: fd(decide("ETH", executor.ActionOpenShort, 80)), delay: 5 * time.Second}},
	}
	start := time.Now()
	out := Run(context.Background(), Config{Consensus: ConsensusUnanimous, MaxWaitTime: 100 * time.Millisecond}, agents, executor.Context{}, "")
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, out.Decisions, 1)
	assert.Equal(t, "BTC", out.Decisions[0].Symbol, "only the result that arrived before the deadline is used")
}
