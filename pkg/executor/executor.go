package executor

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/llm"
)

// Assembler is the Decision Assembler: it renders the prompt for one cycle,
// calls the configured CompletionClient, and parses the response into a
// FullDecision. It performs no risk/leverage validation — that is
// pkg/risk's job, applied by the caller after assembly.
type Assembler interface {
	Assemble(ctx context.Context, input Context, riskBudget string) (FullDecision, error)
}

// BasicAssembler is the default Assembler implementation.
type BasicAssembler struct {
	client        llm.CompletionClient
	renderer      *PromptRenderer
	systemPrompt  string
	failures      map[string]int
	conversations ConversationRecorder
	label         string
}

// NewAssembler constructs a BasicAssembler. templatePath points at the user
// prompt template; systemPrompt is the static system-role instruction
// (model/provider identity, output-format contract).
func NewAssembler(client llm.CompletionClient, templatePath, systemPrompt string, opts ...AssemblerOption) (*BasicAssembler, error) {
	if client == nil {
		return nil, errors.New("executor: completion client is required")
	}
	renderer, err := NewPromptRenderer(templatePath)
	if err != nil {
		return nil, err
	}
	a := &BasicAssembler{
		client:        client,
		renderer:      renderer,
		systemPrompt:  systemPrompt,
		failures:      make(map[string]int),
		conversations: noopConversationRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	if a.conversations == nil {
		a.conversations = noopConversationRecorder{}
	}
	return a, nil
}

// AssemblerOption customises BasicAssembler construction.
type AssemblerOption func(*BasicAssembler)

// WithAssemblerConversationRecorder injects a recorder for prompt/response pairs.
func WithAssemblerConversationRecorder(recorder ConversationRecorder) AssemblerOption {
	return func(a *BasicAssembler) {
		if recorder == nil {
			a.conversations = noopConversationRecorder{}
			return
		}
		a.conversations = recorder
	}
}

// WithAssemblerLabel attaches a label (trader/agent id) used in logging.
func WithAssemblerLabel(label string) AssemblerOption {
	return func(a *BasicAssembler) { a.label = strings.TrimSpace(label) }
}

// Assemble implements Assembler.
func (a *BasicAssembler) Assemble(ctx context.Context, input Context, riskBudget string) (FullDecision, error) {
	if a == nil || a.renderer == nil {
		return FullDecision{}, errors.New("executor: assembler not initialised")
	}

	a.logInputWarnings(input)

	inputs := BuildPromptInputs(input, riskBudget)
	userPrompt, err := a.renderer.Render(inputs)
	if err != nil {
		return FullDecision{}, err
	}
	promptDigest := llm.DigestString(userPrompt)

	if a.label != "" {
		logx.Infof("executor: prompt rendered digest=%s label=%s candidates=%d positions=%d runtime_minutes=%d",
			promptDigest, a.label, len(input.CandidateCoins), len(input.Positions), input.RuntimeMinutes)
	} else {
		logx.Infof("executor: prompt rendered digest=%s candidates=%d positions=%d runtime_minutes=%d",
			promptDigest, len(input.CandidateCoins), len(input.Positions), input.RuntimeMinutes)
	}

	start := time.Now()
	raw, err := a.client.Complete(ctx, a.systemPrompt, userPrompt)
	if err != nil {
		logx.WithContext(ctx).Errorf("executor: completion failed digest=%s duration=%s err=%v", promptDigest, time.Since(start), err)
		return FullDecision{UserPrompt: userPrompt}, err
	}
	logx.WithContext(ctx).Infof("executor: completion ok digest=%s duration=%s", promptDigest, time.Since(start))
	a.recordConversation(ctx, userPrompt, raw)

	parsed, err := ParseFullDecisionResponse(raw)
	if err != nil {
		a.trackFailure("parse", err)
		return FullDecision{UserPrompt: userPrompt, RawResponse: raw}, err
	}
	parsed.UserPrompt = userPrompt
	a.resetFailure("parse")

	logx.Infof("executor: decisions parsed digest=%s count=%d", promptDigest, len(parsed.Decisions))
	return parsed, nil
}

func (a *BasicAssembler) logInputWarnings(input Context) {
	const (
		change1hAnomaly  = 0.05
		change4hAnomaly  = 0.10
		fundingAnomaly   = 0.01
	)
	for sym, md := range input.MarketDataMap {
		if math.Abs(md.Change1h) > change1hAnomaly {
			logx.Slowf("executor: market 1h change anomaly symbol=%s change_1h=%.4f", sym, md.Change1h)
		}
		if math.Abs(md.Change4h) > change4hAnomaly {
			logx.Slowf("executor: market 4h change anomaly symbol=%s change_4h=%.4f", sym, md.Change4h)
		}
		if md.LastPrice <= 0 {
			logx.Slowf("executor: non-positive price symbol=%s price=%f", sym, md.LastPrice)
		}
		if math.Abs(md.FundingPct) > fundingAnomaly {
			logx.Slowf("executor: funding anomaly symbol=%s funding=%.6f", sym, md.FundingPct)
		}
	}
	if input.Account.TotalBalance <= 0 {
		logx.Slowf("executor: account balance non-positive balance=%.2f", input.Account.TotalBalance)
	}
	seen := make(map[string]struct{}, len(input.Positions))
	for _, pos := range input.Positions {
		if _, ok := seen[pos.Symbol]; ok {
			logx.Slowf("executor: duplicate position detected symbol=%s", pos.Symbol)
		}
		seen[pos.Symbol] = struct{}{}
	}
	if len(input.CandidateCoins) == 0 && len(input.Positions) > 0 {
		logx.Slowf("executor: no candidates provided while %d positions open", len(input.Positions))
	}
}

func (a *BasicAssembler) recordConversation(ctx context.Context, prompt, response string) {
	if a == nil || a.conversations == nil {
		return
	}
	rec := ConversationRecord{
		ModelID:   a.label,
		Prompt:    prompt,
		Response:  strings.TrimSpace(response),
		Timestamp: time.Now(),
	}
	if err := a.conversations.RecordConversation(ctx, rec); err != nil {
		logx.WithContext(ctx).Errorf("executor: record conversation failed label=%s err=%v", a.label, err)
	}
}

func (a *BasicAssembler) trackFailure(key string, err error) {
	if a.failures == nil {
		a.failures = make(map[string]int)
	}
	a.failures[key]++
	count := a.failures[key]
	logx.Errorf("executor: assemble failed key=%s error=%v count=%d", key, err, count)
	if count >= 3 {
		logx.Slowf("executor: repeated assemble failures key=%s count=%d last_error=%v", key, count, err)
	}
}

func (a *BasicAssembler) resetFailure(key string) {
	if a.failures == nil {
		return
	}
	delete(a.failures, key)
}
