package executor

import (
	"fmt"

	"nof0-api/pkg/llm"
)

// PromptInputs contains the dynamic data injected into the executor prompt
// template. RiskBudget is supplied by the caller (the Trader Loop Scheduler
// knows the active risk.Policy; the assembler itself is policy-agnostic).
type PromptInputs struct {
	CurrentTime     string
	RuntimeMinutes  int
	AccountOverview string
	OpenPositions   string
	RiskBudget      string
	PerformanceView string
	CandidateCoins  string
	MarketSnapshots string
}

// PromptRenderer renders the per-cycle user prompt from a template file.
type PromptRenderer struct {
	tpl *llm.DecisionPromptTemplate
}

// NewPromptRenderer constructs a renderer using the supplied template path.
func NewPromptRenderer(templatePath string) (*PromptRenderer, error) {
	tpl, err := llm.NewDecisionPromptTemplate(templatePath, nil)
	if err != nil {
		return nil, err
	}
	return &PromptRenderer{tpl: tpl}, nil
}

// Render generates the final prompt string populated with inputs.
func (r *PromptRenderer) Render(inputs PromptInputs) (string, error) {
	if r == nil || r.tpl == nil {
		return "", fmt.Errorf("executor: prompt renderer not initialised")
	}
	return r.tpl.Render(inputs)
}

// Digest returns the underlying template digest for observability.
func (r *PromptRenderer) Digest() string {
	if r == nil || r.tpl == nil {
		return ""
	}
	return r.tpl.Digest()
}
