// Package scheduler implements the Trader Loop Scheduler: one goroutine per
// trader, each on its own ticker, each cycle serialized by a non-reentrant
// per-trader lock. Action execution against a trader's PositionStore is
// sequential within a cycle; across traders, cycles run in parallel.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/agents"
	"nof0-api/pkg/exchange"
	"nof0-api/pkg/executor"
	"nof0-api/pkg/journal"
	"nof0-api/pkg/market"
	"nof0-api/pkg/risk"
)

// Trader binds one configured trader to the providers, assembler(s), and
// risk policy its loop executes every scan_interval tick.
//
// Exactly one of Assembler or Agents must be set: Agents non-empty selects
// the Multi-Agent Engine path, otherwise Assembler runs alone.
type Trader struct {
	ID             string
	InitialBalance float64
	ScanInterval   time.Duration
	StopTrading    time.Duration
	MaxDrawdown    float64 // fraction of InitialBalance, e.g. 0.2 = 20%
	MaxDailyLoss   float64 // absolute currency units

	Store     exchange.PositionStore
	Market    market.MarketSnapshotProvider
	Assembler executor.Assembler
	Agents    []agents.Agent
	AgentsCfg agents.Config
	Policy    risk.Policy

	mu          sync.Mutex
	startTime   time.Time
	cycleNumber int

	dayStart       time.Time
	dayStartEquity float64
	peakEquity     float64
	pausedUntil    time.Time
	haltedCycle    int
}

// Scheduler runs a fixed set of traders, each on its own ticker.
type Scheduler struct {
	Journal journal.Store
	Traders []*Trader
}

// Run boots every trader (seed + restoreState) and then runs each trader's
// loop concurrently until ctx is cancelled. It blocks until every trader
// loop has exited.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.Traders {
		if err := s.boot(t); err != nil {
			return fmt.Errorf("scheduler: boot trader %s: %w", t.ID, err)
		}
	}

	var wg sync.WaitGroup
	for _, t := range s.Traders {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, t)
		}()
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) boot(t *Trader) error {
	now := time.Now().UTC()
	if err := s.Journal.Seed(t.ID, t.InitialBalance, now); err != nil {
		return err
	}
	state, err := s.Journal.RestoreState(t.ID)
	if err != nil {
		return err
	}
	t.startTime = time.Now()
	// ResumeCycleNumber is the next cycle to run and Tick increments before
	// recording, so hold the last recorded cycle here.
	t.cycleNumber = state.ResumeCycleNumber - 1
	t.dayStart = now
	t.dayStartEquity = state.LastAccount.TotalBalance
	t.peakEquity = state.LastAccount.TotalBalance
	if t.dayStartEquity <= 0 {
		t.dayStartEquity = t.InitialBalance
	}
	if t.peakEquity <= 0 {
		t.peakEquity = t.InitialBalance
	}
	logx.Infof("scheduler: trader %s booted resume_cycle=%d", t.ID, t.cycleNumber)
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *Trader) {
	ticker := time.NewTicker(t.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, t)
		}
	}
}

// Tick runs one scheduler cycle for t, per spec's eight-step algorithm. It
// is exported so tests and a standalone runner can drive single cycles
// deterministically without waiting on a ticker.
func (s *Scheduler) Tick(ctx context.Context, t *Trader) {
	if !t.mu.TryLock() {
		logx.WithContext(ctx).Infof("scheduler: trader %s cycle already in progress, skipping tick", t.ID)
		return
	}
	defer t.mu.Unlock()

	now := time.Now()
	if t.pausedUntil.After(now) {
		s.recordHaltOnce(ctx, t)
		return
	}
	t.pausedUntil = time.Time{}

	cctx, err := s.buildContext(ctx, t)
	if err != nil {
		logx.WithContext(ctx).Errorf("scheduler: trader %s context refresh failed: %v", t.ID, err)
		return
	}

	if reason, tripped := t.killSwitchTripped(cctx.Account); tripped {
		t.pausedUntil = time.Now().Add(t.StopTrading)
		logx.WithContext(ctx).Errorf("scheduler: trader %s kill switch tripped (%s), pausing %s", t.ID, reason, t.StopTrading)
		s.recordHaltOnce(ctx, t)
		return
	}

	t.cycleNumber++
	cctx.CycleCount = t.cycleNumber
	cctx.RuntimeMinutes = int(time.Since(t.startTime).Minutes())

	riskBudget := formatRiskBudget(t)

	var full executor.FullDecision
	if len(t.Agents) > 0 {
		full = agents.Run(ctx, t.AgentsCfg, t.Agents, cctx, riskBudget)
	} else {
		full, err = t.Assembler.Assemble(ctx, cctx, riskBudget)
		if err != nil {
			logx.WithContext(ctx).Errorf("scheduler: trader %s assembly failed: %v", t.ID, err)
			s.appendRecord(ctx, buildFailureRecord(t, cctx, err))
			return
		}
	}

	decisions := risk.ApplyAutoTakeProfit(t.Policy, cctx, full.Decisions)

	var executionLog []string
	var accepted []executor.Decision
	for _, d := range decisions {
		verdict := risk.Evaluate(t.Policy, cctx, d)
		if !verdict.Accept {
			executionLog = append(executionLog, fmt.Sprintf("rejected %s %s: %s", d.Action, d.Symbol, verdict.Reason))
			continue
		}
		accepted = append(accepted, verdict.Adjusted)
	}

	results := make([]journal.ActionResult, 0, len(accepted))
	for _, d := range accepted {
		res := journal.ActionResult{
			Action:    string(d.Action),
			Symbol:    d.Symbol,
			Quantity:  d.Quantity,
			Leverage:  d.Leverage,
			Timestamp: time.Now().UTC(),
		}
		outcome, execErr := t.Store.Execute(ctx, d)
		if execErr != nil {
			res.Success = false
			res.Error = execErr.Error()
			executionLog = append(executionLog, fmt.Sprintf("execute failed %s %s: %v", d.Action, d.Symbol, execErr))
		} else {
			res.Success = true
			res.Price = outcome.Price
			res.OrderID = outcome.OrderID
			executionLog = append(executionLog, fmt.Sprintf("executed %s %s price=%.4f order=%s", d.Action, d.Symbol, outcome.Price, outcome.OrderID))
		}
		results = append(results, res)
	}

	s.appendRecord(ctx, buildRecord(t, cctx, full, results, executionLog))
}

func (s *Scheduler) buildContext(ctx context.Context, t *Trader) (executor.Context, error) {
	positions, err := t.Store.Positions(ctx)
	if err != nil {
		return executor.Context{}, fmt.Errorf("positions: %w", err)
	}
	account, err := t.Store.Account(ctx)
	if err != nil {
		return executor.Context{}, fmt.Errorf("account: %w", err)
	}

	watched := make([]string, 0, len(positions))
	for _, p := range positions {
		watched = append(watched, p.Symbol)
	}
	snap, err := t.Market.Snapshot(ctx, watched)
	if err != nil {
		return executor.Context{}, fmt.Errorf("snapshot: %w", err)
	}

	return executor.Context{
		CurrentTime:     time.Now().UTC(),
		Account:         account,
		Positions:       positions,
		CandidateCoins:  snap.Candidates,
		MarketDataMap:   snap.MarketDataMap,
		OpenInterestMap: snap.OpenInterestMap,
		Leverage: executor.LeveragePolicy{
			BTCETHLeverage:  t.Policy.BTCETHLeverage,
			AltcoinLeverage: t.Policy.AltcoinLeverage,
		},
	}, nil
}

// killSwitchTripped updates the trader's running peak/day-start equity
// bookkeeping and reports whether drawdown or daily loss has breached its
// configured threshold.
func (t *Trader) killSwitchTripped(account executor.AccountSnapshot) (string, bool) {
	now := time.Now().UTC()
	if now.YearDay() != t.dayStart.YearDay() || now.Year() != t.dayStart.Year() {
		t.dayStart = now
		t.dayStartEquity = account.TotalBalance
	}
	if account.TotalBalance > t.peakEquity {
		t.peakEquity = account.TotalBalance
	}

	if t.InitialBalance > 0 && t.MaxDrawdown > 0 {
		drawdown := (t.peakEquity - account.TotalBalance) / t.InitialBalance
		if drawdown > t.MaxDrawdown {
			return fmt.Sprintf("drawdown %.4f exceeds max_drawdown %.4f", drawdown, t.MaxDrawdown), true
		}
	}
	if t.MaxDailyLoss > 0 {
		dailyLoss := t.dayStartEquity - account.TotalBalance
		if dailyLoss > t.MaxDailyLoss {
			return fmt.Sprintf("daily loss %.2f exceeds max_daily_loss %.2f", dailyLoss, t.MaxDailyLoss), true
		}
	}
	return "", false
}

// recordHaltOnce appends a single success=false/"halted" record per pause
// interval, deduplicated by cycle number: once a halted record has been
// written for the current cycle, subsequent ticks while still paused are
// silent no-ops.
func (s *Scheduler) recordHaltOnce(ctx context.Context, t *Trader) {
	if t.haltedCycle == t.cycleNumber && t.haltedCycle != 0 {
		return
	}
	t.cycleNumber++
	t.haltedCycle = t.cycleNumber
	s.appendRecord(ctx, journal.DecisionRecord{
		TraderID:     t.ID,
		CycleNumber:  t.cycleNumber,
		Timestamp:    time.Now().UTC(),
		Success:      false,
		ErrorMessage: "halted",
	})
}

func (s *Scheduler) appendRecord(ctx context.Context, rec journal.DecisionRecord) {
	err := s.Journal.Append(rec)
	if err == nil {
		return
	}
	var conflict *journal.ConflictError
	if errors.As(err, &conflict) {
		logx.WithContext(ctx).Infof("scheduler: trader %s cycle %d already recorded, skipping", rec.TraderID, rec.CycleNumber)
		return
	}
	logx.WithContext(ctx).Errorf("scheduler: trader %s journal append failed: %v", rec.TraderID, err)
}

func buildFailureRecord(t *Trader, cctx executor.Context, cause error) journal.DecisionRecord {
	rec := baseRecord(t, cctx)
	rec.Success = false
	rec.ErrorMessage = cause.Error()
	return rec
}

func buildRecord(t *Trader, cctx executor.Context, full executor.FullDecision, results []journal.ActionResult, executionLog []string) journal.DecisionRecord {
	rec := baseRecord(t, cctx)
	rec.InputPrompt = full.UserPrompt
	rec.CoTTrace = full.CoTTrace
	rec.RawResponse = full.RawResponse
	rec.Actions = results
	rec.ExecutionLog = executionLog

	if decisionJSON, err := json.Marshal(full.Decisions); err == nil {
		rec.DecisionJSON = string(decisionJSON)
	}

	success := true
	for _, r := range results {
		if !r.Success {
			success = false
			break
		}
	}
	rec.Success = success
	return rec
}

func baseRecord(t *Trader, cctx executor.Context) journal.DecisionRecord {
	positions := make([]journal.PositionSnapshot, 0, len(cctx.Positions))
	for _, p := range cctx.Positions {
		positions = append(positions, journal.PositionSnapshot{
			Symbol:           p.Symbol,
			Side:             string(p.Side),
			Quantity:         p.Quantity,
			EntryPrice:       p.EntryPrice,
			MarkPrice:        p.MarkPrice,
			UnrealizedProfit: p.UnrealizedProfit,
			Leverage:         p.Leverage,
			LiquidationPrice: p.LiquidationPrice,
		})
	}
	candidates := make([]string, 0, len(cctx.CandidateCoins))
	for _, c := range cctx.CandidateCoins {
		candidates = append(candidates, c.Symbol)
	}
	return journal.DecisionRecord{
		TraderID:    t.ID,
		CycleNumber: t.cycleNumber,
		Timestamp:   time.Now().UTC(),
		Account: journal.AccountSnapshot{
			TotalBalance:     cctx.Account.TotalBalance,
			AvailableBalance: cctx.Account.AvailableBalance,
			UnrealizedProfit: cctx.Account.UnrealizedProfit,
			PositionCount:    cctx.Account.PositionCount,
			MarginUsedPct:    cctx.Account.MarginUsedPct,
		},
		Positions:      positions,
		CandidateCoins: candidates,
	}
}

func formatRiskBudget(t *Trader) string {
	return fmt.Sprintf("btc_eth_leverage<=%dx altcoin_leverage<=%dx auto_take_profit=%.2f%% max_drawdown=%.2f%% max_daily_loss=%.2f",
		t.Policy.BTCETHLeverage, t.Policy.AltcoinLeverage, t.Policy.AutoTakeProfitPct, t.MaxDrawdown*100, t.MaxDailyLoss)
}
