// Command trader runs the Trader Loop Scheduler: it loads a trading
// configuration, wires each configured trader to an AI completion client,
// a paper-trading exchange/market pair, and a durable decision journal, then
// runs every trader's loop concurrently until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/pkg/agents"
	exchangesim "nof0-api/pkg/exchange/sim"
	"nof0-api/pkg/executor"
	"nof0-api/pkg/journal"
	"nof0-api/pkg/journal/localstore"
	"nof0-api/pkg/llm"
	marketsim "nof0-api/pkg/market/sim"
	"nof0-api/pkg/risk"
	"nof0-api/pkg/scheduler"
	"nof0-api/pkg/tradeconfig"
)

const systemPrompt = `You are a disciplined perpetual-futures trading agent. You size ` +
	`positions conservatively, respect every stated risk budget exactly, and never ` +
	`invent information not present in the provided account, position, or market data. ` +
	`You always end your response with a single JSON array of decisions and nothing after it.`

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}

// apiKeyEnv maps a built-in AI model to the environment variable its API
// key is read from. ai_model=custom carries its key directly in config.
var apiKeyEnv = map[tradeconfig.AIModel]string{
	tradeconfig.AIModelGroq:     "GROQ_API_KEY",
	tradeconfig.AIModelQwen:     "QWEN_API_KEY",
	tradeconfig.AIModelDeepseek: "DEEPSEEK_API_KEY",
}

func buildLLMConfig(model tradeconfig.AIModel, customURL, customKey, customModel string) (*llm.Config, error) {
	if model == tradeconfig.AIModelCustom {
		return &llm.Config{
			Provider: llm.ProviderCustom,
			BaseURL:  customURL,
			APIKey:   customKey,
			Model:    customModel,
		}, nil
	}
	envVar, ok := apiKeyEnv[model]
	if !ok {
		return nil, fmt.Errorf("no api key environment variable known for ai_model %q", model)
	}
	key := strings.TrimSpace(os.Getenv(envVar))
	if key == "" {
		return nil, fmt.Errorf("environment variable %s is not set for ai_model %q", envVar, model)
	}
	return &llm.Config{
		Provider: llm.Provider(model),
		APIKey:   key,
		Model:    string(model),
	}, nil
}

// multiJournal routes journal.Store calls by trader ID to the underlying
// localstore.Store that owns that trader's configured journal_dir. Most
// deployments share one journal_dir across every trader (one database, one
// schema keyed by trader_id); this wrapper exists for the less common case
// where traders are configured to persist to distinct directories.
type multiJournal struct {
	byTrader map[string]*localstore.Store
	stores   []*localstore.Store
}

// newJournalStore builds the journal.Store every configured trader appends
// to, opening one localstore.Store per distinct journal_dir.
func newJournalStore(traders []tradeconfig.Trader) (journal.Store, error) {
	return newMultiJournal(traders)
}

func newMultiJournal(traders []tradeconfig.Trader) (*multiJournal, error) {
	mj := &multiJournal{byTrader: make(map[string]*localstore.Store, len(traders))}
	opened := make(map[string]*localstore.Store)
	for _, t := range traders {
		dir := strings.TrimSpace(t.JournalDir)
		if dir == "" {
			dir = filepath.Join("var", "journal")
		}
		store, ok := opened[dir]
		if !ok {
			var err error
			store, err = localstore.Open(filepath.Join(dir, "journal.db"))
			if err != nil {
				mj.Close()
				return nil, fmt.Errorf("open journal store for %s: %w", dir, err)
			}
			opened[dir] = store
			mj.stores = append(mj.stores, store)
		}
		mj.byTrader[t.ID] = store
	}
	return mj, nil
}

func (mj *multiJournal) storeFor(traderID string) (*localstore.Store, error) {
	store, ok := mj.byTrader[traderID]
	if !ok {
		return nil, fmt.Errorf("journal: no store configured for trader %s", traderID)
	}
	return store, nil
}

func (mj *multiJournal) Append(rec journal.DecisionRecord) error {
	store, err := mj.storeFor(rec.TraderID)
	if err != nil {
		return err
	}
	return store.Append(rec)
}

func (mj *multiJournal) Latest(traderID string) (journal.DecisionRecord, error) {
	store, err := mj.storeFor(traderID)
	if err != nil {
		return journal.DecisionRecord{}, err
	}
	return store.Latest(traderID)
}

func (mj *multiJournal) Range(traderID string, from, to int) ([]journal.DecisionRecord, error) {
	store, err := mj.storeFor(traderID)
	if err != nil {
		return nil, err
	}
	return store.Range(traderID, from, to)
}

func (mj *multiJournal) All(traderID string) ([]journal.DecisionRecord, error) {
	store, err := mj.storeFor(traderID)
	if err != nil {
		return nil, err
	}
	return store.All(traderID)
}

func (mj *multiJournal) Seed(traderID string, initialBalance float64, at time.Time) error {
	store, err := mj.storeFor(traderID)
	if err != nil {
		return err
	}
	return store.Seed(traderID, initialBalance, at)
}

func (mj *multiJournal) RestoreState(traderID string) (journal.ResumeState, error) {
	store, err := mj.storeFor(traderID)
	if err != nil {
		return journal.ResumeState{}, err
	}
	return store.RestoreState(traderID)
}

func (mj *multiJournal) Close() error {
	var firstErr error
	for _, store := range mj.stores {
		if err := store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func main() {
	var (
		configPath  = flag.String("config", "etc/trader.json", "path to the trader configuration file")
		promptPath  = flag.String("prompt-template", "etc/prompts/trader/default_prompt.tmpl", "path to the decision prompt template")
		journalRoot = flag.String("journal-root", "", "override every trader's journal_dir with this directory")
	)
	flag.Parse()
	logx.MustSetup(logx.LogConf{})
	logx.DisableStat()

	cfg, err := tradeconfig.Load(*configPath)
	if err != nil {
		fatalf("load trader config: %v", err)
	}
	if strings.TrimSpace(*journalRoot) != "" {
		for i := range cfg.Traders {
			cfg.Traders[i].JournalDir = *journalRoot
		}
	}

	journalStore, err := newJournalStore(cfg.Traders)
	if err != nil {
		fatalf("initialise journal: %v", err)
	}
	defer func() {
		_ = journalStore.Close()
	}()

	policy := risk.Policy{
		BTCETHLeverage:    cfg.Leverage.BTCETHLeverage,
		AltcoinLeverage:   cfg.Leverage.AltcoinLeverage,
		AutoTakeProfitPct: cfg.AutoTakeProfitPct,
	}

	sched := &scheduler.Scheduler{Journal: journalStore}
	for _, traderCfg := range cfg.Traders {
		trader, err := buildTrader(traderCfg, cfg, policy, *promptPath)
		if err != nil {
			fatalf("build trader %s: %v", traderCfg.ID, err)
		}
		sched.Traders = append(sched.Traders, trader)
		logx.Infof("configured trader %s ai_model=%s scan_interval=%s initial_balance=%.2f",
			traderCfg.ID, traderCfg.AIModel, traderCfg.ScanInterval, traderCfg.InitialBalance)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logx.Infof("received signal %s, stopping trader loops", sig)
		cancel()
	}()

	logx.Infof("starting %d trader loop(s)", len(sched.Traders))
	if err := sched.Run(ctx); err != nil {
		fatalf("scheduler exited with error: %v", err)
	}
	logx.Info("all trader loops stopped")
}

func buildTrader(traderCfg tradeconfig.Trader, cfg *tradeconfig.Config, policy risk.Policy, promptPath string) (*scheduler.Trader, error) {
	store := exchangesim.NewStore(traderCfg.InitialBalance)
	market := marketsim.New()

	trader := &scheduler.Trader{
		ID:             traderCfg.ID,
		InitialBalance: traderCfg.InitialBalance,
		ScanInterval:   traderCfg.ScanInterval,
		StopTrading:    cfg.StopTrading,
		MaxDrawdown:    cfg.MaxDrawdown,
		MaxDailyLoss:   cfg.MaxDailyLoss,
		Store:          store,
		Market:         market,
		Policy:         policy,
	}

	if cfg.MultiAgent.Enabled {
		agentCfg := agents.Config{
			Consensus:   agents.ConsensusMode(cfg.MultiAgent.ConsensusMode),
			FastFirst:   cfg.MultiAgent.FastFirst,
			MinAgents:   cfg.MultiAgent.MinAgents,
			MaxWaitTime: cfg.MultiAgent.MaxWaitTime,
		}
		runners := make([]agents.Agent, 0, len(cfg.MultiAgent.Agents))
		for _, a := range cfg.MultiAgent.Agents {
			assembler, err := buildAssembler(a.AIModel, "", "", "", promptPath, traderCfg.ID+"/"+a.ID)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", a.ID, err)
			}
			agentConfig := agents.AgentConfig{ID: a.ID, Weight: a.Weight}
			agentCfg.Agents = append(agentCfg.Agents, agentConfig)
			runners = append(runners, agents.Agent{Config: agentConfig, Assembler: assembler})
		}
		trader.Agents = runners
		trader.AgentsCfg = agentCfg
		return trader, nil
	}

	assembler, err := buildAssembler(traderCfg.AIModel, traderCfg.CustomURL, traderCfg.CustomKey, traderCfg.CustomModelName, promptPath, traderCfg.ID)
	if err != nil {
		return nil, err
	}
	trader.Assembler = assembler
	return trader, nil
}

func buildAssembler(model tradeconfig.AIModel, customURL, customKey, customModel, promptPath, label string) (executor.Assembler, error) {
	llmCfg, err := buildLLMConfig(model, customURL, customKey, customModel)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(llmCfg)
	if err != nil {
		return nil, fmt.Errorf("build llm client: %w", err)
	}
	assembler, err := executor.NewAssembler(client, promptPath, systemPrompt, executor.WithAssemblerLabel(label))
	if err != nil {
		return nil, fmt.Errorf("build assembler: %w", err)
	}
	return assembler, nil
}
