// Package tradeconfig loads and validates the top-level JSON configuration
// the Scheduler boots from: per-trader settings, the shared leverage policy,
// kill-switch thresholds, and multi-agent parameters.
package tradeconfig

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"nof0-api/pkg/bootenv"
)

// AIModel enumerates the supported completion providers.
type AIModel string

const (
	AIModelGroq     AIModel = "groq"
	AIModelQwen     AIModel = "qwen"
	AIModelDeepseek AIModel = "deepseek"
	AIModelCustom   AIModel = "custom"
)

// ConsensusMode enumerates the supported multi-agent reduction rules.
type ConsensusMode string

const (
	ConsensusVoting    ConsensusMode = "voting"
	ConsensusWeighted  ConsensusMode = "weighted"
	ConsensusUnanimous ConsensusMode = "unanimous"
	ConsensusBest      ConsensusMode = "best"
)

// Config is the Scheduler's top-level configuration.
type Config struct {
	Traders            []Trader      `json:"traders"`
	Leverage           Leverage      `json:"leverage"`
	AutoTakeProfitPct  float64       `json:"auto_take_profit_pct"`
	MaxDailyLoss       float64       `json:"max_daily_loss"`
	MaxDrawdown        float64       `json:"max_drawdown"`
	StopTradingMinutes int           `json:"stop_trading_minutes"`
	StopTrading        time.Duration `json:"-"`
	MultiAgent         MultiAgent    `json:"multi_agent"`
}

// Leverage carries the shared leverage caps applied by the Risk Policy.
type Leverage struct {
	BTCETHLeverage  int `json:"btc_eth_leverage"`
	AltcoinLeverage int `json:"altcoin_leverage"`
}

// Trader is one scheduled trading loop's configuration.
type Trader struct {
	ID               string  `json:"id"`
	AIModel          AIModel `json:"ai_model"`
	CustomURL        string  `json:"custom_url,omitempty"`
	CustomKey        string  `json:"custom_key,omitempty"`
	CustomModelName  string  `json:"custom_model_name,omitempty"`
	ScanIntervalRaw  string  `json:"scan_interval"`
	InitialBalance   float64 `json:"initial_balance"`
	JournalDir       string  `json:"journal_dir"`

	ScanInterval time.Duration `json:"-"`
}

// MultiAgent is the Multi-Agent Engine's configuration block.
type MultiAgent struct {
	Enabled       bool          `json:"enabled"`
	ConsensusMode ConsensusMode `json:"consensus_mode"`
	FastFirst     bool          `json:"fast_first"`
	MinAgents     int           `json:"min_agents"`
	MaxWaitRaw    string        `json:"max_wait_time"`
	MaxWaitTime   time.Duration `json:"-"`
	Agents        []AgentConfig `json:"agents"`
}

// AgentConfig is one multi-agent participant's configuration.
type AgentConfig struct {
	ID      string  `json:"id"`
	AIModel AIModel `json:"ai_model"`
	Weight  float64 `json:"weight"`
}

// Load reads and validates a configuration file from path.
func Load(path string) (*Config, error) {
	bootenv.LoadDotenvOnce()
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tradeconfig: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses and validates configuration JSON from r.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tradeconfig: read: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("tradeconfig: parse json: %w", err)
	}
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) parseDurations() error {
	if c.StopTradingMinutes <= 0 {
		c.StopTradingMinutes = 60
	}
	c.StopTrading = time.Duration(c.StopTradingMinutes) * time.Minute

	for i := range c.Traders {
		raw := strings.TrimSpace(c.Traders[i].ScanIntervalRaw)
		if raw == "" {
			raw = "3m"
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("tradeconfig: traders[%d].scan_interval invalid: %q", i, raw)
		}
		c.Traders[i].ScanInterval = d
	}

	if c.MultiAgent.Enabled {
		raw := strings.TrimSpace(c.MultiAgent.MaxWaitRaw)
		if raw == "" {
			raw = "60s"
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("tradeconfig: multi_agent.max_wait_time invalid: %q", raw)
		}
		c.MultiAgent.MaxWaitTime = d
	}
	return nil
}

// Validate enforces the configuration rules the Scheduler requires at boot.
// Any error here is fatal: the process refuses to start.
func (c *Config) Validate() error {
	if len(c.Traders) == 0 {
		return fmt.Errorf("tradeconfig: at least one trader is required")
	}
	seenTraders := make(map[string]struct{}, len(c.Traders))
	for i, t := range c.Traders {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("tradeconfig: traders[%d].id is required", i)
		}
		if _, dup := seenTraders[t.ID]; dup {
			return fmt.Errorf("tradeconfig: duplicate trader id %q", t.ID)
		}
		seenTraders[t.ID] = struct{}{}

		switch t.AIModel {
		case AIModelGroq, AIModelQwen, AIModelDeepseek:
		case AIModelCustom:
			if strings.TrimSpace(t.CustomURL) == "" || strings.TrimSpace(t.CustomKey) == "" || strings.TrimSpace(t.CustomModelName) == "" {
				return fmt.Errorf("tradeconfig: traders[%d] ai_model=custom requires custom_url, custom_key, and custom_model_name", i)
			}
		default:
			return fmt.Errorf("tradeconfig: traders[%d].ai_model %q is not one of groq, qwen, deepseek, custom", i, t.AIModel)
		}
		if t.InitialBalance <= 0 {
			return fmt.Errorf("tradeconfig: traders[%d].initial_balance must be positive", i)
		}
	}

	if c.Leverage.BTCETHLeverage < 0 || c.Leverage.AltcoinLeverage < 0 {
		return fmt.Errorf("tradeconfig: leverage caps cannot be negative")
	}

	if c.MultiAgent.Enabled {
		if err := c.MultiAgent.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiAgent) validate() error {
	switch m.ConsensusMode {
	case ConsensusVoting, ConsensusWeighted, ConsensusUnanimous, ConsensusBest:
	default:
		return fmt.Errorf("tradeconfig: multi_agent.consensus_mode %q is not one of voting, weighted, unanimous, best", m.ConsensusMode)
	}
	if len(m.Agents) == 0 {
		return fmt.Errorf("tradeconfig: multi_agent.agents must have at least one entry when enabled")
	}
	seen := make(map[string]struct{}, len(m.Agents))
	for i, a := range m.Agents {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("tradeconfig: multi_agent.agents[%d].id is required", i)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("tradeconfig: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
		if a.Weight < 0 || a.Weight > 1 {
			return fmt.Errorf("tradeconfig: multi_agent.agents[%d].weight must be between 0 and 1", i)
		}
	}
	if m.MinAgents > len(m.Agents) {
		return fmt.Errorf("tradeconfig: multi_agent.min_agents (%d) exceeds configured agent count (%d)", m.MinAgents, len(m.Agents))
	}
	return nil
}
