package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig   `yaml:"log"`
	Engine     EngineConfig    `yaml:"engine"`
	Thresholds ThresholdConfig `yaml:"thresholds"`
	Orders     OrderConfig     `yaml:"orders"`
	Cooldown   CooldownConfig  `yaml:"cooldown"`
	Pools      PoolsConfig     `yaml:"pools"`
	Solana     SolanaConfig    `yaml:"solana"`
	Exchange   ExchangeConfig  `yaml:"exchange"`
	Alerts     AlertsConfig    `yaml:"alerts"`
	Metrics    MetricsConfig   `yaml:"metrics"`
	State      StateConfig     `yaml:"state"`
	Timescale  TimescaleConfig `yaml:"timescale"`
	Breakers   BreakerConfig   `yaml:"breakers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EngineConfig struct {
	Symbols                []string           `yaml:"symbols"`
	CheckInterval          time.Duration      `yaml:"check_interval"`
	DryRun                 bool               `yaml:"dry_run"`
	MaxConsecutiveFailures int                `yaml:"max_consecutive_failures"`
	InitialOffsets         map[string]float64 `yaml:"initial_offsets"`
}

// ThresholdConfig carries the USD band that drives zone classification.
type ThresholdConfig struct {
	MinUSD  float64 `yaml:"min_usd"`
	MaxUSD  float64 `yaml:"max_usd"`
	StepUSD float64 `yaml:"step_usd"`
}

type OrderConfig struct {
	PriceOffsetPct float64       `yaml:"price_offset_pct"`
	CloseRatioPct  float64       `yaml:"close_ratio_pct"`
	Timeout        time.Duration `yaml:"timeout"`
	ConfirmDelay   time.Duration `yaml:"confirm_delay"`
	ConfirmRetries int           `yaml:"confirm_retries"`
}

type CooldownConfig struct {
	AfterFill    time.Duration `yaml:"after_fill"`
	FillLookback time.Duration `yaml:"fill_lookback"`
}

type PoolsConfig struct {
	JLP PoolConfig `yaml:"jlp"`
	ALP PoolConfig `yaml:"alp"`
}

type PoolConfig struct {
	Amount float64 `yaml:"amount"`
}

type SolanaConfig struct {
	RPCURL  string        `yaml:"rpc_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type ExchangeConfig struct {
	Backend       string            `yaml:"backend"`
	BaseURL       string            `yaml:"base_url"`
	WSURL         string            `yaml:"ws_url"`
	Timeout       time.Duration     `yaml:"timeout"`
	WalletAddress string            `yaml:"wallet_address"`
	SymbolMap     map[string]string `yaml:"symbol_map"`
	// PrivateKey is only ever read from LPH_PRIVATE_KEY.
	PrivateKey string `yaml:"-"`
}

type AlertsConfig struct {
	Pushover PushoverConfig `yaml:"pushover"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type PushoverConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
}

type TelegramConfig struct {
	Enabled                bool          `yaml:"enabled"`
	Token                  string        `yaml:"token"`
	ChatID                 string        `yaml:"chat_id"`
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	Resume     bool   `yaml:"resume"`
}

type TimescaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Schema    string `yaml:"schema"`
	QueueSize int    `yaml:"queue_size"`
	// DSN is only ever read from LPH_TIMESCALE_DSN.
	DSN string `yaml:"-"`
}

type BreakerConfig struct {
	Enabled *bool `yaml:"enabled"`
}

func (b BreakerConfig) EnabledValue() bool {
	return b.Enabled == nil || *b.Enabled
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Engine.CheckInterval == 0 {
		cfg.Engine.CheckInterval = 60 * time.Second
	}
	if cfg.Engine.MaxConsecutiveFailures == 0 {
		cfg.Engine.MaxConsecutiveFailures = 5
	}
	if cfg.Thresholds.MinUSD == 0 {
		cfg.Thresholds.MinUSD = 5.0
	}
	if cfg.Thresholds.MaxUSD == 0 {
		cfg.Thresholds.MaxUSD = 20.0
	}
	if cfg.Thresholds.StepUSD == 0 {
		cfg.Thresholds.StepUSD = 2.5
	}
	if cfg.Orders.PriceOffsetPct == 0 {
		cfg.Orders.PriceOffsetPct = 0.2
	}
	if cfg.Orders.CloseRatioPct == 0 {
		cfg.Orders.CloseRatioPct = 40.0
	}
	if cfg.Orders.Timeout == 0 {
		cfg.Orders.Timeout = 20 * time.Minute
	}
	if cfg.Orders.ConfirmDelay == 0 {
		cfg.Orders.ConfirmDelay = 100 * time.Millisecond
	}
	if cfg.Orders.ConfirmRetries == 0 {
		cfg.Orders.ConfirmRetries = 3
	}
	if cfg.Cooldown.AfterFill == 0 {
		cfg.Cooldown.AfterFill = 5 * time.Minute
	}
	if cfg.Cooldown.FillLookback == 0 {
		cfg.Cooldown.FillLookback = 10 * time.Minute
	}
	if cfg.Solana.RPCURL == "" {
		cfg.Solana.RPCURL = "https://api.mainnet-beta.solana.com"
	}
	if cfg.Solana.Timeout == 0 {
		cfg.Solana.Timeout = 30 * time.Second
	}
	if cfg.Exchange.Backend == "" {
		cfg.Exchange.Backend = "hl"
	}
	if cfg.Exchange.BaseURL == "" {
		cfg.Exchange.BaseURL = "https://api.hyperliquid.xyz"
	}
	if cfg.Exchange.WSURL == "" {
		cfg.Exchange.WSURL = deriveWSURL(cfg.Exchange.BaseURL)
	}
	if cfg.Exchange.Timeout == 0 {
		cfg.Exchange.Timeout = 10 * time.Second
	}
	if cfg.Alerts.Telegram.OperatorPollInterval == 0 {
		cfg.Alerts.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/lp-hedge-bot.db"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LPH_PRIVATE_KEY")); v != "" {
		cfg.Exchange.PrivateKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_WALLET_ADDRESS")); v != "" {
		cfg.Exchange.WalletAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_PUSHOVER_TOKEN")); v != "" {
		cfg.Alerts.Pushover.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_PUSHOVER_USER")); v != "" {
		cfg.Alerts.Pushover.UserKey = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_TELEGRAM_TOKEN")); v != "" {
		cfg.Alerts.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_TELEGRAM_CHAT_ID")); v != "" {
		cfg.Alerts.Telegram.ChatID = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_TIMESCALE_DSN")); v != "" {
		cfg.Timescale.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("LPH_SOLANA_RPC_URL")); v != "" {
		cfg.Solana.RPCURL = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q is not supported", cfg.Log.Format)
	}
	if len(cfg.Engine.Symbols) == 0 {
		return errors.New("engine.symbols is required")
	}
	for _, sym := range cfg.Engine.Symbols {
		if strings.TrimSpace(sym) == "" {
			return errors.New("engine.symbols must not contain empty entries")
		}
	}
	if cfg.Engine.CheckInterval <= 0 {
		return errors.New("engine.check_interval must be > 0")
	}
	if cfg.Engine.MaxConsecutiveFailures < 0 {
		return errors.New("engine.max_consecutive_failures must be >= 0")
	}
	if cfg.Thresholds.MinUSD < 0 {
		return errors.New("thresholds.min_usd must be >= 0")
	}
	if cfg.Thresholds.MinUSD >= cfg.Thresholds.MaxUSD {
		return errors.New("thresholds.min_usd must be < thresholds.max_usd")
	}
	if cfg.Thresholds.StepUSD <= 0 {
		return errors.New("thresholds.step_usd must be > 0")
	}
	if cfg.Orders.CloseRatioPct <= 0 || cfg.Orders.CloseRatioPct > 100 {
		return errors.New("orders.close_ratio_pct must be in (0, 100]")
	}
	if cfg.Orders.PriceOffsetPct < 0 {
		return errors.New("orders.price_offset_pct must be >= 0")
	}
	if cfg.Orders.Timeout <= 0 {
		return errors.New("orders.timeout must be > 0")
	}
	if cfg.Orders.ConfirmDelay < 0 {
		return errors.New("orders.confirm_delay must be >= 0")
	}
	if cfg.Orders.ConfirmRetries < 0 {
		return errors.New("orders.confirm_retries must be >= 0")
	}
	if cfg.Cooldown.AfterFill < 0 {
		return errors.New("cooldown.after_fill must be >= 0")
	}
	if cfg.Cooldown.FillLookback <= 0 {
		return errors.New("cooldown.fill_lookback must be > 0")
	}
	if cfg.Pools.JLP.Amount < 0 || cfg.Pools.ALP.Amount < 0 {
		return errors.New("pool amounts must be >= 0")
	}
	switch cfg.Exchange.Backend {
	case "hl", "paper":
	default:
		return fmt.Errorf("exchange.backend %q is not supported", cfg.Exchange.Backend)
	}
	if cfg.Exchange.Backend == "hl" && !cfg.Engine.DryRun {
		if cfg.Exchange.PrivateKey == "" {
			return errors.New("LPH_PRIVATE_KEY is required for the hl backend")
		}
		if cfg.Exchange.WalletAddress == "" {
			return errors.New("exchange.wallet_address (or LPH_WALLET_ADDRESS) is required for the hl backend")
		}
	}
	if cfg.Alerts.Pushover.Enabled {
		if cfg.Alerts.Pushover.Token == "" || cfg.Alerts.Pushover.UserKey == "" {
			return errors.New("alerts.pushover requires a token and user key when enabled")
		}
	}
	if cfg.Alerts.Telegram.Enabled {
		if cfg.Alerts.Telegram.Token == "" || cfg.Alerts.Telegram.ChatID == "" {
			return errors.New("alerts.telegram requires a token and chat_id when enabled")
		}
	}
	if cfg.Alerts.Telegram.OperatorEnabled && !cfg.Alerts.Telegram.Enabled {
		return errors.New("alerts.telegram.operator_enabled requires alerts.telegram.enabled")
	}
	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Timescale.Enabled && cfg.Timescale.DSN == "" {
		return errors.New("LPH_TIMESCALE_DSN is required when timescale.enabled")
	}
	return nil
}

func deriveWSURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	switch {
	case strings.HasPrefix(trimmed, "https://"):
		return "wss://" + strings.TrimPrefix(trimmed, "https://") + "/ws"
	case strings.HasPrefix(trimmed, "http://"):
		return "ws://" + strings.TrimPrefix(trimmed, "http://") + "/ws"
	default:
		return trimmed + "/ws"
	}
}
