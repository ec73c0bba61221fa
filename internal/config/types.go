package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Secondary  SecondaryConfig  `mapstructure:"secondary"`
	Bracket    BracketConfig    `mapstructure:"bracket"`
	UserStream UserStreamConfig `mapstructure:"user_stream"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string   `mapstructure:"environment"`
	Symbols     []string `mapstructure:"symbols"`
}

// MarketDataConfig 控制行情客户端的降级与重试行为。
type MarketDataConfig struct {
	BaseURL           string         `mapstructure:"base_url"`
	RequestTimeout    time.Duration  `mapstructure:"request_timeout"`
	Retries           int            `mapstructure:"retries"`
	RetryBackoff      time.Duration  `mapstructure:"retry_backoff"`
	TakerFeeBps       float64        `mapstructure:"taker_fee_bps"`
	MakerFeeBps       float64        `mapstructure:"maker_fee_bps"`
	SlippageFloorBps  float64        `mapstructure:"slippage_floor_bps"`
	EdgeMult          float64        `mapstructure:"edge_mult"`
	ExchangeInfoTTL   time.Duration  `mapstructure:"exchange_info_ttl"`
	CooldownFailures  int            `mapstructure:"cooldown_failures"`
	CooldownWindow    time.Duration  `mapstructure:"cooldown_window"`
	CoverageThreshold float64        `mapstructure:"coverage_threshold"`
	ExpectedWindows   map[string]int `mapstructure:"expected_windows"`
}

// RateLimitConfig 描述各端点的令牌桶参数。
type RateLimitConfig struct {
	DefaultRatePerMinute float64            `mapstructure:"default_rate_per_minute"`
	Capacities           map[string]float64 `mapstructure:"capacities"`
	MaxWait              time.Duration      `mapstructure:"max_wait"`
}

// SecondaryConfig 描述备用数据源（ccxt）连接信息。
type SecondaryConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// BracketConfig 控制止盈止损对账参数。
type BracketConfig struct {
	StrategyID        string  `mapstructure:"strategy_id"`
	QuantityPrecision float64 `mapstructure:"quantity_precision"`
	TakeProfitPct     float64 `mapstructure:"take_profit_pct"`
	StopLossPct       float64 `mapstructure:"stop_loss_pct"`
}

// UserStreamConfig 控制成交回报流连接。
type UserStreamConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Port int `mapstructure:"port"`
}

// SchedulerConfig 控制主循环节奏。
type SchedulerConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if len(c.App.Symbols) == 0 {
		err = multierr.Append(err, errors.New("app.symbols 至少包含一个交易对"))
	}
	if c.MarketData.BaseURL == "" {
		err = multierr.Append(err, errors.New("market_data.base_url 不能为空"))
	}
	if c.MarketData.RequestTimeout <= 0 {
		err = multierr.Append(err, errors.New("market_data.request_timeout 必须大于0"))
	}
	if c.MarketData.Retries < 0 {
		err = multierr.Append(err, errors.New("market_data.retries 不能为负"))
	}
	if c.MarketData.RetryBackoff <= 0 {
		err = multierr.Append(err, errors.New("market_data.retry_backoff 必须大于0"))
	}
	if c.MarketData.TakerFeeBps < 0 || c.MarketData.MakerFeeBps < 0 {
		err = multierr.Append(err, errors.New("market_data 手续费不能为负"))
	}
	if c.MarketData.SlippageFloorBps < 0 {
		err = multierr.Append(err, errors.New("market_data.slippage_floor_bps 不能为负"))
	}
	if c.MarketData.EdgeMult <= 0 {
		err = multierr.Append(err, errors.New("market_data.edge_mult 必须大于0"))
	}
	if c.MarketData.ExchangeInfoTTL <= 0 {
		err = multierr.Append(err, errors.New("market_data.exchange_info_ttl 必须大于0"))
	}
	if c.MarketData.CooldownFailures <= 0 {
		err = multierr.Append(err, errors.New("market_data.cooldown_failures 必须大于0"))
	}
	if c.MarketData.CooldownWindow <= 0 {
		err = multierr.Append(err, errors.New("market_data.cooldown_window 必须大于0"))
	}
	if c.MarketData.CoverageThreshold <= 0 || c.MarketData.CoverageThreshold > 1 {
		err = multierr.Append(err, errors.New("market_data.coverage_threshold 必须位于(0,1]"))
	}
	if len(c.MarketData.ExpectedWindows) == 0 {
		err = multierr.Append(err, errors.New("market_data.expected_windows 不能为空"))
	}
	if c.RateLimit.DefaultRatePerMinute <= 0 {
		err = multierr.Append(err, errors.New("rate_limit.default_rate_per_minute 必须大于0"))
	}
	if c.RateLimit.MaxWait <= 0 {
		err = multierr.Append(err, errors.New("rate_limit.max_wait 必须大于0"))
	}
	if c.Secondary.Enabled {
		if c.Secondary.Retry.MaxAttempts <= 0 {
			err = multierr.Append(err, errors.New("secondary.retry.max_attempts 必须大于0"))
		}
		if c.Secondary.Retry.MinDelay <= 0 || c.Secondary.Retry.MaxDelay <= 0 {
			err = multierr.Append(err, errors.New("secondary.retry.delay 必须为正"))
		}
		if c.Secondary.Retry.MinDelay > c.Secondary.Retry.MaxDelay {
			err = multierr.Append(err, errors.New("secondary.retry.min_delay 不能大于 max_delay"))
		}
	}
	if c.Bracket.StrategyID == "" {
		err = multierr.Append(err, errors.New("bracket.strategy_id 不能为空"))
	}
	if c.Bracket.QuantityPrecision <= 0 {
		err = multierr.Append(err, errors.New("bracket.quantity_precision 必须大于0"))
	}
	if c.Bracket.TakeProfitPct < 0 || c.Bracket.TakeProfitPct >= 100 {
		err = multierr.Append(err, errors.New("bracket.take_profit_pct 应位于[0,100)"))
	}
	if c.Bracket.StopLossPct < 0 || c.Bracket.StopLossPct >= 100 {
		err = multierr.Append(err, errors.New("bracket.stop_loss_pct 应位于[0,100)"))
	}
	if c.UserStream.Enabled {
		if c.UserStream.URL == "" {
			err = multierr.Append(err, errors.New("user_stream.url 不能为空"))
		}
		if c.UserStream.ReconnectDelay <= 0 {
			err = multierr.Append(err, errors.New("user_stream.reconnect_delay 必须大于0"))
		}
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Monitor.Port <= 0 || c.Monitor.Port > 65535 {
		err = multierr.Append(err, errors.New("monitor.port 必须位于(0,65535]"))
	}
	if c.Scheduler.LoopInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.loop_interval 必须大于0"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
