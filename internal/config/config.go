package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "quantgate"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.symbols", []string{"BTC/USDT:USDT"})

	v.SetDefault("market_data.base_url", "https://fapi.binance.com")
	v.SetDefault("market_data.request_timeout", "8s")
	v.SetDefault("market_data.retries", 2)
	v.SetDefault("market_data.retry_backoff", "750ms")
	v.SetDefault("market_data.taker_fee_bps", 7.0)
	v.SetDefault("market_data.maker_fee_bps", 2.0)
	v.SetDefault("market_data.slippage_floor_bps", 1.0)
	v.SetDefault("market_data.edge_mult", 1.0)
	v.SetDefault("market_data.exchange_info_ttl", "1h")
	v.SetDefault("market_data.cooldown_failures", 3)
	v.SetDefault("market_data.cooldown_window", "60s")
	v.SetDefault("market_data.coverage_threshold", 0.85)
	v.SetDefault("market_data.expected_windows", map[string]int{
		"1m":  120,
		"15m": 120,
		"1h":  120,
	})

	v.SetDefault("rate_limit.default_rate_per_minute", 1200.0)
	v.SetDefault("rate_limit.capacities", map[string]float64{"klines": 1500})
	v.SetDefault("rate_limit.max_wait", "5s")

	v.SetDefault("secondary.enabled", true)
	v.SetDefault("secondary.use_sandbox", false)
	v.SetDefault("secondary.retry.max_attempts", 3)
	v.SetDefault("secondary.retry.min_delay", "500ms")
	v.SetDefault("secondary.retry.max_delay", "5s")

	v.SetDefault("bracket.strategy_id", "quantgate")
	v.SetDefault("bracket.quantity_precision", 1e-9)
	v.SetDefault("bracket.take_profit_pct", 0.0)
	v.SetDefault("bracket.stop_loss_pct", 0.0)

	v.SetDefault("user_stream.enabled", false)
	v.SetDefault("user_stream.url", "")
	v.SetDefault("user_stream.reconnect_delay", "5s")

	v.SetDefault("database.path", "data/quantgate.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("monitor.port", 8391)

	v.SetDefault("scheduler.loop_interval", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
