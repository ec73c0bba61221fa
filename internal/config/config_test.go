package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: test
  symbols:
    - BTC/USDT:USDT
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.MarketData.RequestTimeout != 8*time.Second {
		t.Errorf("unexpected request timeout: %v", cfg.MarketData.RequestTimeout)
	}
	if cfg.MarketData.Retries != 2 {
		t.Errorf("unexpected retries: %d", cfg.MarketData.Retries)
	}
	if cfg.MarketData.CoverageThreshold != 0.85 {
		t.Errorf("unexpected coverage threshold: %v", cfg.MarketData.CoverageThreshold)
	}
	if cfg.MarketData.ExpectedWindows["15m"] != 120 {
		t.Errorf("unexpected expected windows: %v", cfg.MarketData.ExpectedWindows)
	}
	if cfg.RateLimit.DefaultRatePerMinute != 1200 {
		t.Errorf("unexpected default rate: %v", cfg.RateLimit.DefaultRatePerMinute)
	}
	if cfg.RateLimit.Capacities["klines"] != 1500 {
		t.Errorf("unexpected klines capacity: %v", cfg.RateLimit.Capacities)
	}
	if cfg.Bracket.StrategyID != "quantgate" {
		t.Errorf("unexpected strategy id: %s", cfg.Bracket.StrategyID)
	}
	if cfg.Scheduler.LoopInterval != time.Minute {
		t.Errorf("unexpected loop interval: %v", cfg.Scheduler.LoopInterval)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: production
  symbols:
    - ETH/USDT:USDT
market_data:
  retries: 5
  retry_backoff: 2s
  coverage_threshold: 0.9
rate_limit:
  max_wait: 10s
bracket:
  take_profit_pct: 2.5
  stop_loss_pct: 1.0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.App.Environment != "production" {
		t.Errorf("unexpected environment: %s", cfg.App.Environment)
	}
	if cfg.MarketData.Retries != 5 {
		t.Errorf("unexpected retries: %d", cfg.MarketData.Retries)
	}
	if cfg.MarketData.RetryBackoff != 2*time.Second {
		t.Errorf("unexpected backoff: %v", cfg.MarketData.RetryBackoff)
	}
	if cfg.RateLimit.MaxWait != 10*time.Second {
		t.Errorf("unexpected max wait: %v", cfg.RateLimit.MaxWait)
	}
	if cfg.Bracket.TakeProfitPct != 2.5 {
		t.Errorf("unexpected tp pct: %v", cfg.Bracket.TakeProfitPct)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: ""
  symbols: []
market_data:
  coverage_threshold: 1.5
`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	msg := err.Error()
	for _, want := range []string{"app.environment", "app.symbols", "coverage_threshold"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error should mention %s, got %q", want, msg)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateUserStreamRequiresURL(t *testing.T) {
	path := writeConfig(t, `
app:
  environment: test
  symbols:
    - BTC/USDT:USDT
user_stream:
  enabled: true
  url: ""
`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "user_stream.url") {
		t.Fatalf("expected user_stream.url validation error, got %v", err)
	}
}
