package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Executor.CheckInterval)
	assert.Equal(t, 5, cfg.Executor.EventSubscription.MaxOrdersPerEvent)
	assert.Equal(t, 97.0, cfg.Probability.SafeTotalProbability)
	assert.Zero(t, cfg.System.MaxConsecutiveErrors)
	assert.Equal(t, 60, cfg.System.BreakerCooldown)
}

func TestLoadYAMLKeepsDefaults(t *testing.T) {
	p := writeFile(t, `
risk:
  max_order_size: 250
executor:
  check_interval: 15
  monitored_markets: [fed-march, cpi-above-3]
  event_subscription:
    subscribed_events: [cpi]
market_data:
  markets:
    - market_id: fed-march
      outcomes: [yes, no]
      books:
        yes:
          bids: [{price: 0.4, size: 600}]
          asks: [{price: 0.42, size: 700}]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 250.0, cfg.Risk.MaxOrderSize)
	assert.Equal(t, 10000.0, cfg.Risk.DailyTradeLimit)
	assert.Equal(t, 15, cfg.Executor.CheckInterval)
	assert.Equal(t, []string{"fed-march", "cpi-above-3"}, cfg.Executor.MonitoredMarkets)
	assert.Equal(t, []string{"cpi"}, cfg.Executor.EventSubscription.SubscribedEvents)
	assert.Equal(t, 60, cfg.Executor.EventSubscription.CooldownPeriod)
	require.Len(t, cfg.MarketData.Markets, 1)
	assert.Equal(t, 0.42, cfg.MarketData.Markets[0].Books["yes"].Asks[0].Price)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOEXEC_LOG_LEVEL", "debug")
	t.Setenv("AUTOEXEC_DRY_RUN", "true")
	t.Setenv("AUTOEXEC_LISTEN_ADDR", ":9999")
	t.Setenv("AUTOEXEC_CHECK_INTERVAL", "not-a-number")
	t.Setenv("AUTOEXEC_POLYMARKET_PRIVATE_KEY", "0xabc")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.System.DryRun)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, 30, cfg.Executor.CheckInterval)
	assert.Equal(t, "0xabc", cfg.Venues.Polymarket.PrivateKey)
	assert.EqualValues(t, 137, cfg.Venues.Polymarket.ChainID)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"threshold":   func(c *Config) { c.System.LargeOrderThreshold = 0 },
		"probability": func(c *Config) { c.Probability.MinTotalProbability = 98 },
		"confidence":  func(c *Config) { c.Executor.MinConfidence = "extreme" },
		"multiplier":  func(c *Config) { c.Executor.EventSubscription.OrderSizeMultiplier = 0 },
		"venues":      func(c *Config) { c.Venues.Paper.Enabled = false },
		"source":      func(c *Config) { c.MarketData.Source = "ftp" },
		"breaker":     func(c *Config) { c.System.BreakerCooldown = -1 },
		"signer": func(c *Config) {
			c.Venues.Polymarket.Enabled = true
			c.Venues.Polymarket.PrivateKey = "0xabc"
			c.Venues.Polymarket.Mnemonic = "test junk"
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
