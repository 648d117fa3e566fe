package executor

import (
	"fmt"
	"time"

	"github.com/betbot/autoexec/internal/domain"
)

// EventSubscription 事件触发下单配置
type EventSubscription struct {
	Enabled             bool
	SubscribedEvents    []string
	MinConfidence       domain.ConfidenceLevel
	MaxOrdersPerEvent   int
	OrderSizeMultiplier float64
	CooldownPeriod      time.Duration
}

// Config 策略执行器配置
type Config struct {
	Enabled           bool
	CheckInterval     time.Duration
	MinConfidence     domain.ConfidenceLevel
	MaxOrdersPerBatch int
	MonitoredMarkets  []string

	// 下单目标
	Gateway    string
	AccountID  string
	QuoteAsset string

	Events EventSubscription
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		CheckInterval:     30 * time.Second,
		MinConfidence:     domain.ConfidenceMedium,
		MaxOrdersPerBatch: 10,
		Gateway:           "polymarket",
		AccountID:         "main_account",
		QuoteAsset:        "USDC",
		Events: EventSubscription{
			Enabled:             true,
			MinConfidence:       domain.ConfidenceMedium,
			MaxOrdersPerEvent:   5,
			OrderSizeMultiplier: 1.0,
			CooldownPeriod:      60 * time.Second,
		},
	}
}

func (c Config) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive")
	}
	if c.MinConfidence.Rank() == 0 {
		return fmt.Errorf("unknown min_confidence %q", c.MinConfidence)
	}
	if c.MaxOrdersPerBatch <= 0 {
		return fmt.Errorf("max_orders_per_batch must be positive")
	}
	if c.Gateway == "" || c.AccountID == "" {
		return fmt.Errorf("gateway and account_id are required")
	}
	e := c.Events
	if e.MinConfidence.Rank() == 0 {
		return fmt.Errorf("unknown event_subscription.min_confidence %q", e.MinConfidence)
	}
	if e.MaxOrdersPerEvent <= 0 {
		return fmt.Errorf("event_subscription.max_orders_per_event must be positive")
	}
	if !(e.OrderSizeMultiplier > 0) {
		return fmt.Errorf("event_subscription.order_size_multiplier must be positive")
	}
	if e.CooldownPeriod < 0 {
		return fmt.Errorf("event_subscription.cooldown_period must be >= 0")
	}
	return nil
}
