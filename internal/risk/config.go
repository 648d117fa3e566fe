package risk

import "fmt"

// Config 风控限额配置。金额口径均为计价资产（USDC）。
type Config struct {
	MaxOrderSize       float64 `yaml:"max_order_size" json:"max_order_size"`
	DailyTradeLimit    float64 `yaml:"daily_trade_limit" json:"daily_trade_limit"`
	MaxMarketExposure  float64 `yaml:"max_market_exposure" json:"max_market_exposure"`
	MaxTradesPerMinute int     `yaml:"max_trades_per_minute" json:"max_trades_per_minute"`
	MaxPositionSize    float64 `yaml:"max_position_size" json:"max_position_size"`
	StopLossPercent    float64 `yaml:"stop_loss_percent" json:"stop_loss_percent"`
	// MaxPriceDeviation 相对参考价的最大偏离比例；仅在配置了参考价来源时生效
	MaxPriceDeviation float64 `yaml:"max_price_deviation" json:"max_price_deviation"`
}

// DefaultConfig 默认限额
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:       1000,
		DailyTradeLimit:    10000,
		MaxMarketExposure:  5000,
		MaxTradesPerMinute: 10,
		MaxPositionSize:    10000,
		StopLossPercent:    0.05,
		MaxPriceDeviation:  0.1,
	}
}

// Validate 校验限额配置
func (c Config) Validate() error {
	if c.MaxOrderSize <= 0 {
		return fmt.Errorf("risk.max_order_size 必须 > 0")
	}
	if c.DailyTradeLimit <= 0 {
		return fmt.Errorf("risk.daily_trade_limit 必须 > 0")
	}
	if c.MaxMarketExposure <= 0 {
		return fmt.Errorf("risk.max_market_exposure 必须 > 0")
	}
	if c.MaxTradesPerMinute <= 0 {
		return fmt.Errorf("risk.max_trades_per_minute 必须 > 0")
	}
	if c.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size 必须 > 0")
	}
	if c.StopLossPercent < 0 || c.StopLossPercent >= 1 {
		return fmt.Errorf("risk.stop_loss_percent 必须在 [0,1) 内")
	}
	if c.MaxPriceDeviation < 0 {
		return fmt.Errorf("risk.max_price_deviation 不能为负")
	}
	return nil
}
