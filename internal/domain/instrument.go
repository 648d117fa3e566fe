package domain

import "fmt"

// Instrument 交易标的（不可变值对象）
type Instrument struct {
	Symbol       string  `json:"symbol"`
	BaseAsset    string  `json:"base_asset"`
	QuoteAsset   string  `json:"quote_asset"`
	MinOrderSize float64 `json:"min_order_size"`
	TickSize     float64 `json:"tick_size"`
	GatewayName  string  `json:"gateway_name"`
}

// Validate 结构校验
func (i Instrument) Validate() error {
	if i.Symbol == "" {
		return fmt.Errorf("instrument symbol 不能为空")
	}
	if i.GatewayName == "" {
		return fmt.Errorf("instrument %s 缺少 gateway", i.Symbol)
	}
	return nil
}

// Quote 计价资产，缺省 USDC
func (i Instrument) Quote() string {
	if i.QuoteAsset == "" {
		return "USDC"
	}
	return i.QuoteAsset
}
