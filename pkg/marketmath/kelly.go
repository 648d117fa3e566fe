package marketmath

import "math"

// KellyFraction 凯利仓位比例 clamp((p·b − (1−p))/b, 0, 1)。
//
// p 为胜率（0..1），b 为盈亏比；b <= 0 或 p 非法时返回 0。
func KellyFraction(p, b float64) float64 {
	if !(b > 0) || math.IsNaN(p) || p < 0 || p > 1 || math.IsInf(b, 0) {
		return 0
	}
	f := (p*b - (1 - p)) / b
	return clamp01(f)
}

// BinaryPayoutRatio 以价格 price 买入二元结果（赢得 1）的盈亏比 (1-price)/price
func BinaryPayoutRatio(price float64) float64 {
	if !(price > 0) || price >= 1 {
		return 0
	}
	return (1 - price) / price
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
