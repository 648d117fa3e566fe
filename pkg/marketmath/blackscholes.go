package marketmath

import "math"

// OptionType 期权类型
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// normCDF 标准正态分布函数
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func d1d2(s, k, t, r, sigma float64) (float64, float64) {
	sqrtT := math.Sqrt(t)
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * sqrtT)
	return d1, d1 - sigma*sqrtT
}

func degenerate(s, k, t, sigma float64) bool {
	return !(s > 0) || !(k > 0) || !(t > 0) || !(sigma > 0)
}

// BlackScholes 欧式期权价格。
// 参数退化（s/k/t/sigma 非正）时返回内在价值；未知类型返回 0。
func BlackScholes(s, k, t, r, sigma float64, typ OptionType) float64 {
	if degenerate(s, k, t, sigma) {
		switch typ {
		case Call:
			return math.Max(s-k, 0)
		case Put:
			return math.Max(k-s, 0)
		}
		return 0
	}
	d1, d2 := d1d2(s, k, t, r, sigma)
	disc := k * math.Exp(-r*t)
	switch typ {
	case Call:
		return s*normCDF(d1) - disc*normCDF(d2)
	case Put:
		return disc*normCDF(-d2) - s*normCDF(-d1)
	}
	return 0
}

// BinaryCall 现金或无（到期 S>K 支付 1）看涨价格 e^{-rT}·N(d2)，即二元结果的参考定价。
// 参数退化时按到期判断：S>K 返回 1，否则 0。
func BinaryCall(s, k, t, r, sigma float64) float64 {
	if degenerate(s, k, t, sigma) {
		if s > k {
			return 1
		}
		return 0
	}
	_, d2 := d1d2(s, k, t, r, sigma)
	return math.Exp(-r*t) * normCDF(d2)
}
