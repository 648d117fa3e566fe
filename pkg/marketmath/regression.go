package marketmath

// Regression 一元最小二乘结果
type Regression struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RSquared  float64 `json:"r_squared"`
	Points    int     `json:"points"`
	Error     string  `json:"error,omitempty"`
}

// LinearRegression y = slope·x + intercept。
// 少于 2 个点或长度不一致时返回零值并在 Error 中说明。
func LinearRegression(x, y []float64) Regression {
	if len(x) != len(y) {
		return Regression{Error: "x and y length mismatch"}
	}
	n := len(x)
	if n < 2 {
		return Regression{Points: n, Error: "insufficient data points"}
	}
	var mx, my float64
	for i := range x {
		mx += x[i]
		my += y[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var sxx, sxy, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	res := Regression{Points: n}
	if sxx == 0 {
		res.Intercept = my
		return res
	}
	res.Slope = sxy / sxx
	res.Intercept = my - res.Slope*mx
	if syy > 0 {
		res.RSquared = sxy * sxy / (sxx * syy)
	}
	return res
}

// VARCoefficient 单变量对自身滞后值的回归
type VARCoefficient struct {
	Variable int `json:"variable"`
	Regression
}

// VARResult 向量自回归结果
type VARResult struct {
	Lag           int              `json:"lag"`
	VariableCount int              `json:"variable_count"`
	Coefficients  []VARCoefficient `json:"coefficients"`
	Error         string           `json:"error,omitempty"`
}

// VectorAutoregression 对每个变量做 x_t = a·x_{t-lag} + b 的回归。
// data 为按时间排列的观测，每行一个时间点；有效样本少于 2 时返回错误说明。
func VectorAutoregression(data [][]float64, lag int) VARResult {
	res := VARResult{Lag: lag}
	if lag <= 0 {
		res.Error = "lag must be positive"
		return res
	}
	if len(data)-lag < 2 {
		res.Error = "insufficient data for lag"
		return res
	}
	vars := len(data[0])
	for _, row := range data {
		if len(row) != vars {
			res.Error = "inconsistent variable count"
			return res
		}
	}
	res.VariableCount = vars
	for v := 0; v < vars; v++ {
		xs := make([]float64, 0, len(data)-lag)
		ys := make([]float64, 0, len(data)-lag)
		for t := lag; t < len(data); t++ {
			xs = append(xs, data[t-lag][v])
			ys = append(ys, data[t][v])
		}
		res.Coefficients = append(res.Coefficients, VARCoefficient{Variable: v, Regression: LinearRegression(xs, ys)})
	}
	return res
}
