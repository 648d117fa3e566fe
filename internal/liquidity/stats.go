package liquidity

import "math"

type slippageStats struct {
	count int
	mean  float64
	max   float64
	std   float64 // 样本标准差（n-1）；count < 2 时为 0
}

func computeStats(values []float64) slippageStats {
	st := slippageStats{count: len(values)}
	if st.count == 0 {
		return st
	}
	st.max = math.Inf(-1)
	sum := 0.0
	for _, v := range values {
		sum += v
		if v > st.max {
			st.max = v
		}
	}
	st.mean = sum / float64(st.count)
	if st.count < 2 {
		return st
	}
	ss := 0.0
	for _, v := range values {
		d := v - st.mean
		ss += d * d
	}
	st.std = math.Sqrt(ss / float64(st.count-1))
	return st
}
