package largeorder

import (
	"math"
	"sync/atomic"
)

func loadFloat(v *atomic.Uint64) float64 {
	return math.Float64frombits(v.Load())
}

func storeFloat(v *atomic.Uint64, f float64) {
	v.Store(math.Float64bits(f))
}
