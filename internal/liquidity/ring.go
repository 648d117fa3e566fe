package liquidity

import "time"

// Sample 一笔成交的滑点样本
type Sample struct {
	Symbol        string
	Timestamp     time.Time
	QuotedPrice   float64
	ExecutedPrice float64
	Size          float64
}

// Slippage 成交价 - 报价
func (s Sample) Slippage() float64 {
	return s.ExecutedPrice - s.QuotedPrice
}

// sampleRing 定长环形缓冲，写满后覆盖最旧样本
type sampleRing struct {
	buf   []Sample
	start int
	n     int
}

func newSampleRing(capacity int) *sampleRing {
	return &sampleRing{buf: make([]Sample, 0, min(capacity, 256)), n: 0}
}

func (r *sampleRing) push(s Sample, capacity int) {
	if len(r.buf) < capacity {
		// 还未写满：直接追加（start 始终为 0）
		r.buf = append(r.buf, s)
		r.n = len(r.buf)
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
	r.n = len(r.buf)
}

func (r *sampleRing) len() int { return r.n }

// each 按时间先后遍历
func (r *sampleRing) each(fn func(Sample)) {
	for i := 0; i < r.n; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}
