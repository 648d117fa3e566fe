package liquidity

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
)

var liqLog = logrus.WithField("component", "liquidity_analyzer")

// Config 流动性分析配置
type Config struct {
	MaxHistoryPerSymbol int           `yaml:"max_history_per_symbol"`
	MinDataPoints       int           `yaml:"min_data_points"`
	RecentWindow        time.Duration `yaml:"-"`
	MinRecentData       int           `yaml:"min_recent_data"`
}

func DefaultConfig() Config {
	return Config{
		MaxHistoryPerSymbol: 10000,
		MinDataPoints:       10,
		RecentWindow:        7 * 24 * time.Hour,
		MinRecentData:       5,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxHistoryPerSymbol <= 0 {
		c.MaxHistoryPerSymbol = d.MaxHistoryPerSymbol
	}
	if c.MinDataPoints <= 0 {
		c.MinDataPoints = d.MinDataPoints
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = d.RecentWindow
	}
	if c.MinRecentData <= 0 {
		c.MinRecentData = d.MinRecentData
	}
}

// 尺寸分桶
const (
	BucketSmall  = "small"
	BucketMedium = "medium"
	BucketLarge  = "large"
)

// SizeBucket small < 10 <= medium < 100 <= large
func SizeBucket(size float64) string {
	switch {
	case size >= 100:
		return BucketLarge
	case size >= 10:
		return BucketMedium
	default:
		return BucketSmall
	}
}

// Analysis 流动性分析结果
type Analysis struct {
	Rating           domain.ConfidenceLevel `json:"liquidity_rating"`
	SlippageEstimate float64                `json:"slippage_estimate"`
	Confidence       domain.ConfidenceLevel `json:"confidence"`
	Message          string                 `json:"message"`
	Bucket           string                 `json:"bucket,omitempty"`
	SampleCount      int                    `json:"sample_count"`
	AvgSlippage      float64                `json:"avg_slippage"`
	MaxSlippage      float64                `json:"max_slippage"`
	StdSlippage      float64                `json:"std_slippage"`
}

// Feasibility 执行可行性
type Feasibility struct {
	Feasible       bool                   `json:"feasible"`
	EstimatedPrice float64                `json:"estimated_execution_price"`
	RiskLevel      domain.ConfidenceLevel `json:"risk_level"`
	Message        string                 `json:"message"`
}

type cacheEntry struct {
	result Analysis
	// validUntil 参与计算的最旧样本滑出时间窗口的时刻；零值表示不过期
	validUntil time.Time
}

type symbolHistory struct {
	mu      sync.Mutex
	samples *sampleRing
	cache   map[float64]cacheEntry
}

// Analyzer 按标的维护滑点样本并估算流动性。
//
// 每个标的一把锁：写入样本与读取分析在同一标的上串行化，不同标的互不阻塞。
type Analyzer struct {
	cfg Config

	mu      sync.RWMutex
	symbols map[string]*symbolHistory

	now func() time.Time
}

func NewAnalyzer(cfg Config) *Analyzer {
	cfg.applyDefaults()
	return &Analyzer{
		cfg:     cfg,
		symbols: make(map[string]*symbolHistory),
		now:     time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (a *Analyzer) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Analyzer) history(symbol string, create bool) *symbolHistory {
	a.mu.RLock()
	h := a.symbols[symbol]
	a.mu.RUnlock()
	if h != nil || !create {
		return h
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if h = a.symbols[symbol]; h == nil {
		h = &symbolHistory{samples: newSampleRing(a.cfg.MaxHistoryPerSymbol), cache: make(map[float64]cacheEntry)}
		a.symbols[symbol] = h
	}
	return h
}

// AddHistoricalData 追加样本，超出容量时淘汰最旧样本，并使该标的的分析缓存失效
func (a *Analyzer) AddHistoricalData(symbol string, ts time.Time, quotedPrice, executedPrice, size float64) {
	if symbol == "" {
		liqLog.Warn("忽略空 symbol 的流动性样本")
		return
	}
	h := a.history(symbol, true)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples.push(Sample{
		Symbol:        symbol,
		Timestamp:     ts,
		QuotedPrice:   quotedPrice,
		ExecutedPrice: executedPrice,
		Size:          size,
	}, a.cfg.MaxHistoryPerSymbol)
	clear(h.cache)
}

// AnalyzeLiquidity 估算目标尺寸的流动性评级与滑点；结果按 (symbol, size) 缓存直到新样本写入
func (a *Analyzer) AnalyzeLiquidity(symbol string, targetSize float64) Analysis {
	if symbol == "" || !(targetSize > 0) {
		return Analysis{
			Rating:           domain.ConfidenceLow,
			SlippageEstimate: 0.01,
			Confidence:       domain.ConfidenceLow,
			Message:          "Invalid input parameters",
		}
	}

	h := a.history(symbol, false)
	if h == nil {
		return insufficient("Insufficient historical data", 0)
	}

	now := a.now()
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.cache[targetSize]; ok && (e.validUntil.IsZero() || now.Before(e.validUntil)) {
		return e.result
	}

	result, validUntil := a.analyzeLocked(h, targetSize, now)
	h.cache[targetSize] = cacheEntry{result: result, validUntil: validUntil}
	return result
}

func insufficient(msg string, n int) Analysis {
	return Analysis{
		Rating:           domain.ConfidenceLow,
		SlippageEstimate: 0.01,
		Confidence:       domain.ConfidenceLow,
		Message:          msg,
		SampleCount:      n,
	}
}

func (a *Analyzer) analyzeLocked(h *symbolHistory, targetSize float64, now time.Time) (Analysis, time.Time) {
	total := h.samples.len()
	if total < a.cfg.MinDataPoints {
		return insufficient("Insufficient historical data", total), time.Time{}
	}

	cutoff := now.Add(-a.cfg.RecentWindow)
	bucket := SizeBucket(targetSize)
	var (
		recent     int
		slippages  []float64
		oldestUsed time.Time
	)
	h.samples.each(func(s Sample) {
		if !s.Timestamp.After(cutoff) {
			return
		}
		recent++
		if oldestUsed.IsZero() || s.Timestamp.Before(oldestUsed) {
			oldestUsed = s.Timestamp
		}
		if SizeBucket(s.Size) == bucket {
			slippages = append(slippages, s.Slippage())
		}
	})
	var validUntil time.Time
	if !oldestUsed.IsZero() {
		validUntil = oldestUsed.Add(a.cfg.RecentWindow)
	}

	if recent < a.cfg.MinRecentData {
		return insufficient("Insufficient recent data", recent), validUntil
	}
	if len(slippages) == 0 {
		return Analysis{
			Rating:           domain.ConfidenceLow,
			SlippageEstimate: 0.02,
			Confidence:       domain.ConfidenceLow,
			Message:          fmt.Sprintf("No historical data for %s size bucket", bucket),
			Bucket:           bucket,
		}, validUntil
	}

	st := computeStats(slippages)
	res := Analysis{
		Rating:           rate(st),
		SlippageEstimate: math.Abs(st.mean + 2*st.std),
		Confidence:       domain.ConfidenceMedium,
		Message:          fmt.Sprintf("Analyzed %d historical trades for %s size bucket", st.count, bucket),
		Bucket:           bucket,
		SampleCount:      st.count,
		AvgSlippage:      st.mean,
		MaxSlippage:      st.max,
		StdSlippage:      st.std,
	}
	if st.count >= 20 {
		res.Confidence = domain.ConfidenceHigh
	}
	return res, validUntil
}

// rate 单样本无法估计离散度，直接评为 LOW
func rate(st slippageStats) domain.ConfidenceLevel {
	if st.count < 2 {
		return domain.ConfidenceLow
	}
	avg := math.Abs(st.mean)
	switch {
	case avg < 0.001 && st.std < 0.002:
		return domain.ConfidenceHigh
	case avg < 0.005 && st.std < 0.005:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// CheckExecutionFeasibility 估算执行价格；评级为 LOW 时不可行
func (a *Analyzer) CheckExecutionFeasibility(symbol string, quotedPrice, size float64) Feasibility {
	an := a.AnalyzeLiquidity(symbol, size)
	est := quotedPrice + an.SlippageEstimate
	if an.Rating == domain.ConfidenceLow {
		return Feasibility{
			Feasible:       false,
			EstimatedPrice: est,
			RiskLevel:      domain.ConfidenceHigh,
			Message:        "Low liquidity, high slippage risk",
		}
	}
	risk := domain.ConfidenceMedium
	if an.Rating == domain.ConfidenceHigh {
		risk = domain.ConfidenceLow
	}
	return Feasibility{
		Feasible:       true,
		EstimatedPrice: est,
		RiskLevel:      risk,
		Message:        fmt.Sprintf("Liquidity sufficient for execution, estimated slippage: %.6f", an.SlippageEstimate),
	}
}

// Symbols 已有样本的标的数量
func (a *Analyzer) Symbols() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.symbols)
}

// SampleCount 某标的当前样本数
func (a *Analyzer) SampleCount(symbol string) int {
	h := a.history(symbol, false)
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.samples.len()
}
