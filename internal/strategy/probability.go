package strategy

import (
	"errors"
	"fmt"
	"sort"

	"github.com/betbot/autoexec/internal/domain"
)

const (
	DefaultMinTotalProbability  = 90.0
	DefaultSafeTotalProbability = 97.0

	// 利率决议市场的两个结果键
	KeyNoChange      = "no_change"
	KeyDecrease25bps = "25bps_decrease"
)

var ErrInvalidProbabilityBounds = errors.New("invalid probability bounds")

// ProbabilityStrategy 两个结果概率之和决定是否可以交易
type ProbabilityStrategy struct {
	min  float64
	safe float64
}

// NewProbabilityStrategy 两个阈值都必须在 [0,100] 且 min <= safe
func NewProbabilityStrategy(minTotal, safeTotal float64) (*ProbabilityStrategy, error) {
	if minTotal < 0 || minTotal > 100 || safeTotal < 0 || safeTotal > 100 {
		return nil, fmt.Errorf("%w: thresholds must be within [0,100], got min=%v safe=%v",
			ErrInvalidProbabilityBounds, minTotal, safeTotal)
	}
	if minTotal > safeTotal {
		return nil, fmt.Errorf("%w: min %v > safe %v", ErrInvalidProbabilityBounds, minTotal, safeTotal)
	}
	return &ProbabilityStrategy{min: minTotal, safe: safeTotal}, nil
}

func (s *ProbabilityStrategy) MinTotal() float64  { return s.min }
func (s *ProbabilityStrategy) SafeTotal() float64 { return s.safe }

// CheckProbability 返回 Accepted（可交易）、Warned（谨慎交易）或 Rejected。
func (s *ProbabilityStrategy) CheckProbability(p1, p2 float64) domain.Verdict {
	if p1 < 0 || p2 < 0 {
		return domain.Reject("不允许负概率")
	}
	if p1 > 100 || p2 > 100 {
		return domain.Reject("概率不能超过100")
	}
	total := p1 + p2
	switch {
	case total >= s.safe:
		return domain.Accept()
	case total >= s.min:
		return domain.Warn(fmt.Sprintf("总概率 %.2f 低于 %.2f，请谨慎操作", total, s.safe))
	default:
		return domain.Reject(fmt.Sprintf("总概率 %.2f < %.2f，需要业务判断", total, s.min))
	}
}

// ProbabilityAnalysis 市场概率分析
type ProbabilityAnalysis struct {
	P1       float64                `json:"p1"`
	P2       float64                `json:"p2"`
	Total    float64                `json:"total"`
	CanTrade bool                   `json:"can_trade"`
	Message  string                 `json:"message,omitempty"`
	Signal   domain.Signal          `json:"signal"`
	Level    domain.ConfidenceLevel `json:"confidence"`
}

// Analyze 对一组结果概率做判断。
//
// 有 no_change/25bps_decrease 两个键时使用它们；否则取最大的两个概率。
func (s *ProbabilityStrategy) Analyze(probs map[string]float64) ProbabilityAnalysis {
	p1, p2 := ProbabilityPair(probs)
	v := s.CheckProbability(p1, p2)
	a := ProbabilityAnalysis{
		P1:       p1,
		P2:       p2,
		Total:    p1 + p2,
		CanTrade: v.Allowed(),
		Message:  v.Reason,
	}
	a.Signal, a.Level = s.recommend(a)
	return a
}

// Recommendation 信号与置信度：>= safe 为 STRONG_BUY/HIGH，>= min 为 CAUTIOUS_BUY/MEDIUM，否则 HOLD/LOW
func (s *ProbabilityStrategy) Recommendation(p1, p2 float64) (domain.Signal, domain.ConfidenceLevel) {
	v := s.CheckProbability(p1, p2)
	return s.recommend(ProbabilityAnalysis{Total: p1 + p2, CanTrade: v.Allowed()})
}

func (s *ProbabilityStrategy) recommend(a ProbabilityAnalysis) (domain.Signal, domain.ConfidenceLevel) {
	if !a.CanTrade {
		return domain.SignalHold, domain.ConfidenceLow
	}
	if a.Total >= s.safe {
		return domain.SignalStrongBuy, domain.ConfidenceHigh
	}
	return domain.SignalCautiousBuy, domain.ConfidenceMedium
}

// ProbabilityPair 从概率表中取出参与求和的两个值
func ProbabilityPair(probs map[string]float64) (float64, float64) {
	a, okA := probs[KeyNoChange]
	b, okB := probs[KeyDecrease25bps]
	if okA || okB {
		return a, b
	}
	vals := make([]float64, 0, len(probs))
	for _, v := range probs {
		vals = append(vals, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	switch len(vals) {
	case 0:
		return 0, 0
	case 1:
		return vals[0], 0
	}
	return vals[0], vals[1]
}
