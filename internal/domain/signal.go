package domain

import (
	"fmt"
	"strings"
)

// ConfidenceLevel 置信度，按 LOW < MEDIUM < HIGH 比较
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "LOW"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceHigh   ConfidenceLevel = "HIGH"
)

// Rank 序数：LOW=1 MEDIUM=2 HIGH=3，未知为 0
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	}
	return 0
}

// AtLeast c >= min
func (c ConfidenceLevel) AtLeast(min ConfidenceLevel) bool {
	return c.Rank() >= min.Rank()
}

// ParseConfidence 大小写不敏感解析
func ParseConfidence(s string) (ConfidenceLevel, error) {
	c := ConfidenceLevel(strings.ToUpper(strings.TrimSpace(s)))
	if c.Rank() == 0 {
		return "", fmt.Errorf("unknown confidence level %q", s)
	}
	return c, nil
}

// Signal 交易信号
type Signal string

const (
	SignalStrongBuy   Signal = "STRONG_BUY"
	SignalCautiousBuy Signal = "CAUTIOUS_BUY"
	SignalBuy         Signal = "BUY"
	SignalSell        Signal = "SELL"
	SignalHold        Signal = "HOLD"
	SignalArbitrage   Signal = "ARBITRAGE"
)

// IsBuy 所有买入类信号
func (s Signal) IsBuy() bool {
	return s == SignalBuy || s == SignalStrongBuy || s == SignalCautiousBuy
}

// VerdictKind 判定结果类别
type VerdictKind string

const (
	VerdictAccepted VerdictKind = "accepted"
	VerdictRejected VerdictKind = "rejected"
	VerdictWarned   VerdictKind = "warned"
)

// Verdict 检查结论：通过、拒绝或带警告通过
type Verdict struct {
	Kind   VerdictKind
	Reason string
}

func Accept() Verdict                { return Verdict{Kind: VerdictAccepted} }
func Reject(reason string) Verdict   { return Verdict{Kind: VerdictRejected, Reason: reason} }
func Warn(reason string) Verdict     { return Verdict{Kind: VerdictWarned, Reason: reason} }
func (v Verdict) Allowed() bool      { return v.Kind != VerdictRejected }
