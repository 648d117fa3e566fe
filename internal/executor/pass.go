package executor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/internal/strategy"
)

// PassResult 一轮扫描的结果
type PassResult struct {
	StartedAt       time.Time              `json:"started_at"`
	Duration        string                 `json:"duration"`
	Markets         int                    `json:"markets"`
	Recommendations int                    `json:"recommendations"`
	Valid           int                    `json:"valid"`
	Submitted       int                    `json:"submitted"`
	Errors          []string               `json:"errors,omitempty"`
	Batch           *execution.BatchResult `json:"batch,omitempty"`
}

// MChooseNResult M 选 N 执行结果
type MChooseNResult struct {
	Status           string                 `json:"status"`
	Message          string                 `json:"message,omitempty"`
	MarketID         string                 `json:"market_id"`
	M                int                    `json:"m"`
	N                int                    `json:"n"`
	SelectedCount    int                    `json:"selected_count"`
	SelectedOutcomes []string               `json:"selected_outcomes"`
	Batch            *execution.BatchResult `json:"batch,omitempty"`
}

const (
	MChooseNSuccess = "success"
	MChooseNError   = "error"
	MChooseNNoValid = "no_valid_outcomes"
)

// RunOnce 执行一轮扫描：生成建议、过滤、截断到单批上限后批量下单
func (x *Executor) RunOnce(ctx context.Context) (PassResult, error) {
	x.passMu.Lock()
	defer x.passMu.Unlock()

	start := x.now()
	res := PassResult{StartedAt: start}
	markets := x.Markets()
	res.Markets = len(markets)

	var valid []strategy.Recommendation
	for _, m := range markets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		outcomes, err := x.deps.Recommender.Outcomes(ctx, m)
		if err != nil {
			execLog.Warnf("获取市场结果失败: market=%s err=%v", m, err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m, err))
			continue
		}
		if len(outcomes) == 0 {
			outcomes = []string{""}
		}
		for _, o := range outcomes {
			rec := x.deps.Recommender.Recommend(ctx, m, o)
			res.Recommendations++
			if validRecommendation(rec, x.cfg.MinConfidence) {
				valid = append(valid, rec)
			}
		}
	}
	res.Valid = len(valid)
	sortByConfidence(valid)
	if len(valid) > x.cfg.MaxOrdersPerBatch {
		execLog.Infof("有效建议 %d 条，截断到 %d", len(valid), x.cfg.MaxOrdersPerBatch)
		valid = valid[:x.cfg.MaxOrdersPerBatch]
	}

	if len(valid) > 0 {
		batch := x.submit(ctx, valid, "auto", 1.0)
		res.Batch = &batch
		res.Submitted = batch.Submitted
	}

	res.Duration = x.now().Sub(start).String()
	x.passCount++
	x.lastPassAt = start
	x.lastErr = ""
	if len(res.Errors) > 0 {
		x.lastErr = res.Errors[len(res.Errors)-1]
		metrics.StrategyPassErrors.Add(1)
	}
	metrics.StrategyPasses.Add(1)
	execLog.Debugf("策略扫描完成: markets=%d recs=%d valid=%d submitted=%d",
		res.Markets, res.Recommendations, res.Valid, res.Submitted)
	return res, nil
}

// ExecuteMChooseN 在一个 M 结果市场中选置信度最高的 N 个结果下单
func (x *Executor) ExecuteMChooseN(ctx context.Context, marketID string, n int) MChooseNResult {
	res := MChooseNResult{MarketID: marketID, N: n, SelectedOutcomes: []string{}}
	if marketID == "" {
		res.Status, res.Message = MChooseNError, "market_id is required"
		return res
	}
	if n <= 0 {
		res.Status, res.Message = MChooseNError, "n must be positive"
		return res
	}
	outcomes, err := x.deps.Recommender.AllOutcomes(ctx, marketID)
	if err != nil {
		res.Status, res.Message = MChooseNError, err.Error()
		return res
	}
	res.M = len(outcomes)
	if res.M == 0 {
		res.Status, res.Message = MChooseNError, "market has no outcomes"
		return res
	}
	if n > res.M {
		execLog.Warnf("N=%d 大于结果数 M=%d，按 M 处理", n, res.M)
		res.N = res.M
	}

	var valid []strategy.Recommendation
	for _, o := range outcomes {
		rec := x.deps.Recommender.Recommend(ctx, marketID, o)
		if rec.Actionable() {
			valid = append(valid, rec)
		}
	}
	if len(valid) == 0 {
		res.Status, res.Message = MChooseNNoValid, "没有有效的交易建议"
		return res
	}
	sortByConfidence(valid)
	if len(valid) > res.N {
		valid = valid[:res.N]
	}
	for _, r := range valid {
		res.SelectedOutcomes = append(res.SelectedOutcomes, r.Outcome)
	}
	res.SelectedCount = len(valid)
	batch := x.submit(ctx, valid, "mchoosen", 1.0)
	res.Batch = &batch
	res.Status = MChooseNSuccess
	execLog.Infof("M选N完成: market=%s M=%d N=%d selected=%v", marketID, res.M, res.N, res.SelectedOutcomes)
	return res
}

func validRecommendation(rec strategy.Recommendation, min domain.ConfidenceLevel) bool {
	return rec.MarketID != "" &&
		rec.Signal != domain.SignalHold &&
		rec.Size > 0 &&
		rec.Confidence.AtLeast(min)
}

func (x *Executor) submit(ctx context.Context, recs []strategy.Recommendation, prefix string, sizeMul float64) execution.BatchResult {
	reqs := make([]execution.OrderRequest, 0, len(recs))
	for _, r := range recs {
		reqs = append(reqs, execution.OrderRequest{
			Order:         x.buildOrder(r, prefix, sizeMul),
			Probabilities: r.Probabilities,
		})
	}
	return x.deps.Submitter.SubmitOrdersBatch(ctx, reqs)
}

// buildOrder 建议 -> 订单；有价格时为限价单，否则为市价单
func (x *Executor) buildOrder(rec strategy.Recommendation, prefix string, sizeMul float64) *domain.Order {
	now := x.now()
	base := rec.Outcome
	if base == "" {
		base = "OUTCOME"
	}
	o := &domain.Order{
		OrderID: x.orderID(prefix, rec, now),
		Instrument: domain.Instrument{
			Symbol:       rec.MarketID,
			BaseAsset:    base,
			QuoteAsset:   x.cfg.QuoteAsset,
			MinOrderSize: 1,
			TickSize:     0.01,
			GatewayName:  x.cfg.Gateway,
		},
		Side:      rec.Side(),
		Type:      domain.OrderTypeMarket,
		Quantity:  rec.Size * sizeMul,
		Outcome:   rec.Outcome,
		Status:    domain.OrderStatusPending,
		AccountID: x.cfg.AccountID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rec.Price > 0 {
		o.Type = domain.OrderTypeLimit
		o.Price = rec.Price
	}
	return o
}

func (x *Executor) orderID(prefix string, rec strategy.Recommendation, now time.Time) string {
	outcome := "none"
	if rec.Outcome != "" {
		outcome = truncate(rec.Outcome, 4)
	}
	seq := atomic.AddUint64(&x.seq, 1)
	return fmt.Sprintf("%s_%d_%s_%s_%d", prefix, now.Unix(), truncate(rec.MarketID, 8), outcome, seq)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
