package execution

import (
	"time"

	"github.com/betbot/autoexec/internal/domain"
)

// 流水线步骤名
const (
	StepValidation  = "validation"
	StepProbability = "probability_check"
	StepRisk        = "risk_check"
	StepLiquidity   = "liquidity_analysis"
	StepLargeOrder  = "large_order_check"
	StepExecution   = "execution"
)

type StepStatus string

const (
	StepSuccess StepStatus = "success"
	StepWarning StepStatus = "warning"
	StepFailed  StepStatus = "failed"
)

// Step 审计轨迹中的一步
type Step struct {
	Step     string     `json:"step"`
	Status   StepStatus `json:"status"`
	Message  string     `json:"message,omitempty"`
	Recorded *bool      `json:"recorded,omitempty"`
}

// SubmissionResult 单个订单的提交结果，包含完整的步骤轨迹
type SubmissionResult struct {
	OrderID        string             `json:"order_id"`
	Status         domain.OrderStatus `json:"status"`
	Message        string             `json:"message"`
	GatewayOrderID string             `json:"gateway_order_id,omitempty"`
	Steps          []Step             `json:"steps"`
	Warnings       []string           `json:"warnings,omitempty"`
}

func (r *SubmissionResult) add(step string, status StepStatus, msg string) {
	r.Steps = append(r.Steps, Step{Step: step, Status: status, Message: msg})
	if status == StepWarning && msg != "" {
		r.Warnings = append(r.Warnings, msg)
	}
}

func (r *SubmissionResult) fail(step string, status domain.OrderStatus, msg string) {
	r.add(step, StepFailed, msg)
	r.Status = status
	r.Message = msg
}

// FailedStep 第一个失败的步骤名，没有失败返回空串
func (r SubmissionResult) FailedStep() string {
	for _, s := range r.Steps {
		if s.Status == StepFailed {
			return s.Step
		}
	}
	return ""
}

// OrderRequest 批量提交的单个输入
type OrderRequest struct {
	Order         *domain.Order
	Probabilities map[string]float64
}

// BatchResult 批量提交结果
type BatchResult struct {
	Total     int                `json:"total"`
	Submitted int                `json:"submitted"`
	Rejected  int                `json:"rejected"`
	Errors    int                `json:"errors"`
	Details   []SubmissionResult `json:"details"`
}

// HistoryEntry 订单历史
type HistoryEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Order     domain.Order     `json:"order"`
	Result    SubmissionResult `json:"execution_result"`
}

// SyncResult 单个订单的状态同步结果
type SyncResult struct {
	OrderID        string             `json:"order_id"`
	GatewayOrderID string             `json:"gateway_order_id,omitempty"`
	Found          bool               `json:"found"`
	Previous       domain.OrderStatus `json:"previous_status,omitempty"`
	Status         domain.OrderStatus `json:"status,omitempty"`
	FilledQty      float64            `json:"filled_qty"`
	Updated        bool               `json:"updated"`
	Message        string             `json:"message,omitempty"`
}

// SyncSummary 全量同步结果
type SyncSummary struct {
	Total    int          `json:"total"`
	Updated  int          `json:"updated"`
	NotFound int          `json:"not_found"`
	Errors   int          `json:"errors"`
	Details  []SyncResult `json:"details"`
}
