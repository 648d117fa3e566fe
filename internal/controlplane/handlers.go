package controlplane

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/monitoring"
)

const (
	defaultOrderLimit = 100
	defaultDays       = 7
)

type submitOrderRequest struct {
	Order         *domain.Order      `json:"order"`
	Probabilities map[string]float64 `json:"probabilities,omitempty"`
}

type batchRequest struct {
	Orders []submitOrderRequest `json:"orders"`
}

type thresholdRequest struct {
	Threshold float64 `json:"threshold"`
}

type marketsRequest struct {
	Markets []string `json:"markets"`
}

type mChooseNRequest struct {
	MarketID string `json:"market_id"`
	N        int    `json:"n"`
}

func (s *Server) handleStatus(c *gin.Context) {
	out := gin.H{
		"uptime": time.Since(s.started).Truncate(time.Second).String(),
		"engine": s.deps.Engine.GetEngineStatus(c.Request.Context()),
	}
	if s.deps.Executor != nil {
		out["executor"] = s.deps.Executor.GetStatus()
	}
	if s.deps.Alerts != nil {
		out["alerts"] = s.deps.Alerts.Counts()
	}
	c.JSON(http.StatusOK, out)
}

// handleHalt 手动熔断 / 恢复下单，返回最新引擎状态
func (s *Server) handleHalt(halted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.deps.Engine.SetTradingHalted(halted)
		cpLog.Infof("下单熔断状态已设置: halted=%v", halted)
		c.JSON(http.StatusOK, s.deps.Engine.GetEngineStatus(c.Request.Context()))
	}
}

func (s *Server) handleListOrders(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultOrderLimit)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": s.deps.Engine.GetOrderHistory(limit)})
}

func (s *Server) handleSubmitOrder(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Order == nil {
		writeError(c, http.StatusBadRequest, "order is required")
		return
	}
	res := s.deps.Engine.SubmitOrder(c.Request.Context(), req.Order, req.Probabilities)
	// 领域拒绝属于正常结果，按 200 返回，由 status 字段区分
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSubmitBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Orders) == 0 {
		writeError(c, http.StatusBadRequest, "orders is required")
		return
	}
	reqs := make([]execution.OrderRequest, 0, len(req.Orders))
	for _, o := range req.Orders {
		reqs = append(reqs, execution.OrderRequest{Order: o.Order, Probabilities: o.Probabilities})
	}
	c.JSON(http.StatusOK, s.deps.Engine.SubmitOrdersBatch(c.Request.Context(), reqs))
}

func (s *Server) handleSyncOrder(c *gin.Context) {
	res, err := s.deps.Engine.SyncOrderStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, execution.ErrOrderNotFound) {
			writeError(c, http.StatusNotFound, err.Error())
			return
		}
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSyncAll(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Engine.SyncAllOrders(c.Request.Context()))
}

func (s *Server) handleLargeSummary(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultDays)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.deps.LargeOrders.GetLargeOrdersSummary(c.Request.Context(), days))
}

func (s *Server) handleLargeBySymbol(c *gin.Context) {
	days, ok := intQuery(c, "days", defaultDays)
	if !ok {
		return
	}
	symbol := c.Param("symbol")
	orders := s.deps.LargeOrders.GetLargeOrdersBySymbol(c.Request.Context(), symbol, days)
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "days": days, "orders": orders})
}

func (s *Server) handleSetThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.deps.LargeOrders.SetThreshold(req.Threshold); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"threshold": s.deps.LargeOrders.Threshold()})
}

func (s *Server) handleExecutorStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Executor.GetStatus())
}

func (s *Server) handleExecutorStart(c *gin.Context) {
	s.deps.Executor.Start(s.baseCtx)
	c.JSON(http.StatusOK, s.deps.Executor.GetStatus())
}

func (s *Server) handleExecutorStop(c *gin.Context) {
	if err := s.deps.Executor.Stop(); err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.deps.Executor.GetStatus())
}

// handleExecutorRun 默认同步执行一轮；?async=1 只唤醒后台循环
func (s *Server) handleExecutorRun(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		s.deps.Executor.Trigger()
		c.JSON(http.StatusAccepted, gin.H{"triggered": true})
		return
	}
	res, err := s.deps.Executor.RunOnce(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleExecutorMarkets(c *gin.Context) {
	var req marketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	s.deps.Executor.SetMarkets(req.Markets)
	c.JSON(http.StatusOK, s.deps.Executor.GetStatus())
}

func (s *Server) handleMChooseN(c *gin.Context) {
	var req mChooseNRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	res := s.deps.Executor.ExecuteMChooseN(c.Request.Context(), req.MarketID, req.N)
	status := http.StatusOK
	if res.Status == executor.MChooseNError {
		status = http.StatusBadRequest
	}
	c.JSON(status, res)
}

func (s *Server) handleEvent(c *gin.Context) {
	data := map[string]any{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&data); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	c.JSON(http.StatusOK, s.deps.Executor.HandleEvent(c.Request.Context(), c.Param("name"), data))
}

func (s *Server) handleAlerts(c *gin.Context) {
	level := monitoring.Level(strings.ToLower(c.Query("level")))
	c.JSON(http.StatusOK, gin.H{
		"summary": s.deps.Alerts.Counts(),
		"alerts":  s.deps.Alerts.Open(level),
	})
}

func (s *Server) handleResolveAlert(c *gin.Context) {
	if !s.deps.Alerts.Resolve(c.Param("id")) {
		writeError(c, http.StatusNotFound, "alert not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

func (s *Server) handleGetRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Risk.Config())
}

// handleSetRisk 在当前配置上合并请求体，未给出的字段保持不变
func (s *Server) handleSetRisk(c *gin.Context) {
	cfg := s.deps.Risk.Config()
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if err := s.deps.Risk.SetConfig(cfg); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	c.JSON(http.StatusOK, s.deps.Risk.Config())
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		writeError(c, http.StatusBadRequest, key+" must be a positive integer")
		return 0, false
	}
	return n, true
}
