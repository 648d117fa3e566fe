package controlplane

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/monitoring"
	"github.com/betbot/autoexec/internal/risk"
)

var cpLog = logrus.WithField("component", "controlplane")

// Engine 下单引擎（execution.Engine）
type Engine interface {
	GetEngineStatus(ctx context.Context) execution.EngineStatus
	GetOrderHistory(limit int) []execution.HistoryEntry
	SubmitOrder(ctx context.Context, order *domain.Order, probabilities map[string]float64) execution.SubmissionResult
	SubmitOrdersBatch(ctx context.Context, reqs []execution.OrderRequest) execution.BatchResult
	SyncOrderStatus(ctx context.Context, orderID string) (execution.SyncResult, error)
	SyncAllOrders(ctx context.Context) execution.SyncSummary
	SetTradingHalted(halted bool)
}

// Scheduler 策略执行器（executor.Executor）
type Scheduler interface {
	GetStatus() executor.Status
	Start(ctx context.Context)
	Stop() error
	Trigger()
	RunOnce(ctx context.Context) (executor.PassResult, error)
	SetMarkets(markets []string)
	ExecuteMChooseN(ctx context.Context, marketID string, n int) executor.MChooseNResult
	HandleEvent(ctx context.Context, eventName string, data map[string]any) executor.EventResult
}

// LargeOrders 大额订单查询（largeorder.Monitor）
type LargeOrders interface {
	GetLargeOrdersSummary(ctx context.Context, days int) largeorder.Summary
	GetLargeOrdersBySymbol(ctx context.Context, symbol string, days int) []largeorder.Record
	Threshold() float64
	SetThreshold(v float64) error
}

// Alerts 告警（monitoring.Manager）
type Alerts interface {
	Open(level monitoring.Level) []monitoring.Alert
	Counts() monitoring.Summary
	Resolve(id string) bool
}

// RiskLimits 风控限额热更新（risk.Manager）
type RiskLimits interface {
	Config() risk.Config
	SetConfig(cfg risk.Config) error
}

// Deps Engine 必填，其余为空时对应路由返回 503
type Deps struct {
	Engine      Engine
	Executor    Scheduler
	LargeOrders LargeOrders
	Alerts      Alerts
	Risk        RiskLimits
}

type Config struct {
	ListenAddr string
}

// Server 运行时控制面：查询状态、手动下单、驱动执行器
type Server struct {
	cfg  Config
	deps Deps

	// 执行器循环挂在 baseCtx 上，不随单个请求结束
	baseCtx context.Context
	httpSrv *http.Server
	started time.Time
}

func New(ctx context.Context, cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("controlplane: engine is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return &Server{cfg: cfg, deps: deps, baseCtx: ctx, started: time.Now()}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)

	orders := api.Group("/orders")
	orders.GET("", s.handleListOrders)
	orders.POST("", s.handleSubmitOrder)
	orders.POST("/batch", s.handleSubmitBatch)
	orders.POST("/sync", s.handleSyncAll)
	orders.POST("/:id/sync", s.handleSyncOrder)

	api.POST("/engine/halt", s.handleHalt(true))
	api.POST("/engine/resume", s.handleHalt(false))

	large := api.Group("/large-orders", s.require(s.deps.LargeOrders != nil, "large order monitor"))
	large.GET("/summary", s.handleLargeSummary)
	large.PUT("/threshold", s.handleSetThreshold)
	large.GET("/:symbol", s.handleLargeBySymbol)

	ex := api.Group("/executor", s.require(s.deps.Executor != nil, "executor"))
	ex.GET("", s.handleExecutorStatus)
	ex.POST("/start", s.handleExecutorStart)
	ex.POST("/stop", s.handleExecutorStop)
	ex.POST("/run", s.handleExecutorRun)
	ex.PUT("/markets", s.handleExecutorMarkets)
	ex.POST("/mchoosen", s.handleMChooseN)

	api.POST("/events/:name", s.require(s.deps.Executor != nil, "executor"), s.handleEvent)

	alerts := api.Group("/alerts", s.require(s.deps.Alerts != nil, "alerts"))
	alerts.GET("", s.handleAlerts)
	alerts.POST("/:id/resolve", s.handleResolveAlert)

	api.GET("/risk/config", s.require(s.deps.Risk != nil, "risk manager"), s.handleGetRisk)
	api.PUT("/risk/config", s.require(s.deps.Risk != nil, "risk manager"), s.handleSetRisk)

	return r
}

func (s *Server) require(ok bool, what string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ok {
			writeError(c, http.StatusServiceUnavailable, what+" not configured")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Start 后台监听；监听失败直接返回
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	cpLog.Infof("控制面已启动: %s", ln.Addr())
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cpLog.Errorf("控制面退出: %v", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}
