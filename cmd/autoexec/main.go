package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/controlplane"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/metrics"
	"github.com/betbot/autoexec/pkg/config"
	"github.com/betbot/autoexec/pkg/logger"
	"github.com/betbot/autoexec/pkg/shutdown"
)

const gracefulShutdownPeriod = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "配置文件路径（.yaml/.yml），为空只使用默认值和环境变量")
	noAutoStart := flag.Bool("no-autostart", false, "启动后不自动运行策略执行器")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	if *configPath != "" {
		logrus.Infof("使用配置文件: %s", *configPath)
	}
	if cfg.System.DryRun {
		logrus.Warn("dry-run 模式：只使用 paper 交易所")
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	sd := shutdown.NewManager()
	app, err := buildApp(rootCtx, cfg, sd)
	if err != nil {
		logrus.Errorf("初始化失败: %v", err)
		shutdownNow(sd)
		os.Exit(1)
	}

	if err := app.engine.ConnectVenues(rootCtx); err != nil {
		logrus.Errorf("连接交易所失败: %v", err)
		shutdownNow(sd)
		os.Exit(1)
	}

	if addr := cfg.Server.MetricsAddr; addr != "" {
		if _, err := metrics.StartAsync(rootCtx, addr); err != nil {
			logrus.Errorf("metrics/pprof 启动失败: %v", err)
		} else {
			logrus.Infof("metrics/pprof 启用: listen=%s (expvar:/debug/vars, counters:/debug/counters, pprof:/debug/pprof)", addr)
		}
	}

	cp, err := controlplane.New(rootCtx, controlplane.Config{ListenAddr: cfg.Server.ListenAddr}, controlplane.Deps{
		Engine:      app.engine,
		Executor:    app.executor,
		LargeOrders: app.largeOrders,
		Alerts:      app.alerts,
		Risk:        app.risk,
	})
	if err != nil {
		logrus.Errorf("创建控制面失败: %v", err)
		shutdownNow(sd)
		os.Exit(1)
	}
	if err := cp.Start(); err != nil {
		logrus.Errorf("控制面监听失败: %v", err)
		shutdownNow(sd)
		os.Exit(1)
	}
	sd.OnShutdown("controlplane", cp.Shutdown)

	if d := config.Seconds(cfg.System.SyncInterval); d > 0 {
		go syncLoop(rootCtx, app.engine, d)
	}

	if cfg.Executor.AutoStart && !*noAutoStart {
		app.executor.Start(rootCtx)
	}
	sd.OnShutdown("executor", func(context.Context) error { return app.executor.Stop() })

	logrus.Info("自动下单引擎已启动，按 Ctrl+C 停止")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("收到停止信号，正在关闭...")
	rootCancel()

	shutdownNow(sd)
	logrus.Info("自动下单引擎已停止")
}

func shutdownNow(sd *shutdown.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownPeriod)
	defer cancel()
	if err := sd.Shutdown(ctx); err != nil {
		logrus.Errorf("关闭未完成: %v", err)
	}
}

// syncLoop 定期向交易所同步活跃订单状态（没有推送的交易所依赖它推进状态）
func syncLoop(ctx context.Context, engine *execution.Engine, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sum := engine.SyncAllOrders(ctx)
			if sum.Updated > 0 || sum.Errors > 0 {
				logrus.Infof("订单同步: total=%d updated=%d not_found=%d errors=%d",
					sum.Total, sum.Updated, sum.NotFound, sum.Errors)
			}
		}
	}
}
