package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/betbot/autoexec/internal/account"
	"github.com/betbot/autoexec/internal/domain"
	"github.com/betbot/autoexec/internal/events"
	"github.com/betbot/autoexec/internal/execution"
	"github.com/betbot/autoexec/internal/executor"
	"github.com/betbot/autoexec/internal/infrastructure/marketdata"
	"github.com/betbot/autoexec/internal/infrastructure/statestore"
	"github.com/betbot/autoexec/internal/infrastructure/storage"
	"github.com/betbot/autoexec/internal/infrastructure/venue/paper"
	"github.com/betbot/autoexec/internal/infrastructure/venue/polymarket"
	"github.com/betbot/autoexec/internal/largeorder"
	"github.com/betbot/autoexec/internal/liquidity"
	"github.com/betbot/autoexec/internal/monitoring"
	"github.com/betbot/autoexec/internal/ports"
	"github.com/betbot/autoexec/internal/risk"
	"github.com/betbot/autoexec/internal/strategy"
	"github.com/betbot/autoexec/pkg/config"
	"github.com/betbot/autoexec/pkg/persistence"
	"github.com/betbot/autoexec/pkg/shutdown"
)

// marketSource 市场数据来源，同时负责事件到市场的匹配
type marketSource interface {
	ports.MarketDataSource
	executor.EventMatcher
}

type app struct {
	engine      *execution.Engine
	executor    *executor.Executor
	largeOrders *largeorder.Monitor
	alerts      *monitoring.Manager
	risk        *risk.Manager
}

// buildApp 按依赖顺序创建组件；需要释放的资源注册到 sd
func buildApp(ctx context.Context, cfg *config.Config, sd *shutdown.Manager) (*app, error) {
	if err := os.MkdirAll(cfg.System.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	release, err := lockDataDir(cfg.System.DataDir)
	if err != nil {
		return nil, err
	}
	sd.OnShutdown("datadir-lock", func(context.Context) error { return release() })

	db, err := openSQLite(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	sd.OnShutdown("sqlite", func(context.Context) error { return db.Close() })

	state, err := openState(cfg.Storage)
	if err != nil {
		return nil, err
	}
	sd.OnShutdown("statestore", func(context.Context) error { return state.Close() })

	accounts, err := buildAccounts(ctx, cfg.Accounts, db)
	if err != nil {
		return nil, err
	}

	venues, closers, err := buildVenues(cfg)
	if err != nil {
		return nil, err
	}

	data, dataClose, err := buildMarketData(cfg.MarketData)
	if err != nil {
		return nil, err
	}
	if dataClose != nil {
		closers["market_data"] = dataClose
	}
	sd.OnShutdownGroup(closers)

	rc := cfg.Risk
	riskMgr, err := risk.NewManager(risk.Config{
		MaxOrderSize:       rc.MaxOrderSize,
		DailyTradeLimit:    rc.DailyTradeLimit,
		MaxMarketExposure:  rc.MaxMarketExposure,
		MaxTradesPerMinute: rc.MaxTradesPerMinute,
		MaxPositionSize:    rc.MaxPositionSize,
		StopLossPercent:    rc.StopLossPercent,
		MaxPriceDeviation:  rc.MaxPriceDeviation,
	}, risk.WithReferencePrices(marketdata.NewQuoteReference(data, 2*time.Second)))
	if err != nil {
		return nil, err
	}

	lc := cfg.Liquidity
	liq := liquidity.NewAnalyzer(liquidity.Config{
		MaxHistoryPerSymbol: lc.MaxHistoryPerSymbol,
		MinDataPoints:       lc.MinDataPoints,
		RecentWindow:        time.Duration(lc.RecentDataDays) * 24 * time.Hour,
		MinRecentData:       lc.MinRecentData,
	})

	largeDir, err := persistence.OpenDir(cfg.LargeOrders.DataDir)
	if err != nil {
		return nil, err
	}
	large, err := largeorder.NewMonitor(largeorder.Config{
		Threshold:       cfg.System.LargeOrderThreshold,
		MaxMemoryOrders: cfg.System.MaxLargeOrdersMemory,
		Workers:         cfg.LargeOrders.MaxWorkers,
	}, largeDir, db)
	if err != nil {
		return nil, err
	}

	eventDir, err := persistence.OpenDir(cfg.Events.DataDir)
	if err != nil {
		return nil, err
	}
	recorder, err := events.NewRecorder(events.Config{
		Workers:         cfg.Events.MaxWorkers,
		ImportantEvents: cfg.Events.ImportantEvents,
	}, eventDir, db)
	if err != nil {
		return nil, err
	}

	alertDir, err := persistence.OpenDir(filepath.Join(cfg.System.DataDir, "monitoring"))
	if err != nil {
		return nil, err
	}
	alerts := monitoring.NewManager(alertDir.NewStore("alerts"))

	prob, err := strategy.NewProbabilityStrategy(cfg.Probability.MinTotalProbability, cfg.Probability.SafeTotalProbability)
	if err != nil {
		return nil, err
	}

	engine, err := execution.NewEngine(execution.Config{
		MaxOrderHistory:      cfg.System.MaxOrderHistory,
		MaxConsecutiveErrors: cfg.System.MaxConsecutiveErrors,
		BreakerCooldown:      time.Duration(cfg.System.BreakerCooldown) * time.Second,
	}, execution.Deps{
		Venues:      venues,
		Accounts:    accounts,
		Settler:     accounts,
		Risk:        riskMgr,
		Liquidity:   liq,
		LargeOrders: large,
		Probability: prob,
		Events:      recorder,
		Alerts:      alerts,
		Store:       db,
	})
	if err != nil {
		return nil, err
	}

	exCfg, err := executorConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc := cfg.Signal
	sig, err := strategy.NewMarketSignal(strategy.SignalConfig{
		MinPriceDifference: sc.MinPriceDifference,
		MaxOrderSize:       sc.MaxOrderSize,
		MaxPositionSize:    sc.MaxPositionSize,
	}, data, prob,
		strategy.WithPositions(strategy.AccountPositions{Store: accounts, AccountID: exCfg.AccountID}),
		strategy.WithStopLoss(riskMgr),
	)
	if err != nil {
		return nil, err
	}

	ex, err := executor.NewExecutor(exCfg, executor.Deps{
		Recommender: sig,
		Submitter:   engine,
		Matcher:     data,
		Recorder:    recorder,
		State:       state,
	})
	if err != nil {
		return nil, err
	}

	return &app{engine: engine, executor: ex, largeOrders: large, alerts: alerts, risk: riskMgr}, nil
}

func openSQLite(path string) (*storage.DataStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建 sqlite 目录失败: %w", err)
	}
	return storage.Open(path)
}

func openState(sc config.StorageConfig) (*statestore.Store, error) {
	var key []byte
	if sc.StateEncryptionKey != "" {
		k, err := statestore.ParseKey(sc.StateEncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("state_encryption_key 无效: %w", err)
		}
		key = k
	}
	return statestore.Open(statestore.OpenOptions{Path: sc.StateDir, EncryptionKey: key})
}

// buildAccounts 以配置余额为初值，sqlite 中已有的余额覆盖之
func buildAccounts(ctx context.Context, accs []config.AccountConfig, db *storage.DataStore) (*account.Manager, error) {
	mgr := account.NewManager(db)
	for _, a := range accs {
		info := domain.NewAccountInfo(a.AccountID, a.Gateway)
		for asset, v := range a.Balances {
			info.Balances[asset] = decimal.NewFromFloat(v)
		}
		saved, err := db.Balances(ctx, a.AccountID)
		if err != nil {
			logrus.Warnf("读取账户 %s 历史余额失败: %v", a.AccountID, err)
		}
		for asset, v := range saved {
			info.Balances[asset] = v
		}
		if err := mgr.AddAccount(info); err != nil {
			return nil, err
		}
	}
	return mgr, nil
}

func buildVenues(cfg *config.Config) (map[string]ports.VenueAdapter, map[string]shutdown.Handler, error) {
	venues := make(map[string]ports.VenueAdapter)
	closers := make(map[string]shutdown.Handler)

	pc := cfg.Venues.Paper
	if pc.Enabled || cfg.System.DryRun {
		v := paper.New(pc.Name, config.Seconds(pc.FillDelay))
		venues[v.Name()] = v
	}

	mc := cfg.Venues.Polymarket
	if mc.Enabled && !cfg.System.DryRun {
		v, err := polymarket.New(polymarket.Config{
			Name:              "polymarket",
			BaseURL:           mc.BaseURL,
			WSURL:             mc.WSURL,
			RequestsPerSecond: mc.RequestsPerSecond,
			Auth: polymarket.Credentials{
				APIKey:         mc.APIKey,
				Secret:         mc.APISecret,
				Passphrase:     mc.APIPassphrase,
				PrivateKey:     mc.PrivateKey,
				Mnemonic:       mc.Mnemonic,
				DerivationPath: mc.DerivationPath,
				ChainID:        mc.ChainID,
			},
			TokenIDs: tokenIDs(mc.TokenIDs),
			NegRisk:  mc.NegRisk,
		})
		if err != nil {
			return nil, nil, err
		}
		venues[v.Name()] = v
		closers["polymarket"] = func(context.Context) error { return v.Close() }
	}
	return venues, closers, nil
}

// tokenIDs 配置键 "market/outcome" 统一成 polymarket.TokenKey 形式
func tokenIDs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, id := range in {
		market, outcome, ok := strings.Cut(k, "/")
		if !ok {
			logrus.Warnf("忽略无效的 token_ids 键 %q（应为 market/outcome）", k)
			continue
		}
		out[polymarket.TokenKey(market, outcome)] = id
	}
	return out
}

func buildMarketData(mc config.MarketDataConfig) (marketSource, shutdown.Handler, error) {
	selected := make(map[string][]string)
	markets := make([]marketdata.StaticMarket, 0, len(mc.Markets))
	for _, m := range mc.Markets {
		books := make(map[string]ports.OrderBook, len(m.Books))
		for outcome, b := range m.Books {
			books[outcome] = ports.OrderBook{
				MarketID: m.MarketID,
				Outcome:  outcome,
				Bids:     levels(b.Bids),
				Asks:     levels(b.Asks),
			}
		}
		markets = append(markets, marketdata.StaticMarket{
			MarketID:         m.MarketID,
			Question:         m.Question,
			Outcomes:         m.Outcomes,
			SelectedOutcomes: m.SelectedOutcomes,
			Probabilities:    m.Probabilities,
			Books:            books,
		})
		if len(m.SelectedOutcomes) > 0 {
			selected[m.MarketID] = m.SelectedOutcomes
		}
	}

	if mc.Source == "http" {
		src, err := marketdata.NewHTTPSource(marketdata.HTTPConfig{
			BaseURL:            mc.BaseURL,
			CacheTTL:           config.Seconds(mc.CacheTTL),
			PriceProbabilities: mc.PriceProbabilities,
			Selected:           selected,
		})
		if err != nil {
			return nil, nil, err
		}
		return src, func(context.Context) error { src.Close(); return nil }, nil
	}
	return marketdata.NewStaticSource(markets), nil, nil
}

func levels(in []config.LevelConfig) []ports.BookLevel {
	out := make([]ports.BookLevel, 0, len(in))
	for _, l := range in {
		out = append(out, ports.BookLevel{Price: l.Price, Size: l.Size})
	}
	return out
}

func executorConfig(cfg *config.Config) (executor.Config, error) {
	ec := cfg.Executor
	minConf, err := domain.ParseConfidence(ec.MinConfidence)
	if err != nil {
		return executor.Config{}, err
	}
	es := ec.EventSubscription
	evConf, err := domain.ParseConfidence(es.MinConfidence)
	if err != nil {
		return executor.Config{}, err
	}
	out := executor.DefaultConfig()
	out.Enabled = ec.Enabled
	out.CheckInterval = config.Seconds(ec.CheckInterval)
	out.MinConfidence = minConf
	out.MaxOrdersPerBatch = ec.MaxOrdersPerBatch
	out.MonitoredMarkets = ec.MonitoredMarkets
	out.Gateway = ec.Gateway
	out.AccountID = ec.AccountID
	if cfg.System.DryRun {
		out.Gateway = cfg.Venues.Paper.Name
		if out.Gateway == "" {
			out.Gateway = "paper"
		}
	}
	out.Events = executor.EventSubscription{
		Enabled:             es.Enabled,
		SubscribedEvents:    es.SubscribedEvents,
		MinConfidence:       evConf,
		MaxOrdersPerEvent:   es.MaxOrdersPerEvent,
		OrderSizeMultiplier: es.OrderSizeMultiplier,
		CooldownPeriod:      config.Seconds(es.CooldownPeriod),
	}
	return out, out.Validate()
}
