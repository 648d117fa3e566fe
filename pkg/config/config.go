package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SystemConfig 引擎级配置
type SystemConfig struct {
	MaxOrderHistory      int     `yaml:"max_order_history"`
	MaxLargeOrdersMemory int     `yaml:"max_large_orders_memory"`
	LargeOrderThreshold  float64 `yaml:"large_order_threshold"`
	DataDir              string  `yaml:"data_dir"`
	MaxConsecutiveErrors int64   `yaml:"max_consecutive_errors"` // 0 表示不自动熔断
	BreakerCooldown      int     `yaml:"breaker_cooldown"`       // 秒，自动熔断后半开试探的等待时间
	SyncInterval         int     `yaml:"sync_interval"` // 秒，0 表示不做定期状态同步
	DryRun               bool    `yaml:"dry_run"`
}

type RiskConfig struct {
	MaxOrderSize       float64 `yaml:"max_order_size"`
	DailyTradeLimit    float64 `yaml:"daily_trade_limit"`
	MaxMarketExposure  float64 `yaml:"max_market_exposure"`
	MaxTradesPerMinute int     `yaml:"max_trades_per_minute"`
	MaxPositionSize    float64 `yaml:"max_position_size"`
	StopLossPercent    float64 `yaml:"stop_loss_percent"`
	MaxPriceDeviation  float64 `yaml:"max_price_deviation"`
}

type ProbabilityConfig struct {
	MinTotalProbability  float64 `yaml:"min_total_probability"`
	SafeTotalProbability float64 `yaml:"safe_total_probability"`
}

type LiquidityConfig struct {
	MaxHistoryPerSymbol int `yaml:"max_history_per_symbol"`
	MinDataPoints       int `yaml:"min_data_points"`
	RecentDataDays      int `yaml:"recent_data_days"`
	MinRecentData       int `yaml:"min_recent_data"`
}

type LargeOrdersConfig struct {
	DataDir    string `yaml:"data_dir"`
	MaxWorkers int    `yaml:"max_workers"`
}

type EventsConfig struct {
	DataDir         string   `yaml:"data_dir"`
	MaxWorkers      int      `yaml:"max_workers"`
	BatchSize       int      `yaml:"batch_size"`
	ImportantEvents []string `yaml:"important_events"`
}

type EventSubscriptionConfig struct {
	Enabled             bool     `yaml:"enabled"`
	SubscribedEvents    []string `yaml:"subscribed_events"`
	MinConfidence       string   `yaml:"min_confidence"`
	MaxOrdersPerEvent   int      `yaml:"max_orders_per_event"`
	OrderSizeMultiplier float64  `yaml:"order_size_multiplier"`
	CooldownPeriod      int      `yaml:"cooldown_period"` // 秒
}

type ExecutorConfig struct {
	CheckInterval     int                     `yaml:"check_interval"` // 秒
	MinConfidence     string                  `yaml:"min_confidence"`
	MaxOrdersPerBatch int                     `yaml:"max_orders_per_batch"`
	Enabled           bool                    `yaml:"enabled"`
	AutoStart         bool                    `yaml:"auto_start"`
	Gateway           string                  `yaml:"gateway"`
	AccountID         string                  `yaml:"account_id"`
	MonitoredMarkets  []string                `yaml:"monitored_markets"`
	EventSubscription EventSubscriptionConfig `yaml:"event_subscription"`
}

type SignalConfig struct {
	MinPriceDifference float64 `yaml:"min_price_difference"`
	MaxOrderSize       float64 `yaml:"max_order_size"`
	MaxPositionSize    float64 `yaml:"max_position_size"`
}

type AccountConfig struct {
	AccountID string             `yaml:"account_id"`
	Gateway   string             `yaml:"gateway"`
	Balances  map[string]float64 `yaml:"balances"`
}

type PaperVenueConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Name      string `yaml:"name"`
	FillDelay int    `yaml:"fill_delay"` // 秒
}

type PolymarketVenueConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	WSURL             string  `yaml:"ws_url"`
	APIKey            string  `yaml:"api_key"`
	APISecret         string  `yaml:"api_secret"`
	APIPassphrase     string  `yaml:"api_passphrase"`
	PrivateKey        string  `yaml:"private_key"` // 直连签名；为空且无助记词时走中继
	Mnemonic          string  `yaml:"mnemonic"`
	DerivationPath    string  `yaml:"derivation_path"`
	ChainID           int64   `yaml:"chain_id"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// market/outcome -> CLOB token id；签名模式下据此生成交易所签名订单
	TokenIDs map[string]string `yaml:"token_ids"`
	NegRisk  bool              `yaml:"neg_risk"`
}

type VenuesConfig struct {
	Paper      PaperVenueConfig      `yaml:"paper"`
	Polymarket PolymarketVenueConfig `yaml:"polymarket"`
}

type LevelConfig struct {
	Price float64 `yaml:"price"`
	Size  float64 `yaml:"size"`
}

type BookConfig struct {
	Bids []LevelConfig `yaml:"bids"`
	Asks []LevelConfig `yaml:"asks"`
}

type MarketConfig struct {
	MarketID         string                `yaml:"market_id"`
	Question         string                `yaml:"question"`
	Outcomes         []string              `yaml:"outcomes"`
	SelectedOutcomes []string              `yaml:"selected_outcomes"`
	Probabilities    map[string]float64    `yaml:"probabilities"`
	Books            map[string]BookConfig `yaml:"books"`
}

type MarketDataConfig struct {
	Source             string         `yaml:"source"` // static | http
	BaseURL            string         `yaml:"base_url"`
	CacheTTL           int            `yaml:"cache_ttl"` // 秒
	PriceProbabilities bool           `yaml:"price_probabilities"`
	Markets            []MarketConfig `yaml:"markets"`
}

type StorageConfig struct {
	SQLitePath         string `yaml:"sqlite_path"`
	StateDir           string `yaml:"state_dir"`
	StateEncryptionKey string `yaml:"state_encryption_key"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Config 应用配置（YAML 文件 + .env + AUTOEXEC_* 环境变量覆盖）
type Config struct {
	System      SystemConfig      `yaml:"system"`
	Risk        RiskConfig        `yaml:"risk"`
	Probability ProbabilityConfig `yaml:"probability"`
	Liquidity   LiquidityConfig   `yaml:"liquidity"`
	LargeOrders LargeOrdersConfig `yaml:"large_orders"`
	Events      EventsConfig      `yaml:"events"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Signal      SignalConfig      `yaml:"signal"`
	Accounts    []AccountConfig   `yaml:"accounts"`
	Venues      VenuesConfig      `yaml:"venues"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Storage     StorageConfig     `yaml:"storage"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Default 全部默认值
func Default() *Config {
	return &Config{
		System: SystemConfig{
			MaxOrderHistory:      10000,
			MaxLargeOrdersMemory: 1000,
			LargeOrderThreshold:  100,
			DataDir:              "data",
			BreakerCooldown:      60,
			SyncInterval:         10,
		},
		Risk: RiskConfig{
			MaxOrderSize:       1000,
			DailyTradeLimit:    10000,
			MaxMarketExposure:  5000,
			MaxTradesPerMinute: 10,
			MaxPositionSize:    10000,
			StopLossPercent:    0.05,
			MaxPriceDeviation:  0.1,
		},
		Probability: ProbabilityConfig{MinTotalProbability: 90, SafeTotalProbability: 97},
		Liquidity: LiquidityConfig{
			MaxHistoryPerSymbol: 10000,
			MinDataPoints:       10,
			RecentDataDays:      7,
			MinRecentData:       5,
		},
		LargeOrders: LargeOrdersConfig{DataDir: "data/large_orders", MaxWorkers: 4},
		Events:      EventsConfig{DataDir: "data/events", MaxWorkers: 4, BatchSize: 10},
		Executor: ExecutorConfig{
			CheckInterval:     30,
			MinConfidence:     "MEDIUM",
			MaxOrdersPerBatch: 10,
			Enabled:           true,
			AutoStart:         true,
			Gateway:           "paper",
			AccountID:         "main_account",
			EventSubscription: EventSubscriptionConfig{
				Enabled:             true,
				MinConfidence:       "MEDIUM",
				MaxOrdersPerEvent:   5,
				OrderSizeMultiplier: 1.0,
				CooldownPeriod:      60,
			},
		},
		Signal: SignalConfig{MinPriceDifference: 0.01, MaxOrderSize: 100, MaxPositionSize: 1000},
		Accounts: []AccountConfig{
			{AccountID: "main_account", Gateway: "paper", Balances: map[string]float64{"USDC": 10000}},
		},
		Venues: VenuesConfig{
			Paper: PaperVenueConfig{Enabled: true, Name: "paper", FillDelay: 2},
			Polymarket: PolymarketVenueConfig{
				BaseURL:           "https://clob.polymarket.com",
				WSURL:             "wss://ws-subscriptions-clob.polymarket.com/ws/user",
				RequestsPerSecond: 5,
				ChainID:           137,
			},
		},
		MarketData: MarketDataConfig{Source: "static", BaseURL: "https://gamma-api.polymarket.com", CacheTTL: 10},
		Storage:    StorageConfig{SQLitePath: "data/autoexec.db", StateDir: "data/state"},
		Server:     ServerConfig{ListenAddr: ":8080", MetricsAddr: ":6060"},
		Log:        LogConfig{Level: "info", MaxSize: 100, MaxBackups: 3, MaxAge: 28, Compress: true},
	}
}

// Load 先加载 .env（不存在则忽略），再读取 YAML（path 为空时只用默认值），最后应用环境变量覆盖
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量优先于配置文件
func (c *Config) applyEnv() {
	c.Log.Level = getEnv("AUTOEXEC_LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("AUTOEXEC_LOG_FILE", c.Log.File)
	c.System.DataDir = getEnv("AUTOEXEC_DATA_DIR", c.System.DataDir)
	c.System.DryRun = parseBoolEnv("AUTOEXEC_DRY_RUN", c.System.DryRun)
	c.Storage.SQLitePath = getEnv("AUTOEXEC_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.StateDir = getEnv("AUTOEXEC_STATE_DIR", c.Storage.StateDir)
	c.Storage.StateEncryptionKey = getEnv("AUTOEXEC_STATE_KEY", c.Storage.StateEncryptionKey)
	c.Server.ListenAddr = getEnv("AUTOEXEC_LISTEN_ADDR", c.Server.ListenAddr)
	c.Server.MetricsAddr = getEnv("AUTOEXEC_METRICS_ADDR", c.Server.MetricsAddr)
	c.Venues.Polymarket.APIKey = getEnv("AUTOEXEC_POLYMARKET_API_KEY", c.Venues.Polymarket.APIKey)
	c.Venues.Polymarket.APISecret = getEnv("AUTOEXEC_POLYMARKET_API_SECRET", c.Venues.Polymarket.APISecret)
	c.Venues.Polymarket.APIPassphrase = getEnv("AUTOEXEC_POLYMARKET_API_PASSPHRASE", c.Venues.Polymarket.APIPassphrase)
	c.Venues.Polymarket.PrivateKey = getEnv("AUTOEXEC_POLYMARKET_PRIVATE_KEY", c.Venues.Polymarket.PrivateKey)
	c.Venues.Polymarket.Mnemonic = getEnv("AUTOEXEC_POLYMARKET_MNEMONIC", c.Venues.Polymarket.Mnemonic)
	c.Executor.CheckInterval = parseIntEnv("AUTOEXEC_CHECK_INTERVAL", c.Executor.CheckInterval)
}

func validConfidence(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW", "MEDIUM", "HIGH":
		return true
	}
	return false
}

// Validate 尽早拒绝越界配置
func (c *Config) Validate() error {
	var errs []string
	if c.System.LargeOrderThreshold <= 0 {
		errs = append(errs, "system.large_order_threshold 必须大于 0")
	}
	if c.System.MaxOrderHistory <= 0 {
		errs = append(errs, "system.max_order_history 必须大于 0")
	}
	if c.System.MaxConsecutiveErrors < 0 || c.System.BreakerCooldown < 0 {
		errs = append(errs, "system.max_consecutive_errors 与 breaker_cooldown 不能为负")
	}
	p := c.Probability
	if p.MinTotalProbability < 0 || p.SafeTotalProbability > 100 || p.MinTotalProbability > p.SafeTotalProbability {
		errs = append(errs, "probability 需满足 0 <= min_total_probability <= safe_total_probability <= 100")
	}
	r := c.Risk
	if r.MaxOrderSize <= 0 || r.DailyTradeLimit <= 0 || r.MaxMarketExposure <= 0 || r.MaxPositionSize <= 0 {
		errs = append(errs, "risk 限额必须大于 0")
	}
	if r.MaxTradesPerMinute <= 0 {
		errs = append(errs, "risk.max_trades_per_minute 必须大于 0")
	}
	if r.StopLossPercent < 0 || r.StopLossPercent >= 1 {
		errs = append(errs, "risk.stop_loss_percent 必须在 [0, 1) 内")
	}
	if r.MaxPriceDeviation < 0 {
		errs = append(errs, "risk.max_price_deviation 不能为负")
	}
	e := c.Executor
	if e.CheckInterval <= 0 {
		errs = append(errs, "executor.check_interval 必须大于 0")
	}
	if !validConfidence(e.MinConfidence) {
		errs = append(errs, fmt.Sprintf("executor.min_confidence 无效: %q", e.MinConfidence))
	}
	if e.MaxOrdersPerBatch <= 0 {
		errs = append(errs, "executor.max_orders_per_batch 必须大于 0")
	}
	es := e.EventSubscription
	if !validConfidence(es.MinConfidence) {
		errs = append(errs, fmt.Sprintf("executor.event_subscription.min_confidence 无效: %q", es.MinConfidence))
	}
	if es.MaxOrdersPerEvent <= 0 || es.OrderSizeMultiplier <= 0 || es.CooldownPeriod < 0 {
		errs = append(errs, "executor.event_subscription 参数越界")
	}
	if c.Signal.MinPriceDifference < 0 || c.Signal.MaxOrderSize < 0 || c.Signal.MaxPositionSize < 0 {
		errs = append(errs, "signal 参数不能为负")
	}
	if len(c.Accounts) == 0 {
		errs = append(errs, "至少需要一个账户")
	}
	for _, a := range c.Accounts {
		if a.AccountID == "" || a.Gateway == "" {
			errs = append(errs, "accounts 需要 account_id 与 gateway")
			break
		}
	}
	if !c.Venues.Paper.Enabled && !c.Venues.Polymarket.Enabled {
		errs = append(errs, "至少需要启用一个 venue")
	}
	if pm := c.Venues.Polymarket; pm.Enabled && pm.PrivateKey != "" && pm.Mnemonic != "" {
		errs = append(errs, "venues.polymarket 的 private_key 与 mnemonic 只能二选一")
	}
	switch c.MarketData.Source {
	case "static", "http":
	default:
		errs = append(errs, fmt.Sprintf("market_data.source 无效: %q", c.MarketData.Source))
	}
	if len(errs) > 0 {
		return fmt.Errorf("配置无效: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Seconds 秒数配置转 Duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func parseBoolEnv(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}
