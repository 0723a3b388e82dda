package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/cex/binance"
	"ultratrader/src/cex/paper"
	"ultratrader/src/database"
	"ultratrader/src/engine"
	"ultratrader/src/strategy"
	"ultratrader/src/timeframes"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/xpwu/go-config/configs"
)

// 可通过环境变量或 .env 提供的密钥
const (
	EnvBinanceAPIKey    = "BINANCE_API_KEY"
	EnvBinanceSecretKey = "BINANCE_SECRET_KEY"
	EnvTelegramToken    = "TELEGRAM_TOKEN"
	EnvTelegramChatID   = "TELEGRAM_CHAT_ID"
	EnvDatabasePassword = "DATABASE_PASSWORD"
)

// Config 主配置结构
type Config struct {
	Exchange  ExchangeConfig          `conf:"exchange,交易所配置"`
	Trading   TradingConfig           `conf:"trading,交易基础配置"`
	Strategy  StrategyConfig          `conf:"strategy,策略配置"`
	Risk      RiskConfig              `conf:"risk,风控配置"`
	Database  database.DatabaseConfig `conf:"database,交易日志数据库配置"`
	Telemetry TelemetryConfig         `conf:"telemetry,展示端推送配置"`
	Telegram  TelegramConfig          `conf:"telegram,Telegram通知配置"`
	Tracing   TracingConfig           `conf:"tracing,链路追踪配置"`
}

// ExchangeConfig 交易所配置
type ExchangeConfig struct {
	Kind    string        `conf:"kind,交易所类型 - binance=币安实盘,paper=模拟成交(行情来自币安)"`
	Binance BinanceConfig `conf:"binance,币安配置"`
	Paper   PaperConfig   `conf:"paper,模拟成交配置"`
}

// BinanceConfig 币安API配置
type BinanceConfig struct {
	APIKey    string `conf:"api_key,API密钥 - 也可通过环境变量BINANCE_API_KEY设置"`
	SecretKey string `conf:"secret_key,API私钥 - 也可通过环境变量BINANCE_SECRET_KEY设置"`
	BaseURL   string `conf:"base_url,API地址"`
	Timeout   int    `conf:"timeout,请求超时时间(秒)"`
}

// PaperConfig 模拟成交配置
type PaperConfig struct {
	Commission float64 `conf:"commission,手续费率 - 0.001=0.1%"`
	Slippage   float64 `conf:"slippage,滑点 - 0.0005=0.05%"`
}

// TradingConfig 交易配置
type TradingConfig struct {
	BaseAsset         string  `conf:"base_asset,基础货币 - 如BTC"`
	QuoteAsset        string  `conf:"quote_asset,计价货币 - 如USDT"`
	Timeframe         string  `conf:"timeframe,K线周期 - 支持1m,3m,5m,15m,30m,1h,2h,4h,6h,8h,12h,1d,3d,1w,1M"`
	CandleLimit       int     `conf:"candle_limit,每周期拉取的K线数 - 不少于策略预热所需"`
	InitialBalance    float64 `conf:"initial_balance,初始资金(计价货币)"`
	CycleInterval     int     `conf:"cycle_interval,决策周期间隔(秒)"`
	QuantityPrecision int     `conf:"quantity_precision,下单数量小数位，不得超过交易对步长精度（BTCUSDT 为 5）"`
}

// StrategyConfig RSI+均线策略配置
type StrategyConfig struct {
	Name            string  `conf:"name,策略名称 - 目前支持rsi_ma"`
	RSIPeriod       int     `conf:"rsi_period,RSI周期 - 默认14"`
	MAPeriod        int     `conf:"ma_period,均线周期 - 默认50"`
	Oversold        float64 `conf:"oversold,超卖阈值 - 默认30"`
	Overbought      float64 `conf:"overbought,超买阈值 - 默认70"`
	SuggestedAmount float64 `conf:"suggested_amount,信号建议数量 - 卖出时不超过该数量"`
}

// RiskConfig 风控配置
type RiskConfig struct {
	RiskPercent     float64 `conf:"risk_percent,单笔风险比例 - 0.02=2%"`
	StopLossPercent float64 `conf:"stop_loss_percent,止损比例 - 0.05=5%"`
}

// TelemetryConfig 展示端推送配置
type TelemetryConfig struct {
	Enabled bool   `conf:"enabled,启用WebSocket推送"`
	Addr    string `conf:"addr,监听地址"`
}

// TelegramConfig Telegram通知配置
type TelegramConfig struct {
	Token       string `conf:"token,机器人Token - 也可通过环境变量TELEGRAM_TOKEN设置"`
	ChatID      int64  `conf:"chat_id,接收通知的chat id"`
	NotifyHolds bool   `conf:"notify_holds,观望周期也通知"`
}

// TracingConfig 链路追踪配置
type TracingConfig struct {
	Enabled     bool   `conf:"enabled,启用OpenTelemetry追踪(输出到标准输出)"`
	ServiceName string `conf:"service_name,服务名"`
	PrettyPrint bool   `conf:"pretty_print,格式化输出"`
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Exchange: ExchangeConfig{
			Kind: string(cex.KindPaper),
			Binance: BinanceConfig{
				BaseURL: "https://api.binance.com",
				Timeout: 10,
			},
			Paper: PaperConfig{
				Commission: 0.001,  // 0.1%
				Slippage:   0.0005, // 0.05%
			},
		},
		Trading: TradingConfig{
			BaseAsset:         "BTC",
			QuoteAsset:        "USDT",
			Timeframe:         "1h",
			CandleLimit:       100,
			InitialBalance:    1000.0,
			CycleInterval:     60,
			QuantityPrecision: 5,
		},
		Strategy: StrategyConfig{
			Name:            "rsi_ma",
			RSIPeriod:       14,
			MAPeriod:        50,
			Oversold:        30,
			Overbought:      70,
			SuggestedAmount: 0.01,
		},
		Risk: RiskConfig{
			RiskPercent:     0.02,
			StopLossPercent: 0.05,
		},
		Database: database.DefaultDatabaseConfig(),
		Telemetry: TelemetryConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8090",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ultratrader",
		},
	}
}

// AppConfig 全局配置实例，只在 main 与命令入口读取
var AppConfig = Default()

// 在包的 init() 函数中注册配置
func init() {
	configs.Unmarshal(AppConfig)
}

// LoadSecrets 读取 .env 与环境变量中的密钥，环境变量优先于 .env，二者都优先于配置文件
func (c *Config) LoadSecrets(envFiles ...string) error {
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		// godotenv.Load 不覆盖已存在的环境变量
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	if v := os.Getenv(EnvBinanceAPIKey); v != "" {
		c.Exchange.Binance.APIKey = v
	}
	if v := os.Getenv(EnvBinanceSecretKey); v != "" {
		c.Exchange.Binance.SecretKey = v
	}
	if v := os.Getenv(EnvTelegramToken); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv(EnvTelegramChatID); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTelegramChatID, err)
		}
		c.Telegram.ChatID = chatID
	}
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		c.Database.Password = v
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	kind, err := c.ExchangeKind()
	if err != nil {
		return err
	}
	if kind == cex.KindBinance && (c.Exchange.Binance.APIKey == "" || c.Exchange.Binance.SecretKey == "") {
		return fmt.Errorf("binance api_key and secret_key are required for live trading")
	}
	if c.Exchange.Binance.Timeout <= 0 {
		return fmt.Errorf("binance timeout must be positive")
	}
	if c.Exchange.Paper.Commission < 0 || c.Exchange.Paper.Slippage < 0 {
		return fmt.Errorf("paper commission and slippage must not be negative")
	}

	// 验证交易对
	if strings.TrimSpace(c.Trading.BaseAsset) == "" || strings.TrimSpace(c.Trading.QuoteAsset) == "" {
		return fmt.Errorf("trading base_asset and quote_asset cannot be empty")
	}

	// 验证时间周期
	if _, err := c.GetTimeframe(); err != nil {
		return fmt.Errorf("invalid timeframe: %w", err)
	}

	// 验证资金
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive")
	}
	if c.Trading.CycleInterval <= 0 {
		return fmt.Errorf("cycle interval must be positive")
	}
	if c.Trading.QuantityPrecision < 0 {
		return fmt.Errorf("quantity precision must not be negative")
	}

	// 验证策略
	if c.Strategy.Name != "rsi_ma" {
		return fmt.Errorf("unsupported strategy: %s, only rsi_ma is supported", c.Strategy.Name)
	}
	params := c.StrategyParams()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid strategy parameters: %w", err)
	}
	if c.Trading.CandleLimit < params.RequiredCandles() {
		return fmt.Errorf("candle limit %d is below the %d candles the strategy needs", c.Trading.CandleLimit, params.RequiredCandles())
	}

	// 验证风控参数
	if c.Risk.RiskPercent <= 0 || c.Risk.RiskPercent > 1 {
		return fmt.Errorf("risk percent must be between 0 and 1")
	}
	if c.Risk.StopLossPercent <= 0 || c.Risk.StopLossPercent >= 1 {
		return fmt.Errorf("stop loss percent must be between 0 and 1")
	}

	if c.Telemetry.Enabled && c.Telemetry.Addr == "" {
		return fmt.Errorf("telemetry addr cannot be empty when enabled")
	}
	return nil
}

// ExchangeKind 交易所类型
func (c *Config) ExchangeKind() (cex.Kind, error) {
	return cex.ParseKind(c.Exchange.Kind)
}

// TradingPair 交易对
func (c *Config) TradingPair() cex.TradingPair {
	return cex.TradingPair{
		Base:  strings.ToUpper(strings.TrimSpace(c.Trading.BaseAsset)),
		Quote: strings.ToUpper(strings.TrimSpace(c.Trading.QuoteAsset)),
	}
}

// GetTimeframe 获取时间周期
func (c *Config) GetTimeframe() (timeframes.Timeframe, error) {
	return timeframes.ParseTimeframe(c.Trading.Timeframe)
}

// GetInitialBalance 获取初始资金
func (c *Config) GetInitialBalance() decimal.Decimal {
	return decimal.NewFromFloat(c.Trading.InitialBalance)
}

// GetCycleInterval 决策周期间隔
func (c *Config) GetCycleInterval() time.Duration {
	return time.Duration(c.Trading.CycleInterval) * time.Second
}

// StrategyParams 获取策略参数
func (c *Config) StrategyParams() *strategy.RSIMAParams {
	return &strategy.RSIMAParams{
		RSIPeriod:       c.Strategy.RSIPeriod,
		MAPeriod:        c.Strategy.MAPeriod,
		Oversold:        c.Strategy.Oversold,
		Overbought:      c.Strategy.Overbought,
		SuggestedAmount: c.Strategy.SuggestedAmount,
	}
}

// EngineConfig 引擎配置
func (c *Config) EngineConfig() (engine.Config, error) {
	tf, err := c.GetTimeframe()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		TradingPair:       c.TradingPair(),
		Timeframe:         tf,
		CandleLimit:       c.Trading.CandleLimit,
		RiskPercent:       c.Risk.RiskPercent,
		StopLossPercent:   c.Risk.StopLossPercent,
		QuantityPrecision: int32(c.Trading.QuantityPrecision),
	}, nil
}

// BinanceClientConfig 币安客户端配置
func (c *Config) BinanceClientConfig() binance.Config {
	return binance.Config{
		APIKey:    c.Exchange.Binance.APIKey,
		SecretKey: c.Exchange.Binance.SecretKey,
		BaseURL:   c.Exchange.Binance.BaseURL,
		Timeout:   time.Duration(c.Exchange.Binance.Timeout) * time.Second,
	}
}

// PaperClientConfig 模拟成交配置，初始计价货币余额与账本一致
func (c *Config) PaperClientConfig() paper.Config {
	return paper.Config{
		InitialQuote: c.GetInitialBalance(),
		QuoteAsset:   c.TradingPair().Quote,
		Commission:   decimal.NewFromFloat(c.Exchange.Paper.Commission),
		Slippage:     decimal.NewFromFloat(c.Exchange.Paper.Slippage),
	}
}
