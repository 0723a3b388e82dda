package trading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ultratrader/src/cex"
	"ultratrader/src/cex/binance"
	"ultratrader/src/cex/cexobs"
	"ultratrader/src/cex/paper"
	"ultratrader/src/config"
	"ultratrader/src/database"
	"ultratrader/src/engine"
	"ultratrader/src/ledger"
	"ultratrader/src/notify"
	"ultratrader/src/strategies"
	"ultratrader/src/telemetry"
	"ultratrader/src/trace"

	"github.com/xpwu/go-log/log"
)

// Version 服务版本，写入追踪资源
const Version = "0.1.0"

// System 交易系统，负责把配置装配成一个可运行的引擎
type System struct {
	config   *config.Config
	client   cex.Client
	ledger   *ledger.Ledger
	engine   *engine.TradingEngine
	db       *database.PostgresDB
	telegram *notify.Telegram
	hub      *telemetry.Hub

	closeOnce sync.Once
}

// NewSystem 根据配置创建交易系统，交易所客户端由 exchange.kind 决定
func NewSystem(ctx context.Context, cfg *config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return NewSystemWithClient(ctx, cfg, client)
}

// NewClient 按配置创建交易所客户端
//
// paper 模式下行情仍来自币安公开接口，订单在本地模拟成交。
func NewClient(cfg *config.Config) (cex.Client, error) {
	kind, err := cfg.ExchangeKind()
	if err != nil {
		return nil, err
	}

	market := binance.NewClient(cfg.BinanceClientConfig())
	switch kind {
	case cex.KindBinance:
		return market, nil
	case cex.KindPaper:
		client, err := paper.NewClient(market, cfg.PaperClientConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create paper client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported CEX: %s", kind)
	}
}

// NewSystemWithClient 使用指定的交易所客户端创建交易系统
func NewSystemWithClient(ctx context.Context, cfg *config.Config, client cex.Client) (*System, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	if client == nil {
		return nil, fmt.Errorf("exchange client is required")
	}

	if err := trace.Init(trace.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     Version,
		PrettyPrint: cfg.Tracing.PrettyPrint,
	}); err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	s := &System{config: cfg}
	s.client = cexobs.Wrap(client)

	strat, err := strategies.NewRSIMAStrategy(cfg.StrategyParams())
	if err != nil {
		return nil, err
	}

	// 账本的估值价格与引擎共用同一个交易所客户端
	s.ledger, err = ledger.New(cfg.GetInitialBalance(), s.client)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger: %w", err)
	}

	engineConfig, err := cfg.EngineConfig()
	if err != nil {
		return nil, err
	}
	s.engine, err = engine.NewTradingEngine(engineConfig, s.client, strat, s.ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to create trading engine: %w", err)
	}

	if err := s.attachObservers(ctx); err != nil {
		s.Close(ctx)
		return nil, err
	}

	logger.Info(fmt.Sprintf("交易系统已创建: %s %s, 策略 %s", s.client.GetName(), engineConfig.TradingPair, strat.GetName()))
	return s, nil
}

// attachObservers 注册日志库、通知与展示端
func (s *System) attachObservers(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)

	if s.config.Database.Enabled {
		db, err := database.NewPostgresDB(s.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
		s.db = db
		s.engine.AddObserver(database.NewRecorder(db))
		logger.Info("交易日志已连接数据库", "db", s.config.Database.DBName)
	}

	telegram, err := notify.NewTelegram(notify.Config{
		Token:       s.config.Telegram.Token,
		ChatID:      s.config.Telegram.ChatID,
		NotifyHolds: s.config.Telegram.NotifyHolds,
	})
	if err != nil {
		return err
	}
	s.telegram = telegram
	if telegram.Enabled() {
		s.engine.AddObserver(telegram)
		logger.Info("Telegram 通知已启用")
	}

	if s.config.Telemetry.Enabled {
		s.hub = telemetry.NewHub(s.engine)
		s.engine.AddObserver(s.hub)
	}
	return nil
}

// Engine 交易引擎
func (s *System) Engine() *engine.TradingEngine {
	return s.engine
}

// Client 交易所客户端（已附加日志与追踪）
func (s *System) Client() cex.Client {
	return s.client
}

// Ledger 持仓账本
func (s *System) Ledger() *ledger.Ledger {
	return s.ledger
}

// Hub 展示端广播中心，未启用时为 nil
func (s *System) Hub() *telemetry.Hub {
	return s.hub
}

// Ping 测试交易所连接
func (s *System) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.client.GetName(), err)
	}
	return nil
}

// Status /status 命令的回复
func (s *System) Status(ctx context.Context) string {
	portfolio := s.engine.RefreshPortfolio(ctx)
	return fmt.Sprintf("%s [%s]\n%s", s.engine.Config().TradingPair, s.engine.State(), portfolio)
}

// startServices 启动展示端与 Telegram 命令处理，ctx 取消后退出
func (s *System) startServices(ctx context.Context) {
	ctx, logger := log.WithCtx(ctx)

	if s.hub != nil {
		go s.hub.Run(ctx)
		go func() {
			if err := s.hub.Serve(ctx, s.config.Telemetry.Addr); err != nil {
				logger.Error("展示端服务退出", "error", err)
			}
		}()
	}
	s.telegram.Start(ctx, s.Status)
}

// RunOnce 执行一个决策周期
func (s *System) RunOnce(ctx context.Context) *engine.CycleReport {
	return s.engine.RunCycle(ctx)
}

// Run 启动周边服务并按配置的间隔运行引擎，直到 ctx 取消
func (s *System) Run(ctx context.Context) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingSystem")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.startServices(ctx)

	interval := s.config.GetCycleInterval()
	logger.Info(fmt.Sprintf("开始实时交易，周期间隔 %s", interval))
	err := s.engine.RunLive(ctx, interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close 停止引擎并释放数据库与追踪资源
func (s *System) Close(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.engine != nil {
			s.engine.Stop()
		}
		if s.db != nil {
			if err := s.db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close database: %w", err))
			}
		}
		if err := trace.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracing: %w", err))
		}
	})
	return errors.Join(errs...)
}
