package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/ledger"
	"ultratrader/src/risk"
	"ultratrader/src/strategy"
	"ultratrader/src/trace"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// observerTimeout 单个观察者处理一份报告的上限
const observerTimeout = 10 * time.Second

// TradingEngine 交易引擎，驱动单个交易对的决策周期
//
// 同一时刻最多一个周期在执行，重叠的请求直接返回 SKIPPED 报告。
// 账本只在 Reconciling 阶段被修改。
type TradingEngine struct {
	config    Config
	client    cex.Client
	strategy  strategy.Strategy
	ledger    *ledger.Ledger
	sizer     *risk.Sizer
	interval  string
	now       func() time.Time
	observers []Observer

	// 信号处理器
	signalRegistry *SignalHandlerRegistry

	// 运行状态
	cycleMu  sync.Mutex
	state    atomic.Int32
	seq      atomic.Uint64
	running  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewTradingEngine 创建交易引擎，配置错误是唯一的致命路径
func NewTradingEngine(config Config, client cex.Client, strat strategy.Strategy, book *ledger.Ledger) (*TradingEngine, error) {
	if client == nil {
		return nil, errors.New("exchange client is required")
	}
	if strat == nil {
		return nil, errors.New("strategy is required")
	}
	if book == nil {
		return nil, errors.New("ledger is required")
	}
	if err := config.Validate(strat.RequiredCandles()); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	sizer, err := risk.NewSizer(config.RiskPercent, config.StopLossPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid risk parameters: %w", err)
	}

	engine := &TradingEngine{
		config:   config,
		client:   client,
		strategy: strat,
		ledger:   book,
		sizer:    sizer,
		interval: config.Timeframe.GetBinanceInterval(),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	// 注册默认的信号处理器
	engine.signalRegistry = NewSignalHandlerRegistry()
	engine.signalRegistry.RegisterHandler(strategy.SignalBuy, NewBuySignalHandler(sizer, config.QuantityPrecision))
	engine.signalRegistry.RegisterHandler(strategy.SignalSell, NewSellSignalHandler(sizer, config.TradingPair, config.QuantityPrecision))

	return engine, nil
}

// AddObserver 注册观察者，需在启动前调用
func (e *TradingEngine) AddObserver(observer Observer) {
	e.observers = append(e.observers, observer)
}

// SetClock 替换时间来源
func (e *TradingEngine) SetClock(now func() time.Time) {
	e.now = now
}

// Config 引擎配置
func (e *TradingEngine) Config() Config {
	return e.config
}

// State 当前周期状态
func (e *TradingEngine) State() State {
	return State(e.state.Load())
}

// Portfolio 账户快照
func (e *TradingEngine) Portfolio() *ledger.Portfolio {
	return e.ledger.Snapshot()
}

// RefreshPortfolio 按最新行情重估后返回快照
func (e *TradingEngine) RefreshPortfolio(ctx context.Context) *ledger.Portfolio {
	return e.ledger.Revalue(ctx)
}

// TradeHistory 成交历史，最新在最后
func (e *TradingEngine) TradeHistory() []ledger.TradeRecord {
	return e.ledger.History()
}

// RunCycle 执行一个完整的决策周期，任何结果都以报告返回
func (e *TradingEngine) RunCycle(ctx context.Context) *CycleReport {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	report := &CycleReport{
		Seq:       e.seq.Add(1),
		Pair:      e.config.TradingPair,
		StartedAt: e.now(),
	}

	if !e.cycleMu.TryLock() {
		logger.Info("上一周期仍在进行，跳过本次", "seq", report.Seq, "state", e.State().String())
		report.finish(OutcomeSkipped, "previous cycle still in progress", ErrCycleInProgress, e.now())
		return report
	}

	func() {
		defer e.cycleMu.Unlock()
		defer e.setState(StateIdle)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("周期异常终止", "seq", report.Seq, "panic", fmt.Sprint(r))
				e.abortCycle(ctx, report, r)
			}
		}()
		e.runCycle(ctx, report)
	}()

	if report.Portfolio == nil {
		report.Portfolio = e.ledger.Snapshot()
	}

	if report.IsWarning() {
		logger.Error(report.String())
	} else {
		logger.Info(report.String())
	}

	e.notifyObservers(ctx, report)
	return report
}

func (e *TradingEngine) runCycle(ctx context.Context, report *CycleReport) {
	ctx, logger := log.WithCtx(ctx)

	ctx, span := trace.StartSpan(ctx, "engine.cycle")
	defer span.End()
	span.SetAttributes(trace.String("pair", e.config.TradingPair.String()))

	// FetchingData
	klines, err := e.fetchCandles(ctx)
	if err != nil {
		trace.RecordError(span, err)
		report.finish(OutcomeFailed, "", err, e.now())
		return
	}

	// Signaling
	signal := e.generateSignal(ctx, klines)
	report.Signal = signal
	if signal.IsHold() {
		report.finish(OutcomeHold, signal.Reason, nil, e.now())
		return
	}

	// Sizing
	quantity, reason, err := e.size(ctx, signal)
	if err != nil {
		trace.RecordError(span, err)
		report.finish(OutcomeFailed, "", err, e.now())
		return
	}
	if !quantity.IsPositive() {
		report.finish(OutcomeNoAction, reason, nil, e.now())
		return
	}

	side := cex.OrderSideBuy
	if signal.Type == strategy.SignalSell {
		side = cex.OrderSideSell
	}
	report.Side = side
	report.Amount = quantity
	report.Price = signal.Price

	if ctx.Err() != nil {
		report.finish(OutcomeNoAction, "stopped before order submission", nil, e.now())
		return
	}

	// 下单之后不再响应取消，保证成交一定入账
	execCtx := context.WithoutCancel(ctx)

	// Executing
	fill, err := e.execute(execCtx, side, quantity)
	if err != nil {
		trace.RecordError(span, err)
		report.finish(OutcomeFailed, "", err, e.now())
		return
	}
	report.fill = fill
	report.Amount = fill.Amount
	report.Price = fill.Price
	report.Cost = fill.Cost

	// Reconciling
	portfolio, err := e.reconcile(execCtx, fill)
	report.Portfolio = portfolio
	if err != nil {
		trace.RecordError(span, err)
		logger.Error("成交无法入账", "order_id", fill.OrderID, "error", err)
		report.finish(OutcomeDrift, "", err, e.now())
		return
	}

	if trades := e.ledger.RecentTrades(1); len(trades) == 1 {
		report.Trade = &trades[0]
	}
	report.finish(OutcomeTraded, signal.Reason, nil, e.now())
}

// enter 切换状态并开启对应 span
func (e *TradingEngine) enter(ctx context.Context, state State) (context.Context, oteltrace.Span) {
	e.setState(state)
	_, logger := log.WithCtx(ctx)
	logger.Debug("进入状态", "state", state.String())
	return trace.StartSpan(ctx, "engine."+state.String())
}

func (e *TradingEngine) setState(state State) {
	e.state.Store(int32(state))
}

func (e *TradingEngine) fetchCandles(ctx context.Context) ([]*cex.KlineData, error) {
	ctx, span := e.enter(ctx, StateFetchingData)
	defer span.End()

	klines, err := e.client.GetKlines(ctx, e.config.TradingPair, e.interval, e.config.CandleLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMarketDataUnavailable, err)
	}

	required := e.strategy.RequiredCandles()
	if len(klines) < required {
		return nil, fmt.Errorf("%w: got %d candles, need %d", ErrMarketDataUnavailable, len(klines), required)
	}
	return klines, nil
}

func (e *TradingEngine) generateSignal(ctx context.Context, klines []*cex.KlineData) *strategy.Signal {
	ctx, span := e.enter(ctx, StateSignaling)
	defer span.End()

	_, logger := log.WithCtx(ctx)
	signal := e.strategy.GenerateSignal(klines)
	if signal == nil {
		signal = strategy.Hold("strategy returned no signal")
	}

	logger.Info("生成信号", "strategy", e.strategy.GetName(), "signal", signal.String(), "rsi", fmt.Sprintf("%.2f", signal.RSI))
	span.SetAttributes(trace.String("signal", string(signal.Type)))
	return signal
}

func (e *TradingEngine) size(ctx context.Context, signal *strategy.Signal) (decimal.Decimal, string, error) {
	_, span := e.enter(ctx, StateSizing)
	defer span.End()

	return e.signalRegistry.Size(signal, e.ledger)
}

func (e *TradingEngine) execute(ctx context.Context, side cex.OrderSide, quantity decimal.Decimal) (*cex.Fill, error) {
	ctx, span := e.enter(ctx, StateExecuting)
	defer span.End()

	fill, err := e.client.SubmitMarketOrder(ctx, cex.MarketOrderRequest{
		TradingPair: e.config.TradingPair,
		Side:        side,
		Quantity:    quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderSubmissionFailed, err)
	}
	if fill == nil {
		return nil, fmt.Errorf("%w: exchange returned no fill", ErrOrderSubmissionFailed)
	}
	if fill.TradingPair.IsZero() {
		fill.TradingPair = e.config.TradingPair
	}
	return fill, nil
}

// reconcile 成交入账；入账失败时按交易所余额校正账本
func (e *TradingEngine) reconcile(ctx context.Context, fill *cex.Fill) (*ledger.Portfolio, error) {
	ctx, span := e.enter(ctx, StateReconciling)
	defer span.End()

	ctx, logger := log.WithCtx(ctx)

	portfolio, err := e.ledger.ApplyFill(ctx, fill)
	if err == nil {
		return portfolio, nil
	}

	drift := fmt.Errorf("%w: %w", ErrReconciliationDrift, err)
	reconciled, syncErr := e.syncWithExchange(ctx)
	if syncErr != nil {
		logger.Error("无法获取交易所余额，账本保持不变", "error", syncErr)
		return e.ledger.Snapshot(), fmt.Errorf("%w (exchange balances unavailable: %v)", drift, syncErr)
	}
	return reconciled, drift
}

// abortCycle 处理周期内的 panic；订单已成交时按交易所余额对账，报告为 DRIFT
func (e *TradingEngine) abortCycle(ctx context.Context, report *CycleReport, r any) {
	err := fmt.Errorf("cycle aborted: %v", r)
	if report.fill == nil {
		report.finish(OutcomeFailed, "", err, e.now())
		return
	}

	_, logger := log.WithCtx(ctx)
	logger.Error("成交后周期中断，按交易所余额对账", "order_id", report.fill.OrderID)

	drift := fmt.Errorf("%w: %w", ErrReconciliationDrift, err)
	portfolio, syncErr := e.safeSync(context.WithoutCancel(ctx))
	if syncErr != nil {
		report.Portfolio = e.ledger.Snapshot()
		report.finish(OutcomeDrift, "", fmt.Errorf("%w (exchange balances unavailable: %v)", drift, syncErr), e.now())
		return
	}
	report.Portfolio = portfolio
	report.finish(OutcomeDrift, "", drift, e.now())
}

// safeSync 与 syncWithExchange 相同，但把 panic 转为错误
func (e *TradingEngine) safeSync(ctx context.Context) (portfolio *ledger.Portfolio, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reconciliation aborted: %v", r)
		}
	}()
	return e.syncWithExchange(ctx)
}

// syncWithExchange 采用交易所的成交后余额
func (e *TradingEngine) syncWithExchange(ctx context.Context) (*ledger.Portfolio, error) {
	balances, err := e.client.GetAccount(ctx)
	if err != nil {
		return nil, err
	}

	pair := e.config.TradingPair
	quote := cex.FindBalance(balances, pair.Quote)
	if quote == nil {
		return nil, fmt.Errorf("exchange reported no %s balance", pair.Quote)
	}

	held := decimal.Zero
	if base := cex.FindBalance(balances, pair.Base); base != nil {
		held = base.Free.Add(base.Locked)
	}

	return e.ledger.Reconcile(ctx, quote.Free.Add(quote.Locked), map[cex.TradingPair]decimal.Decimal{pair: held})
}

func (e *TradingEngine) notifyObservers(ctx context.Context, report *CycleReport) {
	ctx, logger := log.WithCtx(ctx)

	for _, observer := range e.observers {
		func() {
			octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), observerTimeout)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					logger.Error("观察者异常", "seq", report.Seq, "panic", fmt.Sprint(r))
				}
			}()

			if err := observer.OnCycle(octx, report); err != nil {
				logger.Error("观察者处理失败", "seq", report.Seq, "error", err)
			}
		}()
	}
}

// RunLive 按固定间隔驱动周期，立即执行第一次
//
// ctx 取消或调用 Stop 后返回，正在执行的周期会先完成。
func (e *TradingEngine) RunLive(ctx context.Context, interval time.Duration) error {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("TradingEngine")

	if interval <= 0 {
		return fmt.Errorf("cycle interval must be positive, got %s", interval)
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine is already running")
	}
	defer e.running.Store(false)

	logger.Info("开始实盘交易", "symbol", e.config.TradingPair.String(), "timeframe", e.config.Timeframe.String(), "interval", interval.String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("收到停止信号，退出实盘交易")
			return ctx.Err()

		case <-e.stopChan:
			logger.Info("手动停止实盘交易")
			return nil

		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// IsRunning 是否在实盘循环中
func (e *TradingEngine) IsRunning() bool {
	return e.running.Load()
}

// Stop 停止实盘循环
func (e *TradingEngine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopChan)
	})
}
