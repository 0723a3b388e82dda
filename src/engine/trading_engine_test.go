package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/cex/paper"
	"ultratrader/src/ledger"
	"ultratrader/src/strategies"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig() Config {
	cfg := DefaultConfig(testPair)
	cfg.CandleLimit = 5
	return cfg
}

func newTestLedger(t *testing.T, balance string, client *MockCEXClient) *ledger.Ledger {
	book, err := ledger.New(d(balance), client)
	require.NoError(t, err)
	return book
}

func newTestEngine(t *testing.T, client *MockCEXClient, signal *strategy.Signal, book *ledger.Ledger) *TradingEngine {
	strat := &stubStrategy{signal: signal, required: 5}
	e, err := NewTradingEngine(testConfig(), client, strat, book)
	require.NoError(t, err)
	return e
}

func newMockClient() *MockCEXClient {
	return &MockCEXClient{
		Klines: CreateTestKlines(start, time.Hour, flatCloses(5, 100)...),
		Price:  d("100"),
	}
}

func buySignal() *strategy.Signal {
	return strategy.Buy(d("100"), d("0.01"), "oversold")
}

func sellSignal(amount string) *strategy.Signal {
	return strategy.Sell(d("100"), d(amount), "overbought")
}

func TestNewTradingEngine(t *testing.T) {
	client := newMockClient()
	book := newTestLedger(t, "1000", client)
	strat := &stubStrategy{signal: strategy.Hold("x"), required: 50}

	_, err := NewTradingEngine(testConfig(), nil, strat, book)
	assert.Error(t, err)

	_, err = NewTradingEngine(testConfig(), client, nil, book)
	assert.Error(t, err)

	_, err = NewTradingEngine(testConfig(), client, strat, nil)
	assert.Error(t, err)

	// K线数量不足以预热策略
	_, err = NewTradingEngine(testConfig(), client, strat, book)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "candle limit")

	cfg := DefaultConfig(testPair)
	cfg.RiskPercent = 0
	_, err = NewTradingEngine(cfg, client, strat, book)
	assert.Error(t, err)

	cfg = DefaultConfig(cex.TradingPair{})
	_, err = NewTradingEngine(cfg, client, strat, book)
	assert.Error(t, err)

	cfg = DefaultConfig(testPair)
	cfg.Timeframe = "7m"
	_, err = NewTradingEngine(cfg, client, strat, book)
	assert.Error(t, err)

	e, err := NewTradingEngine(DefaultConfig(testPair), client, strat, book)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, 100, e.Config().CandleLimit)
}

func TestRunCycle_BuySizedByRisk(t *testing.T) {
	client := newMockClient()
	book := newTestLedger(t, "1000", client)
	e := newTestEngine(t, client, buySignal(), book)

	report := e.RunCycle(context.Background())

	require.Equal(t, OutcomeTraded, report.Outcome, report.String())
	require.Len(t, client.Orders, 1)
	assert.Equal(t, cex.OrderSideBuy, client.Orders[0].Side)
	assert.True(t, client.Orders[0].Quantity.Equal(d("4")), "got %s", client.Orders[0].Quantity)

	assert.Equal(t, cex.OrderSideBuy, report.Side)
	assert.True(t, report.Amount.Equal(d("4")))
	assert.True(t, report.Cost.Equal(d("400")))
	require.NotNil(t, report.Trade)
	assert.Equal(t, "BTC/USDT", report.Trade.Symbol)
	require.NotNil(t, report.Portfolio)
	assert.True(t, report.Portfolio.Balance.Equal(d("600")))
	assert.True(t, report.Portfolio.Equity.Equal(d("1000")))
	assert.NoError(t, report.Err)
	assert.False(t, report.IsWarning())
	assert.True(t, report.Traded())
	assert.Contains(t, report.String(), "BUY 4 @ 100")

	assert.True(t, e.Portfolio().Position("BTC/USDT").Equal(d("4")))
	assert.Len(t, e.TradeHistory(), 1)
	assert.Equal(t, StateIdle, e.State())
}

func TestRunCycle_SellCappedByHoldings(t *testing.T) {
	client := newMockClient()
	book := newTestLedger(t, "1000", client)
	_, err := book.ApplyFill(context.Background(), &cex.Fill{
		TradingPair: testPair, Side: cex.OrderSideBuy, Amount: d("0.5"), Price: d("100"), Cost: d("50"),
	})
	require.NoError(t, err)

	e := newTestEngine(t, client, sellSignal("1.0"), book)
	report := e.RunCycle(context.Background())

	require.Equal(t, OutcomeTraded, report.Outcome, report.String())
	require.Len(t, client.Orders, 1)
	assert.Equal(t, cex.OrderSideSell, client.Orders[0].Side)
	assert.True(t, client.Orders[0].Quantity.Equal(d("0.5")))

	_, held := e.Portfolio().Positions["BTC/USDT"]
	assert.False(t, held)
	assert.True(t, e.Portfolio().Balance.Equal(d("1000")))
	assert.Len(t, e.TradeHistory(), 2)
}

func TestRunCycle_SellWithoutHoldings(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, sellSignal("1"), newTestLedger(t, "1000", client))

	report := e.RunCycle(context.Background())

	assert.Equal(t, OutcomeNoAction, report.Outcome)
	assert.Contains(t, report.Reason, "no BTC/USDT position")
	assert.Empty(t, client.Orders)
	assert.Empty(t, e.TradeHistory())
}

func TestRunCycle_ZeroBuySize(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, strategy.Buy(decimal.Zero, d("0.01"), "bad price"), newTestLedger(t, "1000", client))

	report := e.RunCycle(context.Background())

	assert.Equal(t, OutcomeNoAction, report.Outcome)
	assert.Contains(t, report.String(), "no action")
	assert.Empty(t, client.Orders)
}

func TestRunCycle_Hold(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, strategy.Hold("rsi neutral"), newTestLedger(t, "1000", client))

	report := e.RunCycle(context.Background())

	assert.Equal(t, OutcomeHold, report.Outcome)
	assert.Equal(t, "rsi neutral", report.Reason)
	assert.Contains(t, report.String(), "hold, rsi neutral")
	assert.Empty(t, client.Orders)
	require.NotNil(t, report.Portfolio)
	assert.True(t, report.Portfolio.Balance.Equal(d("1000")))
}

func TestRunCycle_MarketDataUnavailable(t *testing.T) {
	t.Run("fetch fails", func(t *testing.T) {
		client := newMockClient()
		client.KlinesErr = errors.New("connection refused")
		book := newTestLedger(t, "1000", client)
		e := newTestEngine(t, client, buySignal(), book)

		var report *CycleReport
		assert.NotPanics(t, func() {
			report = e.RunCycle(context.Background())
		})

		assert.Equal(t, OutcomeFailed, report.Outcome)
		assert.ErrorIs(t, report.Err, ErrMarketDataUnavailable)
		assert.Contains(t, report.Error, "connection refused")
		assert.True(t, report.IsWarning())
		assert.Empty(t, client.Orders)
		assert.True(t, book.Balance().Equal(d("1000")))
		assert.Empty(t, book.History())
		assert.Equal(t, StateIdle, e.State())
	})

	t.Run("short window", func(t *testing.T) {
		client := newMockClient()
		client.Klines = client.Klines[:3]
		e := newTestEngine(t, client, buySignal(), newTestLedger(t, "1000", client))

		report := e.RunCycle(context.Background())
		assert.ErrorIs(t, report.Err, ErrMarketDataUnavailable)
		assert.Contains(t, report.Error, "got 3 candles, need 5")
		assert.Empty(t, client.Orders)
	})
}

func TestRunCycle_OrderSubmissionFailed(t *testing.T) {
	client := newMockClient()
	client.OrderErr = errors.New("rejected: MIN_NOTIONAL")
	book := newTestLedger(t, "1000", client)
	e := newTestEngine(t, client, buySignal(), book)

	report := e.RunCycle(context.Background())

	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.ErrorIs(t, report.Err, ErrOrderSubmissionFailed)
	assert.Len(t, client.Orders, 1, "no retry within the cycle")
	assert.True(t, book.Balance().Equal(d("1000")))
	assert.Empty(t, book.History())
}

func TestRunCycle_ReconciliationDrift(t *testing.T) {
	overpriced := func(req cex.MarketOrderRequest) *cex.Fill {
		return &cex.Fill{
			OrderID: "drift-1", TradingPair: req.TradingPair, Side: req.Side,
			Amount: req.Quantity, Price: d("2000"), Cost: req.Quantity.Mul(d("2000")),
		}
	}

	t.Run("adopts exchange balances", func(t *testing.T) {
		client := newMockClient()
		client.FillFunc = overpriced
		client.Balances = []*cex.AccountBalance{
			{Asset: "USDT", Free: d("120"), Locked: d("3")},
			{Asset: "BTC", Free: d("4")},
			{Asset: "ETH", Free: d("9")},
		}
		book := newTestLedger(t, "1000", client)
		e := newTestEngine(t, client, buySignal(), book)

		report := e.RunCycle(context.Background())

		assert.Equal(t, OutcomeDrift, report.Outcome)
		assert.ErrorIs(t, report.Err, ErrReconciliationDrift)
		assert.ErrorIs(t, report.Err, ledger.ErrInsufficientFunds)
		assert.True(t, report.IsWarning())
		assert.Contains(t, report.String(), "reconciliation warning")

		assert.True(t, book.Balance().Equal(d("123")))
		assert.True(t, book.Position("BTC/USDT").Equal(d("4")))
		assert.Empty(t, book.History())
		require.NotNil(t, report.Portfolio)
		assert.True(t, report.Portfolio.Balance.Equal(d("123")))
	})

	t.Run("exchange balances unavailable", func(t *testing.T) {
		client := newMockClient()
		client.FillFunc = overpriced
		client.AccountErr = errors.New("timeout")
		book := newTestLedger(t, "1000", client)
		e := newTestEngine(t, client, buySignal(), book)

		report := e.RunCycle(context.Background())

		assert.Equal(t, OutcomeDrift, report.Outcome)
		assert.ErrorIs(t, report.Err, ErrReconciliationDrift)
		assert.Contains(t, report.Error, "exchange balances unavailable")
		assert.True(t, book.Balance().Equal(d("1000")))
	})
}

func TestRunCycle_OverlappingCycleIsSkipped(t *testing.T) {
	client := newMockClient()
	client.Block = make(chan struct{})
	client.Entered = make(chan struct{}, 1)
	book := newTestLedger(t, "1000", client)
	e := newTestEngine(t, client, buySignal(), book)

	done := make(chan *CycleReport, 1)
	go func() {
		done <- e.RunCycle(context.Background())
	}()

	<-client.Entered
	assert.Equal(t, StateExecuting, e.State())

	skipped := e.RunCycle(context.Background())
	assert.Equal(t, OutcomeSkipped, skipped.Outcome)
	assert.ErrorIs(t, skipped.Err, ErrCycleInProgress)
	assert.Contains(t, skipped.String(), "skipped")

	close(client.Block)
	first := <-done
	assert.Equal(t, OutcomeTraded, first.Outcome)
	assert.Equal(t, 1, client.OrderCount())
	assert.Len(t, book.History(), 1)
	assert.True(t, book.Balance().Equal(d("600")))
	assert.Equal(t, StateIdle, e.State())
}

func TestRunCycle_CancelledDuringExecutionStillReconciles(t *testing.T) {
	client := newMockClient()
	client.Block = make(chan struct{})
	client.Entered = make(chan struct{}, 1)
	book := newTestLedger(t, "1000", client)
	e := newTestEngine(t, client, buySignal(), book)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *CycleReport, 1)
	go func() {
		done <- e.RunCycle(ctx)
	}()

	<-client.Entered
	cancel()
	close(client.Block)

	report := <-done
	assert.Equal(t, OutcomeTraded, report.Outcome)
	require.Len(t, client.OrderCtxErrs, 1)
	assert.NoError(t, client.OrderCtxErrs[0])
	assert.Len(t, book.History(), 1)
}

func TestRunCycle_CancelledBeforeSubmission(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, buySignal(), newTestLedger(t, "1000", client))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := e.RunCycle(ctx)
	assert.Equal(t, OutcomeNoAction, report.Outcome)
	assert.Empty(t, client.Orders)
}

func TestRunCycle_StrategyPanicBecomesReport(t *testing.T) {
	client := newMockClient()
	strat := &stubStrategy{required: 5, panics: true}
	e, err := NewTradingEngine(testConfig(), client, strat, newTestLedger(t, "1000", client))
	require.NoError(t, err)

	report := e.RunCycle(context.Background())
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Contains(t, report.Error, "strategy exploded")
	assert.Equal(t, StateIdle, e.State())

	// 锁已释放
	strat.panics = false
	strat.signal = strategy.Hold("recovered")
	assert.Equal(t, OutcomeHold, e.RunCycle(context.Background()).Outcome)
}

func TestRunCycle_PanicAfterFillReconciles(t *testing.T) {
	t.Run("adopts exchange balances", func(t *testing.T) {
		client := newMockClient()
		client.PricePanic = true
		client.Balances = []*cex.AccountBalance{{Asset: "USDT", Free: d("600")}}
		book := newTestLedger(t, "1000", client)
		e := newTestEngine(t, client, buySignal(), book)

		report := e.RunCycle(context.Background())

		assert.Equal(t, 1, client.OrderCount())
		assert.Equal(t, OutcomeDrift, report.Outcome)
		assert.ErrorIs(t, report.Err, ErrReconciliationDrift)
		assert.Contains(t, report.Error, "price feed crashed")
		assert.True(t, book.Balance().Equal(d("600")))
		require.NotNil(t, report.Portfolio)
		assert.True(t, report.Portfolio.Balance.Equal(d("600")))
		assert.Equal(t, StateIdle, e.State())
	})

	t.Run("reconciliation also panics", func(t *testing.T) {
		client := newMockClient()
		client.PricePanic = true
		client.Balances = []*cex.AccountBalance{
			{Asset: "USDT", Free: d("600")},
			{Asset: "BTC", Free: d("4")},
		}
		book := newTestLedger(t, "1000", client)
		e := newTestEngine(t, client, buySignal(), book)

		report := e.RunCycle(context.Background())

		assert.Equal(t, OutcomeDrift, report.Outcome)
		assert.ErrorIs(t, report.Err, ErrReconciliationDrift)
		assert.Contains(t, report.Error, "exchange balances unavailable")
		assert.True(t, book.Balance().Equal(d("1000")))

		// 账本锁已释放
		client.PricePanic = false
		client.Balances = nil
		e.strategy = &stubStrategy{signal: strategy.Hold("calm"), required: 5}
		assert.Equal(t, OutcomeHold, e.RunCycle(context.Background()).Outcome)
	})
}

func TestRunCycle_UsesClock(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, strategy.Hold("flat"), newTestLedger(t, "1000", client))

	ticks := 0
	e.SetClock(func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * time.Second)
	})

	report := e.RunCycle(context.Background())
	assert.Equal(t, OutcomeHold, report.Outcome)
	assert.True(t, report.StartedAt.Equal(start.Add(time.Second)))
	assert.True(t, report.FinishedAt.After(report.StartedAt))
	assert.Equal(t, report.FinishedAt.Sub(report.StartedAt), report.Duration())
}

func TestRunCycle_Observers(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, buySignal(), newTestLedger(t, "1000", client))

	var received []*CycleReport
	e.AddObserver(ObserverFunc(func(ctx context.Context, report *CycleReport) error {
		received = append(received, report)
		return nil
	}))
	e.AddObserver(ObserverFunc(func(ctx context.Context, report *CycleReport) error {
		return errors.New("journal offline")
	}))
	e.AddObserver(ObserverFunc(func(ctx context.Context, report *CycleReport) error {
		panic("observer bug")
	}))
	var lockFree bool
	e.AddObserver(ObserverFunc(func(ctx context.Context, report *CycleReport) error {
		// 观察者执行时周期锁已释放
		lockFree = e.cycleMu.TryLock()
		if lockFree {
			e.cycleMu.Unlock()
		}
		return nil
	}))

	report := e.RunCycle(context.Background())
	assert.Equal(t, OutcomeTraded, report.Outcome)
	require.Len(t, received, 1)
	assert.Same(t, report, received[0])
	assert.True(t, lockFree)
}

func TestRunCycle_SequenceNumbers(t *testing.T) {
	client := newMockClient()
	e := newTestEngine(t, client, strategy.Hold("quiet"), newTestLedger(t, "1000", client))

	first := e.RunCycle(context.Background())
	second := e.RunCycle(context.Background())
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.False(t, second.StartedAt.Before(first.StartedAt))
	assert.GreaterOrEqual(t, second.Duration(), time.Duration(0))
}

func TestRunLive(t *testing.T) {
	t.Run("invalid interval", func(t *testing.T) {
		client := newMockClient()
		e := newTestEngine(t, client, strategy.Hold("quiet"), newTestLedger(t, "1000", client))
		assert.Error(t, e.RunLive(context.Background(), 0))
	})

	t.Run("stop", func(t *testing.T) {
		client := newMockClient()
		e := newTestEngine(t, client, strategy.Hold("quiet"), newTestLedger(t, "1000", client))

		var cycles atomic.Int32
		e.AddObserver(ObserverFunc(func(ctx context.Context, report *CycleReport) error {
			if cycles.Add(1) == 3 {
				e.Stop()
			}
			return nil
		}))

		err := e.RunLive(context.Background(), 5*time.Millisecond)
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, cycles.Load(), int32(3))
		assert.False(t, e.IsRunning())
	})

	t.Run("context cancel", func(t *testing.T) {
		client := newMockClient()
		e := newTestEngine(t, client, strategy.Hold("quiet"), newTestLedger(t, "1000", client))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		err := e.RunLive(ctx, 5*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("already running", func(t *testing.T) {
		client := newMockClient()
		e := newTestEngine(t, client, strategy.Hold("quiet"), newTestLedger(t, "1000", client))

		ctx, cancel := context.WithCancel(context.Background())
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.RunLive(ctx, time.Hour)
		}()

		require.Eventually(t, e.IsRunning, time.Second, time.Millisecond)
		assert.Error(t, e.RunLive(ctx, time.Hour))
		cancel()
		wg.Wait()
	})
}

func TestRunCycle_RSIMAStrategyWithPaperExchange(t *testing.T) {
	closes := make([]float64, 0, 50)
	for i := 0; i < 45; i++ {
		closes = append(closes, 100+2*float64(i))
	}
	closes = append(closes, 180, 172, 164, 156, 148)

	market := &MockCEXClient{
		Klines: CreateTestKlines(start, time.Hour, closes...),
		Price:  d("148"),
	}
	exchange, err := paper.NewClient(market, paper.Config{
		InitialQuote: d("1000"),
		QuoteAsset:   "USDT",
	})
	require.NoError(t, err)

	strat, err := strategies.NewRSIMAStrategy(nil)
	require.NoError(t, err)
	book, err := ledger.New(d("1000"), exchange)
	require.NoError(t, err)

	e, err := NewTradingEngine(DefaultConfig(testPair), exchange, strat, book)
	require.NoError(t, err)

	report := e.RunCycle(context.Background())
	require.Equal(t, OutcomeTraded, report.Outcome, report.String())
	assert.Equal(t, strategy.SignalBuy, report.Signal.Type)

	// 1000 × 0.02 / (148 × 0.05)
	assert.True(t, report.Amount.Equal(d("2.7027027")), "got %s", report.Amount)
	assert.True(t, book.Position("BTC/USDT").Equal(report.Amount))

	balances, err := exchange.GetAccount(context.Background())
	require.NoError(t, err)
	usdt := cex.FindBalance(balances, "USDT")
	require.NotNil(t, usdt)
	assert.True(t, usdt.Free.Equal(book.Balance()))
}
