package cmd

import (
	"testing"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/config"
	"ultratrader/src/engine"
	"ultratrader/src/ledger"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverrides_Apply(t *testing.T) {
	t.Run("overrides pair and timeframe", func(t *testing.T) {
		cfg := config.Default()
		o := Overrides{Base: "eth", Quote: "usdc", Timeframe: "4h", Interval: 30}
		require.NoError(t, o.Apply(cfg))

		assert.Equal(t, "ETH/USDC", cfg.TradingPair().String())
		assert.Equal(t, "4h", cfg.Trading.Timeframe)
		assert.Equal(t, 30*time.Second, cfg.GetCycleInterval())
	})

	t.Run("empty overrides keep config", func(t *testing.T) {
		cfg := config.Default()
		require.NoError(t, Overrides{}.Apply(cfg))
		assert.Equal(t, "BTC/USDT", cfg.TradingPair().String())
	})

	t.Run("invalid timeframe", func(t *testing.T) {
		cfg := config.Default()
		err := Overrides{Timeframe: "9x"}.Apply(cfg)
		assert.Error(t, err)
	})

	t.Run("binance without keys", func(t *testing.T) {
		cfg := config.Default()
		err := Overrides{Exchange: "binance"}.Apply(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
	})
}

func TestRenderReport(t *testing.T) {
	pair := cex.TradingPair{Base: "BTC", Quote: "USDT"}
	start := time.Unix(1700000000, 0)

	t.Run("traded", func(t *testing.T) {
		report := &engine.CycleReport{
			Seq:        3,
			Pair:       pair,
			StartedAt:  start,
			FinishedAt: start.Add(150 * time.Millisecond),
			Outcome:    engine.OutcomeTraded,
			Signal:     &strategy.Signal{Type: strategy.SignalBuy, RSI: 25.5, MovingAverage: decimal.NewFromInt(95), Reason: "oversold"},
			Side:       cex.OrderSideBuy,
			Amount:     decimal.NewFromInt(4),
			Price:      decimal.NewFromInt(100),
			Cost:       decimal.NewFromInt(400),
		}
		out := RenderReport(report)
		assert.Contains(t, out, "Cycle #3")
		assert.Contains(t, out, "BTC/USDT")
		assert.Contains(t, out, "TRADED")
		assert.Contains(t, out, "BUY 4 @ 100")
		assert.Contains(t, out, "25.50")
		assert.Contains(t, out, "150ms")
	})

	t.Run("failed", func(t *testing.T) {
		report := &engine.CycleReport{Seq: 1, Pair: pair, Outcome: engine.OutcomeFailed, Error: "market data unavailable"}
		out := RenderReport(report)
		assert.Contains(t, out, "FAILED")
		assert.Contains(t, out, "market data unavailable")
		assert.NotContains(t, out, "cost")
	})

	t.Run("nil", func(t *testing.T) {
		assert.Empty(t, RenderReport(nil))
	})
}

func TestRenderPortfolio(t *testing.T) {
	portfolio := &ledger.Portfolio{
		Balance:   decimal.NewFromInt(600),
		Positions: map[string]decimal.Decimal{"BTC/USDT": decimal.NewFromInt(4)},
		Prices:    map[string]decimal.Decimal{"BTC/USDT": decimal.NewFromInt(110)},
		Equity:    decimal.NewFromInt(1040),
	}

	out := RenderPortfolio(portfolio)
	assert.Contains(t, out, "600.00")
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "4 @ 110")
	assert.Contains(t, out, "1040.00")

	assert.Empty(t, RenderPortfolio(nil))
}

func TestRenderTrades(t *testing.T) {
	assert.Contains(t, RenderTrades(nil), "no trades yet")

	trades := []ledger.TradeRecord{{
		Timestamp: time.Unix(1700000000, 0),
		OrderID:   "paper-1",
		Symbol:    "BTC/USDT",
		Side:      cex.OrderSideSell,
		Amount:    decimal.NewFromInt(1),
		Price:     decimal.NewFromInt(120),
		Value:     decimal.NewFromInt(120),
		Cost:      decimal.NewFromInt(120),
	}}
	out := RenderTrades(trades)
	assert.Contains(t, out, "Recent trades")
	assert.Contains(t, out, "BTC/USDT")
}

func TestLatencyQuality(t *testing.T) {
	assert.Equal(t, "优秀", latencyQuality(50*time.Millisecond))
	assert.Equal(t, "良好", latencyQuality(200*time.Millisecond))
	assert.Equal(t, "一般", latencyQuality(500*time.Millisecond))
	assert.Equal(t, "较差", latencyQuality(2*time.Second))
}
