package engine

import (
	"fmt"

	"ultratrader/src/cex"
	"ultratrader/src/risk"
	"ultratrader/src/timeframes"
)

// Config 引擎配置，构造时传入，运行期间不可修改
type Config struct {
	TradingPair       cex.TradingPair
	Timeframe         timeframes.Timeframe
	CandleLimit       int     // 每周期拉取的K线数
	RiskPercent       float64 // 单笔风险比例
	StopLossPercent   float64 // 止损比例
	QuantityPrecision int32   // 下单数量保留的小数位
}

// DefaultConfig 默认配置：1小时K线，每次100根，2%风险，5%止损
func DefaultConfig(pair cex.TradingPair) Config {
	return Config{
		TradingPair:       pair,
		Timeframe:         timeframes.Timeframe1h,
		CandleLimit:       100,
		RiskPercent:       risk.DefaultRiskPercent,
		StopLossPercent:   risk.DefaultStopLossPercent,
		QuantityPrecision: 8,
	}
}

// Validate 验证配置
func (c Config) Validate(requiredCandles int) error {
	if c.TradingPair.Base == "" || c.TradingPair.Quote == "" {
		return fmt.Errorf("trading pair is required, got %q", c.TradingPair.String())
	}
	if !c.Timeframe.IsValid() {
		return fmt.Errorf("invalid timeframe: %s", c.Timeframe)
	}
	if c.CandleLimit < requiredCandles {
		return fmt.Errorf("candle limit %d is below the %d candles the strategy needs", c.CandleLimit, requiredCandles)
	}
	if c.QuantityPrecision < 0 {
		return fmt.Errorf("quantity precision must not be negative, got %d", c.QuantityPrecision)
	}
	return nil
}
