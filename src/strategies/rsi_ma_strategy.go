package strategies

import (
	"fmt"

	"ultratrader/src/cex"
	"ultratrader/src/indicators"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
)

// RSIMAStrategy RSI+均线策略
//
// 只看最新一根K线：RSI 超卖且收盘价在均线之上买入，RSI 超买且收盘价在均线之下卖出，
// 其余情况观望。阈值比较均为严格不等式。
type RSIMAStrategy struct {
	params          strategy.RSIMAParams
	suggestedAmount decimal.Decimal
}

var _ strategy.Strategy = (*RSIMAStrategy)(nil)

// NewRSIMAStrategy 创建RSI+均线策略
func NewRSIMAStrategy(params *strategy.RSIMAParams) (*RSIMAStrategy, error) {
	if params == nil {
		params = strategy.GetDefaultRSIMAParams()
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy params: %w", err)
	}

	return &RSIMAStrategy{
		params:          *params,
		suggestedAmount: decimal.NewFromFloat(params.SuggestedAmount),
	}, nil
}

// GetName 获取策略名称
func (s *RSIMAStrategy) GetName() string {
	return "RSI MA Strategy"
}

// GetParams 获取策略参数副本
func (s *RSIMAStrategy) GetParams() strategy.RSIMAParams {
	return s.params
}

// RequiredCandles 最少需要的K线数
func (s *RSIMAStrategy) RequiredCandles() int {
	return s.params.RequiredCandles()
}

// GenerateSignal 生成交易信号
func (s *RSIMAStrategy) GenerateSignal(klines []*cex.KlineData) *strategy.Signal {
	required := s.RequiredCandles()
	if len(klines) < required {
		return strategy.Hold(fmt.Sprintf("insufficient data: have %d candles, need %d", len(klines), required))
	}

	closes := make([]decimal.Decimal, len(klines))
	for i, kline := range klines {
		if kline == nil {
			return strategy.Hold(fmt.Sprintf("missing candle at index %d", i))
		}
		closes[i] = kline.Close
	}

	rsi, err := indicators.RSI(closes, s.params.RSIPeriod)
	if err != nil {
		return strategy.Hold(fmt.Sprintf("rsi unavailable: %v", err))
	}
	ma, err := indicators.SMA(closes, s.params.MAPeriod)
	if err != nil {
		return strategy.Hold(fmt.Sprintf("moving average unavailable: %v", err))
	}

	last := klines[len(klines)-1]
	price := last.Close

	var signal *strategy.Signal
	switch s.decide(rsi, price, ma) {
	case strategy.SignalBuy:
		signal = strategy.Buy(price, s.suggestedAmount,
			fmt.Sprintf("rsi %.2f below %.0f and close %s above ma %s", rsi, s.params.Oversold, price.String(), ma.StringFixed(4)))
	case strategy.SignalSell:
		signal = strategy.Sell(price, s.suggestedAmount,
			fmt.Sprintf("rsi %.2f above %.0f and close %s below ma %s", rsi, s.params.Overbought, price.String(), ma.StringFixed(4)))
	default:
		signal = strategy.Hold(fmt.Sprintf("rsi %.2f, close %s, ma %s", rsi, price.String(), ma.StringFixed(4)))
	}

	signal.RSI = rsi
	signal.MovingAverage = ma
	signal.Timestamp = last.OpenTime.UnixMilli()
	return signal
}

// decide 决策规则，阈值相等时观望
func (s *RSIMAStrategy) decide(rsi float64, price, ma decimal.Decimal) strategy.SignalType {
	if rsi < s.params.Oversold && price.GreaterThan(ma) {
		return strategy.SignalBuy
	}
	if rsi > s.params.Overbought && price.LessThan(ma) {
		return strategy.SignalSell
	}
	return strategy.SignalHold
}
