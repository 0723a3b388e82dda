package strategy

import (
	"fmt"
)

// RSIMAParams RSI+均线策略参数
type RSIMAParams struct {
	RSIPeriod       int     // RSI周期，默认14
	MAPeriod        int     // 均线周期，默认50
	Oversold        float64 // 超卖阈值，默认30
	Overbought      float64 // 超买阈值，默认70
	SuggestedAmount float64 // 信号建议数量，默认0.01
}

// GetDefaultRSIMAParams 获取默认的RSI+均线策略参数
func GetDefaultRSIMAParams() *RSIMAParams {
	return &RSIMAParams{
		RSIPeriod:       14,
		MAPeriod:        50,
		Oversold:        30,
		Overbought:      70,
		SuggestedAmount: 0.01,
	}
}

// Validate 验证参数有效性
func (p *RSIMAParams) Validate() error {
	if p.RSIPeriod <= 0 {
		return fmt.Errorf("rsi_period must be positive, got %d", p.RSIPeriod)
	}
	if p.MAPeriod <= 0 {
		return fmt.Errorf("ma_period must be positive, got %d", p.MAPeriod)
	}
	if p.Oversold <= 0 || p.Oversold >= 100 {
		return fmt.Errorf("oversold must be between 0 and 100, got %f", p.Oversold)
	}
	if p.Overbought <= 0 || p.Overbought >= 100 {
		return fmt.Errorf("overbought must be between 0 and 100, got %f", p.Overbought)
	}
	if p.Oversold >= p.Overbought {
		return fmt.Errorf("oversold (%f) must be below overbought (%f)", p.Oversold, p.Overbought)
	}
	if p.SuggestedAmount < 0 {
		return fmt.Errorf("suggested_amount must be non-negative, got %f", p.SuggestedAmount)
	}
	return nil
}

// RequiredCandles 最少需要的K线数
func (p *RSIMAParams) RequiredCandles() int {
	return max(p.RSIPeriod, p.MAPeriod)
}
