package risk

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// DefaultRiskPercent 单笔风险占余额比例
	DefaultRiskPercent = 0.02
	// DefaultStopLossPercent 止损距离占入场价比例
	DefaultStopLossPercent = 0.05
)

// SizeBuy 按风险预算计算买入数量
//
// quantity = balance × riskPercent / (entryPrice × stopLossPercent)。
// 任一输入非正时返回0，调用方据此放弃下单。
func SizeBuy(balance, entryPrice, riskPercent, stopLossPercent decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() || !entryPrice.IsPositive() ||
		!riskPercent.IsPositive() || !stopLossPercent.IsPositive() {
		return decimal.Zero
	}

	riskAmount := balance.Mul(riskPercent)
	stopLossPrice := entryPrice.Mul(decimal.NewFromInt(1).Sub(stopLossPercent))
	riskPerUnit := entryPrice.Sub(stopLossPrice)
	if !riskPerUnit.IsPositive() {
		return decimal.Zero
	}

	return riskAmount.Div(riskPerUnit)
}

// SizeSell 卖出数量不超过当前持仓
func SizeSell(held, suggested decimal.Decimal) decimal.Decimal {
	if !held.IsPositive() || !suggested.IsPositive() {
		return decimal.Zero
	}
	return decimal.Min(held, suggested)
}

// Sizer 仓位计算器，构造时固定风险参数
type Sizer struct {
	riskPercent     decimal.Decimal
	stopLossPercent decimal.Decimal
}

// NewSizer 创建仓位计算器
func NewSizer(riskPercent, stopLossPercent float64) (*Sizer, error) {
	if riskPercent <= 0 || riskPercent > 1 {
		return nil, fmt.Errorf("risk percent must be in (0, 1], got %f", riskPercent)
	}
	if stopLossPercent <= 0 || stopLossPercent >= 1 {
		return nil, fmt.Errorf("stop loss percent must be in (0, 1), got %f", stopLossPercent)
	}

	return &Sizer{
		riskPercent:     decimal.NewFromFloat(riskPercent),
		stopLossPercent: decimal.NewFromFloat(stopLossPercent),
	}, nil
}

// NewDefaultSizer 使用默认参数（2%风险，5%止损）
func NewDefaultSizer() *Sizer {
	s, _ := NewSizer(DefaultRiskPercent, DefaultStopLossPercent)
	return s
}

// RiskPercent 单笔风险比例
func (s *Sizer) RiskPercent() decimal.Decimal {
	return s.riskPercent
}

// StopLossPercent 止损比例
func (s *Sizer) StopLossPercent() decimal.Decimal {
	return s.stopLossPercent
}

// SizeBuy 计算买入数量
func (s *Sizer) SizeBuy(balance, entryPrice decimal.Decimal) decimal.Decimal {
	return SizeBuy(balance, entryPrice, s.riskPercent, s.stopLossPercent)
}

// SizeSell 计算卖出数量
func (s *Sizer) SizeSell(held, suggested decimal.Decimal) decimal.Decimal {
	return SizeSell(held, suggested)
}
