package strategy

import (
	"fmt"

	"ultratrader/src/cex"

	"github.com/shopspring/decimal"
)

// SignalType 信号类型
type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

// Signal 交易信号，每个周期重新生成，不持久化
//
// Price 与 Amount 仅对 BUY/SELL 有意义。
type Signal struct {
	Type          SignalType      `json:"type"`
	Price         decimal.Decimal `json:"price"`          // 最新收盘价
	Amount        decimal.Decimal `json:"amount"`         // 建议数量
	RSI           float64         `json:"rsi"`            // 计算出的RSI，数据不足时为0
	MovingAverage decimal.Decimal `json:"moving_average"` // 计算出的均线
	Reason        string          `json:"reason"`         // 信号原因
	Timestamp     int64           `json:"timestamp"`      // 信号对应K线的开盘时间（毫秒）
}

// Buy 创建买入信号
func Buy(price, amount decimal.Decimal, reason string) *Signal {
	return &Signal{Type: SignalBuy, Price: price, Amount: amount, Reason: reason}
}

// Sell 创建卖出信号
func Sell(price, amount decimal.Decimal, reason string) *Signal {
	return &Signal{Type: SignalSell, Price: price, Amount: amount, Reason: reason}
}

// Hold 创建观望信号
func Hold(reason string) *Signal {
	return &Signal{Type: SignalHold, Reason: reason}
}

// IsHold 是否为观望
func (s *Signal) IsHold() bool {
	return s == nil || s.Type == SignalHold
}

// String 返回信号的可读描述
func (s *Signal) String() string {
	if s.IsHold() {
		if s == nil || s.Reason == "" {
			return "HOLD"
		}
		return "HOLD (" + s.Reason + ")"
	}
	return fmt.Sprintf("%s %s @ %s (%s)", s.Type, s.Amount.String(), s.Price.String(), s.Reason)
}

// Strategy 信号生成器接口
type Strategy interface {
	// GetName 获取策略名称
	GetName() string

	// RequiredCandles 生成非观望信号所需的最少K线数
	RequiredCandles() int

	// GenerateSignal 根据按时间升序排列的K线生成信号，必须是纯函数
	GenerateSignal(klines []*cex.KlineData) *Signal
}
