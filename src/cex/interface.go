package cex

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TradingPair 标准化的交易对
type TradingPair struct {
	Base  string // 基础货币，如 BTC, ETH
	Quote string // 计价货币，如 USDT, USDC
}

// String 返回标准化的交易对字符串表示，同时作为持仓的 symbol
func (tp TradingPair) String() string {
	return tp.Base + "/" + tp.Quote
}

// IsZero 交易对是否为空
func (tp TradingPair) IsZero() bool {
	return tp.Base == "" && tp.Quote == ""
}

// KlineData 标准化的K线数据（OHLCV）
type KlineData struct {
	TradingPair TradingPair     `json:"trading_pair"`
	OpenTime    time.Time       `json:"open_time"`  // 开盘时间
	Open        decimal.Decimal `json:"open"`       // 开盘价
	High        decimal.Decimal `json:"high"`       // 最高价
	Low         decimal.Decimal `json:"low"`        // 最低价
	Close       decimal.Decimal `json:"close"`      // 收盘价
	Volume      decimal.Decimal `json:"volume"`     // 成交量
	CloseTime   time.Time       `json:"close_time"` // 收盘时间
}

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// MarketOrderRequest 市价单请求，数量以基础货币计
type MarketOrderRequest struct {
	TradingPair TradingPair     `json:"trading_pair"`
	Side        OrderSide       `json:"side"`
	Quantity    decimal.Decimal `json:"quantity"`
}

// Fill 交易所对已成交订单的确认
//
// Cost 为实际离开（买入）或进入（卖出）计价货币余额的净额，已包含手续费。
// Amount 为实际进入（买入）或离开（卖出）基础货币余额的数量，买入时已扣除以基础货币收取的手续费。
type Fill struct {
	OrderID        string          `json:"order_id"`
	TradingPair    TradingPair     `json:"trading_pair"`
	Side           OrderSide       `json:"side"`
	Amount         decimal.Decimal `json:"amount"`          // 入账数量
	Price          decimal.Decimal `json:"price"`           // 成交均价
	Cost           decimal.Decimal `json:"cost"`            // 成交金额
	Commission     decimal.Decimal `json:"commission"`      // 手续费（计价货币）
	BaseCommission decimal.Decimal `json:"base_commission"` // 手续费（基础货币）
	Timestamp      time.Time       `json:"timestamp"`
}

// AccountBalance 账户余额
type AccountBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// Client 交易所协作方接口
type Client interface {
	// GetName 获取交易所名称
	GetName() string

	// GetKlines 获取最近 limit 根K线，按时间升序（最新在最后）
	GetKlines(ctx context.Context, pair TradingPair, interval string, limit int) ([]*KlineData, error)

	// GetPrice 获取最新成交价
	GetPrice(ctx context.Context, pair TradingPair) (decimal.Decimal, error)

	// SubmitMarketOrder 提交市价单
	SubmitMarketOrder(ctx context.Context, order MarketOrderRequest) (*Fill, error)

	// GetAccount 获取账户信息
	GetAccount(ctx context.Context) ([]*AccountBalance, error)

	// Ping 测试连接
	Ping(ctx context.Context) error
}

// FindBalance 在余额列表中查找资产，找不到返回 nil
func FindBalance(balances []*AccountBalance, asset string) *AccountBalance {
	for _, b := range balances {
		if b != nil && b.Asset == asset {
			return b
		}
	}
	return nil
}
