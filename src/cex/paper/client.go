package paper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ultratrader/src/cex"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// MarketData 行情来源
type MarketData interface {
	GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error)
	GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error)
	Ping(ctx context.Context) error
}

// Config 模拟交易配置
type Config struct {
	InitialQuote decimal.Decimal // 初始计价货币余额
	QuoteAsset   string          // 计价货币，如 USDT
	Commission   decimal.Decimal // 手续费率
	Slippage     decimal.Decimal // 滑点
}

// Client 模拟成交的交易所实现
//
// 行情透传给 MarketData，订单按最新价加滑点立即成交，余额由本地账户维护。
type Client struct {
	market     MarketData
	commission decimal.Decimal
	slippage   decimal.Decimal
	quoteAsset string

	mu       sync.Mutex
	balances map[string]decimal.Decimal
	seq      int64
	now      func() time.Time
}

var _ cex.Client = (*Client)(nil)

// NewClient 创建模拟交易客户端
func NewClient(market MarketData, config Config) (*Client, error) {
	if market == nil {
		return nil, fmt.Errorf("market data source is required")
	}
	if config.QuoteAsset == "" {
		return nil, fmt.Errorf("quote asset is required")
	}
	if config.InitialQuote.IsNegative() {
		return nil, fmt.Errorf("initial quote balance must be non-negative, got %s", config.InitialQuote.String())
	}
	if config.Commission.IsNegative() || config.Slippage.IsNegative() {
		return nil, fmt.Errorf("commission and slippage must be non-negative")
	}

	return &Client{
		market:     market,
		commission: config.Commission,
		slippage:   config.Slippage,
		quoteAsset: config.QuoteAsset,
		balances:   map[string]decimal.Decimal{config.QuoteAsset: config.InitialQuote},
		now:        time.Now,
	}, nil
}

// GetName 获取交易所名称
func (c *Client) GetName() string {
	return cex.KindPaper.String()
}

// GetKlines 获取K线数据
func (c *Client) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	return c.market.GetKlines(ctx, pair, interval, limit)
}

// GetPrice 获取最新成交价
func (c *Client) GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error) {
	return c.market.GetPrice(ctx, pair)
}

// SubmitMarketOrder 以最新价模拟成交
func (c *Client) SubmitMarketOrder(ctx context.Context, order cex.MarketOrderRequest) (*cex.Fill, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("PaperExchange")

	if !order.Quantity.IsPositive() {
		return nil, fmt.Errorf("invalid order quantity: %s", order.Quantity.String())
	}
	if order.TradingPair.Quote != c.quoteAsset {
		return nil, fmt.Errorf("unsupported quote asset %s, account is in %s", order.TradingPair.Quote, c.quoteAsset)
	}

	price, err := c.market.GetPrice(ctx, order.TradingPair)
	if err != nil {
		return nil, fmt.Errorf("failed to get price for %s: %w", order.TradingPair.String(), err)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("invalid market price %s for %s", price.String(), order.TradingPair.String())
	}

	// 应用滑点
	one := decimal.NewFromInt(1)
	executionPrice := price.Mul(one.Add(c.slippage))
	if order.Side == cex.OrderSideSell {
		executionPrice = price.Mul(one.Sub(c.slippage))
	}

	notional := order.Quantity.Mul(executionPrice)
	commission := notional.Mul(c.commission)

	c.mu.Lock()
	defer c.mu.Unlock()

	base := order.TradingPair.Base
	quoteBalance := c.balances[c.quoteAsset]
	baseBalance := c.balances[base]

	var cost decimal.Decimal
	switch order.Side {
	case cex.OrderSideBuy:
		cost = notional.Add(commission)
		if quoteBalance.LessThan(cost) {
			logger.Error("现金不足", "required", cost.String(), "available", quoteBalance.String())
			return nil, fmt.Errorf("insufficient balance: required %s, available %s", cost.String(), quoteBalance.String())
		}
		c.balances[c.quoteAsset] = quoteBalance.Sub(cost)
		c.balances[base] = baseBalance.Add(order.Quantity)

	case cex.OrderSideSell:
		if baseBalance.LessThan(order.Quantity) {
			logger.Error("持仓不足", "required", order.Quantity.String(), "available", baseBalance.String())
			return nil, fmt.Errorf("insufficient position: required %s, available %s", order.Quantity.String(), baseBalance.String())
		}
		cost = notional.Sub(commission)
		c.balances[base] = baseBalance.Sub(order.Quantity)
		c.balances[c.quoteAsset] = quoteBalance.Add(cost)

	default:
		return nil, fmt.Errorf("unknown order side: %s", order.Side)
	}

	c.seq++
	fill := &cex.Fill{
		OrderID:     fmt.Sprintf("paper_%d", c.seq),
		TradingPair: order.TradingPair,
		Side:        order.Side,
		Amount:      order.Quantity,
		Price:       executionPrice,
		Cost:        cost,
		Commission:  commission,
		Timestamp:   c.now(),
	}

	logger.Info(fmt.Sprintf("模拟成交: %s %s %s @ %s, cost=%s",
		fill.Side, fill.Amount.String(), order.TradingPair.String(), fill.Price.String(), fill.Cost.String()))

	return fill, nil
}

// GetAccount 获取模拟账户余额
func (c *Client) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	balances := make([]*cex.AccountBalance, 0, len(c.balances))
	for asset, free := range c.balances {
		balances = append(balances, &cex.AccountBalance{Asset: asset, Free: free})
	}
	return balances, nil
}

// Ping 测试行情来源连接
func (c *Client) Ping(ctx context.Context) error {
	return c.market.Ping(ctx)
}
