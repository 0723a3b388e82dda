package binance

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"ultratrader/src/cex"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// Client Binance客户端实现
type Client struct {
	client *binance.Client

	// steps 交易对的 LOT_SIZE 数量步长缓存
	stepsMu sync.Mutex
	steps   map[string]decimal.Decimal
}

var _ cex.Client = (*Client)(nil)

// NewClient 创建Binance客户端
func NewClient(config Config) *Client {
	binanceClient := binance.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		binanceClient.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		binanceClient.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		client: binanceClient,
		steps:  make(map[string]decimal.Decimal),
	}
}

// GetName 获取交易所名称
func (c *Client) GetName() string {
	return cex.KindBinance.String()
}

// tradingPairToSymbol 将标准化交易对转换为Binance格式
func tradingPairToSymbol(pair cex.TradingPair) string {
	// Binance格式: BTCUSDT (无分隔符)
	return strings.ToUpper(pair.Base) + strings.ToUpper(pair.Quote)
}

// parseDecimal 解析交易所返回的数字字符串，空串视为0
func parseDecimal(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

// convertKlineData 转换Binance K线数据为标准格式
func convertKlineData(kline *binance.Kline, pair cex.TradingPair) (*cex.KlineData, error) {
	open, err := parseDecimal("open", kline.Open)
	if err != nil {
		return nil, err
	}
	high, err := parseDecimal("high", kline.High)
	if err != nil {
		return nil, err
	}
	low, err := parseDecimal("low", kline.Low)
	if err != nil {
		return nil, err
	}
	closePrice, err := parseDecimal("close", kline.Close)
	if err != nil {
		return nil, err
	}
	volume, err := parseDecimal("volume", kline.Volume)
	if err != nil {
		return nil, err
	}

	return &cex.KlineData{
		TradingPair: pair,
		OpenTime:    time.UnixMilli(kline.OpenTime),
		Open:        open,
		High:        high,
		Low:         low,
		Close:       closePrice,
		Volume:      volume,
		CloseTime:   time.UnixMilli(kline.CloseTime),
	}, nil
}

// GetKlines 获取K线数据
func (c *Client) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	klines, err := c.client.NewKlinesService().
		Symbol(tradingPairToSymbol(pair)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get klines from Binance: %w", err)
	}

	result := make([]*cex.KlineData, 0, len(klines))
	for _, kline := range klines {
		data, err := convertKlineData(kline, pair)
		if err != nil {
			return nil, fmt.Errorf("failed to convert kline: %w", err)
		}
		result = append(result, data)
	}

	// 保证最新的K线在最后
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})

	return result, nil
}

// GetPrice 获取最新成交价
func (c *Client) GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error) {
	symbol := tradingPairToSymbol(pair)

	prices, err := c.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get price from Binance: %w", err)
	}

	for _, p := range prices {
		if p.Symbol == symbol {
			return parseDecimal("price", p.Price)
		}
	}

	return decimal.Zero, fmt.Errorf("no price returned for %s", symbol)
}

// SubmitMarketOrder 提交市价单
func (c *Client) SubmitMarketOrder(ctx context.Context, order cex.MarketOrderRequest) (*cex.Fill, error) {
	if !order.Quantity.IsPositive() {
		return nil, fmt.Errorf("invalid order quantity: %s", order.Quantity.String())
	}

	symbol := tradingPairToSymbol(order.TradingPair)
	step, err := c.quantityStep(ctx, symbol)
	if err != nil {
		return nil, err
	}
	quantity := roundToStep(order.Quantity, step)
	if !quantity.IsPositive() {
		return nil, fmt.Errorf("order quantity %s is below the %s lot size step %s", order.Quantity.String(), symbol, step.String())
	}

	side := binance.SideTypeBuy
	if order.Side == cex.OrderSideSell {
		side = binance.SideTypeSell
	}

	result, err := c.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(quantity.String()).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to place %s order on Binance: %w", strings.ToLower(string(order.Side)), err)
	}

	return convertOrderResponse(result, order)
}

// quantityStep 查询交易对的 LOT_SIZE 步长，交易所未给出时返回 0 表示不调整
func (c *Client) quantityStep(ctx context.Context, symbol string) (decimal.Decimal, error) {
	c.stepsMu.Lock()
	step, ok := c.steps[symbol]
	c.stepsMu.Unlock()
	if ok {
		return step, nil
	}

	info, err := c.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get %s lot size from Binance: %w", symbol, err)
	}

	step = decimal.Zero
	for i := range info.Symbols {
		if info.Symbols[i].Symbol != symbol {
			continue
		}
		if filter := info.Symbols[i].LotSizeFilter(); filter != nil {
			step, err = parseDecimal("step size", filter.StepSize)
			if err != nil {
				return decimal.Zero, err
			}
		}
	}

	c.stepsMu.Lock()
	c.steps[symbol] = step
	c.stepsMu.Unlock()
	return step, nil
}

// roundToStep 把数量向下取整到步长的整数倍
func roundToStep(quantity, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return quantity
	}
	return quantity.Div(step).Floor().Mul(step)
}

// convertOrderResponse 将下单结果转换为成交确认
func convertOrderResponse(result *binance.CreateOrderResponse, order cex.MarketOrderRequest) (*cex.Fill, error) {
	executed, err := parseDecimal("executed quantity", result.ExecutedQuantity)
	if err != nil {
		return nil, err
	}
	if !executed.IsPositive() {
		return nil, fmt.Errorf("order %d not filled: status=%s", result.OrderID, result.Status)
	}

	quote, err := parseDecimal("cumulative quote quantity", result.CummulativeQuoteQuantity)
	if err != nil {
		return nil, err
	}

	// 计价货币手续费计入成交金额，基础货币手续费从买入数量中扣除，其他资产（如BNB）不影响本交易对余额
	commission := decimal.Zero
	baseCommission := decimal.Zero
	for _, f := range result.Fills {
		if f == nil {
			continue
		}
		switch f.CommissionAsset {
		case order.TradingPair.Quote:
			fee, err := parseDecimal("commission", f.Commission)
			if err != nil {
				return nil, err
			}
			commission = commission.Add(fee)
		case order.TradingPair.Base:
			fee, err := parseDecimal("commission", f.Commission)
			if err != nil {
				return nil, err
			}
			baseCommission = baseCommission.Add(fee)
		}
	}

	amount := executed
	var cost decimal.Decimal
	if order.Side == cex.OrderSideBuy {
		cost = quote.Add(commission)
		amount = executed.Sub(baseCommission)
		if !amount.IsPositive() {
			return nil, fmt.Errorf("order %d: base commission %s consumes executed quantity %s", result.OrderID, baseCommission.String(), executed.String())
		}
	} else {
		cost = quote.Sub(commission)
	}

	return &cex.Fill{
		OrderID:        fmt.Sprintf("%d", result.OrderID),
		TradingPair:    order.TradingPair,
		Side:           order.Side,
		Amount:         amount,
		Price:          quote.Div(executed),
		Cost:           cost,
		Commission:     commission,
		BaseCommission: baseCommission,
		Timestamp:      time.UnixMilli(result.TransactTime),
	}, nil
}

// GetAccount 获取账户信息
func (c *Client) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account from Binance: %w", err)
	}

	balances := make([]*cex.AccountBalance, 0, len(account.Balances))
	for _, balance := range account.Balances {
		free, err := parseDecimal("free", balance.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseDecimal("locked", balance.Locked)
		if err != nil {
			return nil, err
		}

		balances = append(balances, &cex.AccountBalance{
			Asset:  balance.Asset,
			Free:   free,
			Locked: locked,
		})
	}

	return balances, nil
}

// Ping 测试连接
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.NewPingService().Do(ctx); err != nil {
		return fmt.Errorf("Binance ping failed: %w", err)
	}
	return nil
}
