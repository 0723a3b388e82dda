package cexobs

import (
	"context"
	"fmt"

	"ultratrader/src/cex"
	"ultratrader/src/trace"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// observableClient 为交易所客户端增加日志与链路追踪
type observableClient struct {
	client cex.Client
}

var _ cex.Client = (*observableClient)(nil)

// Wrap 包装交易所客户端
func Wrap(client cex.Client) cex.Client {
	return &observableClient{client: client}
}

func (o *observableClient) GetName() string {
	return o.client.GetName()
}

func (o *observableClient) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	ctx, span := trace.StartSpan(ctx, "cex.GetKlines")
	defer span.End()
	span.SetAttributes(trace.String("pair", pair.String()), trace.String("interval", interval))

	ctx, logger := log.WithCtx(ctx)
	logger.Debug("获取K线", "exchange", o.client.GetName(), "pair", pair.String(), "interval", interval, "limit", limit)

	klines, err := o.client.GetKlines(ctx, pair, interval, limit)
	if err != nil {
		trace.RecordError(span, err)
		logger.Error("获取K线失败", "pair", pair.String(), "error", err)
		return nil, err
	}

	logger.Debug("获取K线成功", "pair", pair.String(), "count", len(klines))
	return klines, nil
}

func (o *observableClient) GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error) {
	ctx, span := trace.StartSpan(ctx, "cex.GetPrice")
	defer span.End()
	span.SetAttributes(trace.String("pair", pair.String()))

	ctx, logger := log.WithCtx(ctx)

	price, err := o.client.GetPrice(ctx, pair)
	if err != nil {
		trace.RecordError(span, err)
		logger.Error("获取价格失败", "pair", pair.String(), "error", err)
		return decimal.Zero, err
	}

	logger.Debug("获取价格成功", "pair", pair.String(), "price", price.String())
	return price, nil
}

func (o *observableClient) SubmitMarketOrder(ctx context.Context, order cex.MarketOrderRequest) (*cex.Fill, error) {
	ctx, span := trace.StartSpan(ctx, "cex.SubmitMarketOrder")
	defer span.End()
	span.SetAttributes(
		trace.String("pair", order.TradingPair.String()),
		trace.String("side", string(order.Side)),
		trace.String("quantity", order.Quantity.String()),
	)

	ctx, logger := log.WithCtx(ctx)
	logger.Info(fmt.Sprintf("提交市价单: %s %s %s", order.Side, order.Quantity.String(), order.TradingPair.String()))

	fill, err := o.client.SubmitMarketOrder(ctx, order)
	if err != nil {
		trace.RecordError(span, err)
		logger.Error("市价单提交失败", "pair", order.TradingPair.String(), "side", order.Side, "error", err)
		return nil, err
	}

	logger.Info("市价单已成交", "order_id", fill.OrderID, "amount", fill.Amount.String(),
		"price", fill.Price.String(), "cost", fill.Cost.String())
	return fill, nil
}

func (o *observableClient) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	ctx, span := trace.StartSpan(ctx, "cex.GetAccount")
	defer span.End()

	ctx, logger := log.WithCtx(ctx)

	balances, err := o.client.GetAccount(ctx)
	if err != nil {
		trace.RecordError(span, err)
		logger.Error("获取账户信息失败", "error", err)
		return nil, err
	}
	return balances, nil
}

func (o *observableClient) Ping(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "cex.Ping")
	defer span.End()

	if err := o.client.Ping(ctx); err != nil {
		trace.RecordError(span, err)
		return fmt.Errorf("%s ping failed: %w", o.client.GetName(), err)
	}
	return nil
}
