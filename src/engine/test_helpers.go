package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
)

var TestError = errors.New("test error")

var testPair = cex.TradingPair{Base: "BTC", Quote: "USDT"}

// MockCEXClient 用于测试的交易所mock
type MockCEXClient struct {
	mu sync.Mutex

	Klines     []*cex.KlineData
	KlinesErr  error
	Price      decimal.Decimal
	PriceErr   error
	PricePanic bool
	OrderErr   error
	Balances   []*cex.AccountBalance
	AccountErr error

	// FillFunc 自定义成交回报，默认按 Price 全部成交
	FillFunc func(req cex.MarketOrderRequest) *cex.Fill

	// Block 非空时下单会先通知 Entered 再等待 Block 关闭
	Block   chan struct{}
	Entered chan struct{}

	Orders       []cex.MarketOrderRequest
	OrderCtxErrs []error
	CallCount    int
}

func (m *MockCEXClient) GetName() string {
	return "mock_cex"
}

func (m *MockCEXClient) GetKlines(ctx context.Context, pair cex.TradingPair, interval string, limit int) ([]*cex.KlineData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.KlinesErr != nil {
		return nil, m.KlinesErr
	}
	return m.Klines, nil
}

func (m *MockCEXClient) GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.PricePanic {
		panic("price feed crashed")
	}
	if m.PriceErr != nil {
		return decimal.Zero, m.PriceErr
	}
	return m.Price, nil
}

func (m *MockCEXClient) SubmitMarketOrder(ctx context.Context, req cex.MarketOrderRequest) (*cex.Fill, error) {
	if m.Block != nil {
		if m.Entered != nil {
			m.Entered <- struct{}{}
		}
		<-m.Block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	m.Orders = append(m.Orders, req)
	m.OrderCtxErrs = append(m.OrderCtxErrs, ctx.Err())
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	if m.FillFunc != nil {
		return m.FillFunc(req), nil
	}
	return &cex.Fill{
		OrderID:     "mock-1",
		TradingPair: req.TradingPair,
		Side:        req.Side,
		Amount:      req.Quantity,
		Price:       m.Price,
		Cost:        req.Quantity.Mul(m.Price),
		Timestamp:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (m *MockCEXClient) GetAccount(ctx context.Context) ([]*cex.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.AccountErr != nil {
		return nil, m.AccountErr
	}
	return m.Balances, nil
}

func (m *MockCEXClient) Ping(ctx context.Context) error {
	return nil
}

// OrderCount 已提交订单数
func (m *MockCEXClient) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Orders)
}

// stubStrategy 返回固定信号
type stubStrategy struct {
	signal   *strategy.Signal
	required int
	panics   bool
}

func (s *stubStrategy) GetName() string { return "StubStrategy" }

func (s *stubStrategy) RequiredCandles() int { return s.required }

func (s *stubStrategy) GenerateSignal(klines []*cex.KlineData) *strategy.Signal {
	if s.panics {
		panic("strategy exploded")
	}
	return s.signal
}

// CreateTestKlines 按收盘价序列构造K线，时间升序
func CreateTestKlines(startTime time.Time, interval time.Duration, closes ...float64) []*cex.KlineData {
	klines := make([]*cex.KlineData, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		klines[i] = &cex.KlineData{
			TradingPair: testPair,
			OpenTime:    startTime.Add(time.Duration(i) * interval),
			CloseTime:   startTime.Add(time.Duration(i+1) * interval),
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      decimal.NewFromInt(1000),
		}
	}
	return klines
}

// flatCloses 生成 n 根相同收盘价
func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}
