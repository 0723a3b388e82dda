package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ultratrader/src/cex"

	"github.com/shopspring/decimal"
	"github.com/xpwu/go-log/log"
)

// dustThreshold 低于该值的持仓视为已清空
var dustThreshold = decimal.New(1, -12)

// PriceSource 权益重估使用的行情来源
type PriceSource interface {
	GetPrice(ctx context.Context, pair cex.TradingPair) (decimal.Decimal, error)
}

// Option 账本可选项
type Option func(*Ledger)

// WithClock 替换时间来源
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Ledger 账户账本，余额与持仓的唯一持有者
//
// 写操作由 writeMu 串行化；状态由 stateMu 保护，读取方只会看到完整应用后的状态。
// 行情查询在 stateMu 之外进行。
type Ledger struct {
	writeMu sync.Mutex
	stateMu sync.RWMutex

	prices PriceSource
	now    func() time.Time

	balance    decimal.Decimal
	positions  map[string]decimal.Decimal
	pairs      map[string]cex.TradingPair
	lastPrices map[string]decimal.Decimal
	equity     decimal.Decimal
	updatedAt  time.Time
	history    []TradeRecord
}

// New 创建账本，初始余额必须为正
func New(initialBalance decimal.Decimal, prices PriceSource, opts ...Option) (*Ledger, error) {
	if !initialBalance.IsPositive() {
		return nil, fmt.Errorf("initial balance must be positive, got %s: %w", initialBalance.String(), ErrInvalidBalance)
	}

	l := &Ledger{
		prices:     prices,
		now:        time.Now,
		balance:    initialBalance,
		positions:  make(map[string]decimal.Decimal),
		pairs:      make(map[string]cex.TradingPair),
		lastPrices: make(map[string]decimal.Decimal),
		equity:     initialBalance,
		history:    make([]TradeRecord, 0),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.updatedAt = l.now()
	return l, nil
}

func validateFill(fill *cex.Fill) error {
	if fill == nil {
		return fmt.Errorf("nil fill: %w", ErrInvalidFill)
	}
	if fill.TradingPair.Base == "" || fill.TradingPair.Quote == "" {
		return fmt.Errorf("fill without trading pair: %w", ErrInvalidFill)
	}
	if fill.Side != cex.OrderSideBuy && fill.Side != cex.OrderSideSell {
		return fmt.Errorf("unknown side %q: %w", fill.Side, ErrInvalidFill)
	}
	if !fill.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s: %w", fill.Amount.String(), ErrInvalidFill)
	}
	if !fill.Price.IsPositive() {
		return fmt.Errorf("price must be positive, got %s: %w", fill.Price.String(), ErrInvalidFill)
	}
	if fill.Cost.IsNegative() {
		return fmt.Errorf("cost must not be negative, got %s: %w", fill.Cost.String(), ErrInvalidFill)
	}
	return nil
}

// ApplyFill 应用一笔成交，全部成功或不做任何修改
//
// 买入要求 balance >= cost，卖出要求持仓 >= amount。成功后重算权益并追加一条成交记录。
func (l *Ledger) ApplyFill(ctx context.Context, fill *cex.Fill) (*Portfolio, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Ledger")

	if err := validateFill(fill); err != nil {
		return nil, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	symbol := fill.TradingPair.String()

	// 写者已串行化，此处检查的状态在提交前不会改变
	l.stateMu.RLock()
	balance := l.balance
	held := l.positions[symbol]
	l.stateMu.RUnlock()

	var newBalance, newAmount decimal.Decimal
	switch fill.Side {
	case cex.OrderSideBuy:
		if balance.LessThan(fill.Cost) {
			logger.Error("余额不足，拒绝成交", "symbol", symbol, "cost", fill.Cost.String(), "balance", balance.String())
			return nil, fmt.Errorf("buy %s cost %s exceeds balance %s: %w",
				symbol, fill.Cost.String(), balance.String(), ErrInsufficientFunds)
		}
		newBalance = balance.Sub(fill.Cost)
		newAmount = held.Add(fill.Amount)
	case cex.OrderSideSell:
		if held.LessThan(fill.Amount) {
			logger.Error("持仓不足，拒绝成交", "symbol", symbol, "amount", fill.Amount.String(), "held", held.String())
			return nil, fmt.Errorf("sell %s amount %s exceeds position %s: %w",
				symbol, fill.Amount.String(), held.String(), ErrInsufficientPosition)
		}
		newBalance = balance.Add(fill.Cost)
		newAmount = held.Sub(fill.Amount)
	}

	// 成交后的持仓集合，用于在加锁前取价
	pairs := l.heldPairs()
	if newAmount.GreaterThan(dustThreshold) {
		pairs[symbol] = fill.TradingPair
	} else {
		delete(pairs, symbol)
	}
	fallback := map[string]decimal.Decimal{symbol: fill.Price}
	prices := l.fetchPrices(ctx, pairs, fallback)

	timestamp := fill.Timestamp
	if timestamp.IsZero() {
		timestamp = l.now()
	}
	record := TradeRecord{
		Timestamp: timestamp,
		OrderID:   fill.OrderID,
		Symbol:    symbol,
		Side:      fill.Side,
		Amount:    fill.Amount,
		Price:     fill.Price,
		Value:     fill.Amount.Mul(fill.Price),
		Cost:      fill.Cost,
	}

	l.stateMu.Lock()
	l.balance = newBalance
	if newAmount.GreaterThan(dustThreshold) {
		l.positions[symbol] = newAmount
		l.pairs[symbol] = fill.TradingPair
	} else {
		delete(l.positions, symbol)
		delete(l.pairs, symbol)
	}
	l.lastPrices[symbol] = fill.Price
	l.commitPricesLocked(prices)
	l.history = append(l.history, record)
	snapshot := l.snapshotLocked()
	l.stateMu.Unlock()

	logger.Info(fmt.Sprintf("成交入账: %s %s %s @ %s, cost=%s, balance=%s, equity=%s",
		fill.Side, fill.Amount.String(), symbol, fill.Price.String(), fill.Cost.String(),
		snapshot.Balance.String(), snapshot.Equity.String()))

	return snapshot, nil
}

// Reconcile 以交易所的成交后余额为准覆盖账本，不产生成交记录
func (l *Ledger) Reconcile(ctx context.Context, balance decimal.Decimal, positions map[cex.TradingPair]decimal.Decimal) (*Portfolio, error) {
	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Ledger")

	if balance.IsNegative() {
		return nil, fmt.Errorf("reconciled balance %s is negative: %w", balance.String(), ErrInvalidBalance)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	pairs := make(map[string]cex.TradingPair, len(positions))
	amounts := make(map[string]decimal.Decimal, len(positions))
	for pair, amount := range positions {
		if amount.GreaterThan(dustThreshold) {
			pairs[pair.String()] = pair
			amounts[pair.String()] = amount
		}
	}
	prices := l.fetchPrices(ctx, pairs, nil)

	l.stateMu.Lock()
	before := l.snapshotLocked()
	l.balance = balance
	l.positions = amounts
	l.pairs = pairs
	l.commitPricesLocked(prices)
	snapshot := l.snapshotLocked()
	l.stateMu.Unlock()

	logger.Info("账本已与交易所对账",
		"balance_before", before.Balance.String(), "balance_after", snapshot.Balance.String(),
		"positions_before", fmt.Sprint(before.Positions), "positions_after", fmt.Sprint(snapshot.Positions))

	return snapshot, nil
}

// Revalue 按最新行情重算权益，供展示层刷新
func (l *Ledger) Revalue(ctx context.Context) *Portfolio {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	prices := l.fetchPrices(ctx, l.heldPairs(), nil)

	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	l.commitPricesLocked(prices)
	return l.snapshotLocked()
}

// Snapshot 获取当前状态副本
func (l *Ledger) Snapshot() *Portfolio {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.snapshotLocked()
}

// Balance 当前现金余额
func (l *Ledger) Balance() decimal.Decimal {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.balance
}

// Position 当前持仓数量，未持有返回0
func (l *Ledger) Position(symbol string) decimal.Decimal {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.positions[symbol]
}

// Equity 最近一次计算的权益
func (l *Ledger) Equity() decimal.Decimal {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	return l.equity
}

// History 全部成交记录，按时间先后
func (l *Ledger) History() []TradeRecord {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	out := make([]TradeRecord, len(l.history))
	copy(out, l.history)
	return out
}

// RecentTrades 最近 n 条成交记录，最新在最后
func (l *Ledger) RecentTrades(n int) []TradeRecord {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	if n <= 0 {
		return []TradeRecord{}
	}
	start := max(len(l.history)-n, 0)
	out := make([]TradeRecord, len(l.history)-start)
	copy(out, l.history[start:])
	return out
}

func (l *Ledger) heldPairs() map[string]cex.TradingPair {
	l.stateMu.RLock()
	defer l.stateMu.RUnlock()
	pairs := make(map[string]cex.TradingPair, len(l.pairs))
	for symbol, pair := range l.pairs {
		pairs[symbol] = pair
	}
	return pairs
}

// fetchPrices 查询失败的交易对不出现在结果中，由最近价格兜底
func (l *Ledger) fetchPrices(ctx context.Context, pairs map[string]cex.TradingPair, fallback map[string]decimal.Decimal) map[string]decimal.Decimal {
	ctx, logger := log.WithCtx(ctx)

	prices := make(map[string]decimal.Decimal, len(pairs))
	for symbol, pair := range pairs {
		if l.prices != nil {
			price, err := l.prices.GetPrice(ctx, pair)
			if err == nil && price.IsPositive() {
				prices[symbol] = price
				continue
			}
			logger.Error("获取价格失败，使用最近价格估值", "symbol", symbol, "error", err)
		}
		if price, ok := fallback[symbol]; ok {
			prices[symbol] = price
		}
	}
	return prices
}

// commitPricesLocked 更新最近价格并重算权益，调用方持有 stateMu 写锁
func (l *Ledger) commitPricesLocked(prices map[string]decimal.Decimal) {
	for symbol, price := range prices {
		if _, ok := l.positions[symbol]; ok {
			l.lastPrices[symbol] = price
		}
	}

	equity := l.balance
	for symbol, amount := range l.positions {
		equity = equity.Add(amount.Mul(l.lastPrices[symbol]))
	}
	l.equity = equity
	l.updatedAt = l.now()
}

func (l *Ledger) snapshotLocked() *Portfolio {
	p := &Portfolio{
		Balance:   l.balance,
		Positions: l.positions,
		Prices:    make(map[string]decimal.Decimal, len(l.positions)),
		Equity:    l.equity,
		UpdatedAt: l.updatedAt,
	}
	for symbol := range l.positions {
		p.Prices[symbol] = l.lastPrices[symbol]
	}
	return p.clone()
}
