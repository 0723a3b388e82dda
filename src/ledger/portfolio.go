package ledger

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"ultratrader/src/cex"

	"github.com/shopspring/decimal"
)

// Portfolio 账户状态快照，读取方拿到的是副本
type Portfolio struct {
	Balance   decimal.Decimal            `json:"balance"`   // 计价货币现金
	Positions map[string]decimal.Decimal `json:"positions"` // symbol -> 持仓数量，均为正
	Prices    map[string]decimal.Decimal `json:"prices"`    // 计算权益时使用的价格
	Equity    decimal.Decimal            `json:"equity"`    // balance + Σ(持仓 × 价格)
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Position 获取持仓数量，未持有返回0
func (p *Portfolio) Position(symbol string) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	if amount, ok := p.Positions[symbol]; ok {
		return amount
	}
	return decimal.Zero
}

// Symbols 按字母序返回持仓的交易对
func (p *Portfolio) Symbols() []string {
	symbols := make([]string, 0, len(p.Positions))
	for symbol := range p.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// String 返回可读描述
func (p *Portfolio) String() string {
	if p == nil {
		return "portfolio: <nil>"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "balance=%s equity=%s", p.Balance.StringFixed(2), p.Equity.StringFixed(2))
	for _, symbol := range p.Symbols() {
		fmt.Fprintf(&sb, " %s=%s", symbol, p.Positions[symbol].String())
	}
	return sb.String()
}

func (p *Portfolio) clone() *Portfolio {
	out := &Portfolio{
		Balance:   p.Balance,
		Positions: make(map[string]decimal.Decimal, len(p.Positions)),
		Prices:    make(map[string]decimal.Decimal, len(p.Prices)),
		Equity:    p.Equity,
		UpdatedAt: p.UpdatedAt,
	}
	for k, v := range p.Positions {
		out.Positions[k] = v
	}
	for k, v := range p.Prices {
		out.Prices[k] = v
	}
	return out
}

// TradeRecord 成交记录，追加后不可修改
type TradeRecord struct {
	Timestamp time.Time       `json:"timestamp"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      cex.OrderSide   `json:"side"`
	Amount    decimal.Decimal `json:"amount"` // 成交数量
	Price     decimal.Decimal `json:"price"`  // 成交均价
	Value     decimal.Decimal `json:"value"`  // 名义价值 amount × price
	Cost      decimal.Decimal `json:"cost"`   // 实际计入余额的金额（含手续费）
}

// String 返回可读描述
func (r TradeRecord) String() string {
	return fmt.Sprintf("%s %s %s %s @ %s (value %s)",
		r.Timestamp.UTC().Format(time.RFC3339), r.Side, r.Amount.String(), r.Symbol,
		r.Price.String(), r.Value.StringFixed(2))
}
