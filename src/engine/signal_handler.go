package engine

import (
	"fmt"

	"ultratrader/src/cex"
	"ultratrader/src/ledger"
	"ultratrader/src/risk"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
)

// SignalHandler 信号处理器，把信号换算成市价单
type SignalHandler interface {
	// Size 计算下单数量，返回0表示本周期不下单，reason 说明原因
	Size(signal *strategy.Signal, book *ledger.Ledger) (quantity decimal.Decimal, reason string)
}

// SignalHandlerRegistry 信号处理器注册表
type SignalHandlerRegistry struct {
	handlers map[strategy.SignalType]SignalHandler
}

// NewSignalHandlerRegistry 创建信号处理器注册表
func NewSignalHandlerRegistry() *SignalHandlerRegistry {
	return &SignalHandlerRegistry{
		handlers: make(map[strategy.SignalType]SignalHandler),
	}
}

// RegisterHandler 注册信号处理器
func (r *SignalHandlerRegistry) RegisterHandler(signalType strategy.SignalType, handler SignalHandler) {
	r.handlers[signalType] = handler
}

// Size 按信号类型分派
func (r *SignalHandlerRegistry) Size(signal *strategy.Signal, book *ledger.Ledger) (decimal.Decimal, string, error) {
	handler, exists := r.handlers[signal.Type]
	if !exists {
		return decimal.Zero, "", fmt.Errorf("未知信号类型: %s", signal.Type)
	}

	quantity, reason := handler.Size(signal, book)
	return quantity, reason, nil
}

// BuySignalHandler 买入信号处理器，按风险预算定量
type BuySignalHandler struct {
	sizer     *risk.Sizer
	precision int32
}

// NewBuySignalHandler 创建买入信号处理器
func NewBuySignalHandler(sizer *risk.Sizer, precision int32) *BuySignalHandler {
	return &BuySignalHandler{sizer: sizer, precision: precision}
}

// Size 实现 SignalHandler
func (h *BuySignalHandler) Size(signal *strategy.Signal, book *ledger.Ledger) (decimal.Decimal, string) {
	balance := book.Balance()
	quantity := h.sizer.SizeBuy(balance, signal.Price).Truncate(h.precision)
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Sprintf("buy size is zero (balance %s, entry %s)", balance.String(), signal.Price.String())
	}
	return quantity, ""
}

// SellSignalHandler 卖出信号处理器，数量不超过持仓
type SellSignalHandler struct {
	sizer     *risk.Sizer
	pair      cex.TradingPair
	precision int32
}

// NewSellSignalHandler 创建卖出信号处理器
func NewSellSignalHandler(sizer *risk.Sizer, pair cex.TradingPair, precision int32) *SellSignalHandler {
	return &SellSignalHandler{sizer: sizer, pair: pair, precision: precision}
}

// Size 实现 SignalHandler
func (h *SellSignalHandler) Size(signal *strategy.Signal, book *ledger.Ledger) (decimal.Decimal, string) {
	held := book.Position(h.pair.String())
	if !held.IsPositive() {
		return decimal.Zero, fmt.Sprintf("no %s position to sell", h.pair.String())
	}
	quantity := h.sizer.SizeSell(held, signal.Amount).Truncate(h.precision)
	if !quantity.IsPositive() {
		return decimal.Zero, fmt.Sprintf("sell size is zero (held %s, suggested %s)", held.String(), signal.Amount.String())
	}
	return quantity, ""
}
