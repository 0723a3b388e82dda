package engine

import (
	"fmt"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/ledger"
	"ultratrader/src/strategy"

	"github.com/shopspring/decimal"
)

// Outcome 周期结果
type Outcome string

const (
	OutcomeTraded   Outcome = "TRADED"    // 下单成交并入账
	OutcomeHold     Outcome = "HOLD"      // 观望信号
	OutcomeNoAction Outcome = "NO_ACTION" // 有信号但数量为0
	OutcomeFailed   Outcome = "FAILED"    // 行情或下单失败
	OutcomeDrift    Outcome = "DRIFT"     // 成交无法入账，已尝试对账
	OutcomeSkipped  Outcome = "SKIPPED"   // 上一周期仍在进行
)

// CycleReport 周期报告，引擎对外报告状态的唯一渠道
type CycleReport struct {
	Seq        uint64              `json:"seq"`
	Pair       cex.TradingPair     `json:"pair"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Outcome    Outcome             `json:"outcome"`
	Signal     *strategy.Signal    `json:"signal,omitempty"`
	Side       cex.OrderSide       `json:"side,omitempty"`
	Amount     decimal.Decimal     `json:"amount"`
	Price      decimal.Decimal     `json:"price"`
	Cost       decimal.Decimal     `json:"cost"`
	Trade      *ledger.TradeRecord `json:"trade,omitempty"`
	Portfolio  *ledger.Portfolio   `json:"portfolio,omitempty"`
	Reason     string              `json:"reason,omitempty"`
	Err        error               `json:"-"`
	Error      string              `json:"error,omitempty"`

	// fill 交易所已确认的成交，非空时周期中断也必须对账
	fill *cex.Fill
}

// Traded 是否产生了成交
func (r *CycleReport) Traded() bool {
	return r.Outcome == OutcomeTraded
}

// IsWarning 是否需要关注
func (r *CycleReport) IsWarning() bool {
	return r.Outcome == OutcomeFailed || r.Outcome == OutcomeDrift
}

// Duration 周期耗时
func (r *CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// String 返回可读描述
func (r *CycleReport) String() string {
	prefix := fmt.Sprintf("cycle #%d %s", r.Seq, r.Pair.String())

	switch r.Outcome {
	case OutcomeTraded:
		s := fmt.Sprintf("%s: %s %s @ %s, cost %s", prefix, r.Side, r.Amount.String(), r.Price.String(), r.Cost.StringFixed(2))
		if r.Portfolio != nil {
			s += fmt.Sprintf(", balance %s, equity %s", r.Portfolio.Balance.StringFixed(2), r.Portfolio.Equity.StringFixed(2))
		}
		return s
	case OutcomeHold:
		if r.Signal != nil && r.Signal.Reason != "" {
			return fmt.Sprintf("%s: hold, %s", prefix, r.Signal.Reason)
		}
		return prefix + ": hold"
	case OutcomeNoAction:
		return fmt.Sprintf("%s: no action, %s", prefix, r.Reason)
	case OutcomeFailed:
		return fmt.Sprintf("%s: failed, %s", prefix, r.Error)
	case OutcomeDrift:
		return fmt.Sprintf("%s: reconciliation warning, %s", prefix, r.Error)
	case OutcomeSkipped:
		return prefix + ": skipped, previous cycle still in progress"
	default:
		return fmt.Sprintf("%s: %s", prefix, r.Outcome)
	}
}

func (r *CycleReport) finish(outcome Outcome, reason string, err error, now time.Time) {
	r.Outcome = outcome
	r.Reason = reason
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = now
}
