package database

import (
	"context"
	"fmt"

	"ultratrader/src/engine"
	"ultratrader/src/ledger"
)

// Journal 交易日志存储
type Journal interface {
	SaveTrade(ctx context.Context, trade *ledger.TradeRecord) error
	SaveCycleReport(ctx context.Context, report *engine.CycleReport) error
}

// Recorder 把周期报告及其成交写入数据库
type Recorder struct {
	journal Journal
}

var _ engine.Observer = (*Recorder)(nil)

// NewRecorder 创建记录器
func NewRecorder(journal Journal) *Recorder {
	return &Recorder{journal: journal}
}

// OnCycle 实现 engine.Observer，跳过的周期不落库
func (r *Recorder) OnCycle(ctx context.Context, report *engine.CycleReport) error {
	if report.Outcome == engine.OutcomeSkipped {
		return nil
	}

	if report.Trade != nil {
		if err := r.journal.SaveTrade(ctx, report.Trade); err != nil {
			return fmt.Errorf("cycle #%d: %w", report.Seq, err)
		}
	}
	if err := r.journal.SaveCycleReport(ctx, report); err != nil {
		return fmt.Errorf("cycle #%d: %w", report.Seq, err)
	}
	return nil
}
