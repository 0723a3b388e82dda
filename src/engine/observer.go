package engine

import "context"

// Observer 周期结束后接收报告，失败只记录日志
type Observer interface {
	OnCycle(ctx context.Context, report *CycleReport) error
}

// ObserverFunc 函数适配器
type ObserverFunc func(ctx context.Context, report *CycleReport) error

// OnCycle 实现 Observer
func (f ObserverFunc) OnCycle(ctx context.Context, report *CycleReport) error {
	return f(ctx, report)
}
