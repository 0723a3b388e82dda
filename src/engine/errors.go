package engine

import "errors"

var (
	// ErrMarketDataUnavailable 行情获取失败或K线不足，本周期跳过
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrOrderSubmissionFailed 交易所拒绝或未能完成订单，账本未改动
	ErrOrderSubmissionFailed = errors.New("order submission failed")

	// ErrReconciliationDrift 已成交订单无法应用到账本，账本与交易所出现偏差
	ErrReconciliationDrift = errors.New("reconciliation drift")

	// ErrCycleInProgress 上一周期尚未结束
	ErrCycleInProgress = errors.New("cycle in progress")
)
