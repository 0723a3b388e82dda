package ledger

import "errors"

var (
	// ErrInsufficientFunds 买入成本超过现金余额
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition 卖出数量超过持仓（含未持有该交易对）
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrInvalidFill 成交回报字段不合法
	ErrInvalidFill = errors.New("invalid fill")

	// ErrInvalidBalance 余额为负或初始余额非正
	ErrInvalidBalance = errors.New("invalid balance")
)
