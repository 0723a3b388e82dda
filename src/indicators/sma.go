package indicators

import "github.com/shopspring/decimal"

// SMA 计算最近 period 个价格的简单移动平均
func SMA(prices []decimal.Decimal, period int) (decimal.Decimal, error) {
	if period <= 0 {
		return decimal.Zero, ErrInvalidPeriod
	}
	if len(prices) < period {
		return decimal.Zero, ErrInsufficientData
	}

	sum := decimal.Zero
	for _, price := range prices[len(prices)-period:] {
		sum = sum.Add(price)
	}
	return sum.Div(decimal.NewFromInt(int64(period))), nil
}
