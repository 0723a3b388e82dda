package indicators

import "github.com/shopspring/decimal"

// RSIMax avgLoss 为 0 时的 RSI 取值
const RSIMax = 100.0

// RSI 计算最新一根的相对强弱指数
//
// 涨跌幅分别做指数加权平均，alpha = 2/(period+1)，权重按 (1-alpha)^i 归一化，
// 第一根没有前值，涨跌记为 0。
func RSI(prices []decimal.Decimal, period int) (float64, error) {
	if period <= 0 {
		return 0, ErrInvalidPeriod
	}
	if len(prices) < 2 {
		return 0, ErrInsufficientData
	}

	alpha := 2.0 / (float64(period) + 1.0)
	decay := 1.0 - alpha

	var gainSum, lossSum, weightSum float64
	for i := range prices {
		var gain, loss float64
		if i > 0 {
			delta := prices[i].Sub(prices[i-1]).InexactFloat64()
			if delta > 0 {
				gain = delta
			} else if delta < 0 {
				loss = -delta
			}
		}
		gainSum = gain + decay*gainSum
		lossSum = loss + decay*lossSum
		weightSum = 1.0 + decay*weightSum
	}

	avgGain := gainSum / weightSum
	avgLoss := lossSum / weightSum
	if avgLoss == 0 {
		return RSIMax, nil
	}

	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs), nil
}
