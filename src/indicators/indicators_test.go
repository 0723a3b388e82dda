package indicators

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prices(values ...float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(values))
	for i, v := range values {
		result[i] = decimal.NewFromFloat(v)
	}
	return result
}

func TestSMA(t *testing.T) {
	t.Run("exact window", func(t *testing.T) {
		sma, err := SMA(prices(100, 102, 98), 3)
		require.NoError(t, err)
		assert.True(t, sma.Equal(decimal.NewFromInt(100)))
	})

	t.Run("uses most recent window", func(t *testing.T) {
		// 只使用最近3个价格
		sma, err := SMA(prices(90, 95, 100, 102, 98), 3)
		require.NoError(t, err)
		assert.True(t, sma.Equal(decimal.NewFromInt(100)))
	})

	t.Run("insufficient data", func(t *testing.T) {
		_, err := SMA(prices(100, 102), 3)
		assert.Equal(t, ErrInsufficientData, err)
	})

	t.Run("invalid period", func(t *testing.T) {
		_, err := SMA(prices(100), 0)
		assert.Equal(t, ErrInvalidPeriod, err)
	})
}

func TestRSI(t *testing.T) {
	tests := []struct {
		name     string
		prices   []decimal.Decimal
		period   int
		expected float64
	}{
		{
			name:     "alternating moves",
			prices:   prices(10, 11, 10, 11),
			period:   3,
			expected: 71.42857142857143,
		},
		{
			name:     "gain then loss",
			prices:   prices(10, 12, 11),
			period:   2,
			expected: 40.0,
		},
		{
			name:     "last move dominates with period 1",
			prices:   prices(1, 2, 1),
			period:   1,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rsi, err := RSI(tt.prices, tt.period)
			require.NoError(t, err)
			assert.InDelta(t, tt.expected, rsi, 1e-9)
		})
	}
}

func TestRSI_NoLosses(t *testing.T) {
	t.Run("strictly rising", func(t *testing.T) {
		rsi, err := RSI(prices(1, 2, 3, 4, 5), 14)
		require.NoError(t, err)
		assert.Equal(t, RSIMax, rsi)
	})

	t.Run("flat prices", func(t *testing.T) {
		rsi, err := RSI(prices(5, 5, 5, 5), 14)
		require.NoError(t, err)
		assert.Equal(t, 100.0, rsi)
		assert.False(t, math.IsNaN(rsi))
	})
}

func TestRSI_Bounds(t *testing.T) {
	series := prices(100, 97, 99, 95, 96, 94, 98, 101, 99, 103, 102, 100, 97, 96, 99, 104)
	rsi, err := RSI(series, 14)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, rsi, 0.0)
	assert.LessOrEqual(t, rsi, 100.0)
}

func TestRSI_Errors(t *testing.T) {
	_, err := RSI(prices(1), 14)
	assert.Equal(t, ErrInsufficientData, err)

	_, err = RSI(prices(1, 2, 3), 0)
	assert.Equal(t, ErrInvalidPeriod, err)
}

func BenchmarkRSI(b *testing.B) {
	series := make([]decimal.Decimal, 100)
	for i := 0; i < 100; i++ {
		series[i] = decimal.NewFromFloat(100 + float64(i%10))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		RSI(series, 14)
	}
}
