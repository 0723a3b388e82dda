package timeframes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframe_GetDuration(t *testing.T) {
	tests := []struct {
		timeframe Timeframe
		expected  time.Duration
		wantErr   bool
	}{
		{Timeframe1m, time.Minute, false},
		{Timeframe15m, 15 * time.Minute, false},
		{Timeframe1h, time.Hour, false},
		{Timeframe12h, 12 * time.Hour, false},
		{Timeframe1d, 24 * time.Hour, false},
		{Timeframe1w, 7 * 24 * time.Hour, false},
		{Timeframe1M, 30 * 24 * time.Hour, false},
		{Timeframe("7m"), 0, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.timeframe), func(t *testing.T) {
			result, err := tt.timeframe.GetDuration()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Zero(t, result)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTimeframe_Window(t *testing.T) {
	window, err := Timeframe1h.Window(100)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Hour, window)

	window, err = Timeframe4h.Window(0)
	require.NoError(t, err)
	assert.Zero(t, window)

	_, err = Timeframe1h.Window(-1)
	assert.Error(t, err)

	_, err = Timeframe("bad").Window(10)
	assert.Error(t, err)
}

func TestGetAllTimeframes(t *testing.T) {
	all := GetAllTimeframes()
	require.Len(t, all, 15)
	assert.Equal(t, Timeframe1m, all[0])
	assert.Equal(t, Timeframe1M, all[len(all)-1])

	// 从短到长排列
	prev := time.Duration(0)
	for _, tf := range all {
		assert.True(t, tf.IsValid())
		d, err := tf.GetDuration()
		require.NoError(t, err)
		assert.Greater(t, d, prev, tf.String())
		prev = d
	}
}

func TestParseTimeframe(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Timeframe
		wantErr  bool
	}{
		{"minute", "1m", Timeframe1m, false},
		{"hour", "1h", Timeframe1h, false},
		{"month", "1M", Timeframe1M, false},
		{"surrounding spaces", " 4h ", Timeframe4h, false},
		{"upper case hour", "1H", "", true},
		{"empty", "", "", true},
		{"unsupported", "2s", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseTimeframe(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, Timeframe(""), result)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTimeframe_GetBinanceInterval(t *testing.T) {
	for _, tf := range GetAllTimeframes() {
		assert.Equal(t, tf.String(), tf.GetBinanceInterval())
	}
}

func BenchmarkTimeframe_IsValid(b *testing.B) {
	timeframes := []Timeframe{Timeframe1m, Timeframe1h, Timeframe1M, Timeframe("invalid")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, tf := range timeframes {
			tf.IsValid()
		}
	}
}
