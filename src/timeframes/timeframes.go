package timeframes

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe K线周期，取值与币安 interval 一致
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe3m  Timeframe = "3m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe6h  Timeframe = "6h"
	Timeframe8h  Timeframe = "8h"
	Timeframe12h Timeframe = "12h"
	Timeframe1d  Timeframe = "1d"
	Timeframe3d  Timeframe = "3d"
	Timeframe1w  Timeframe = "1w"
	Timeframe1M  Timeframe = "1M" // 按30天计
)

const day = 24 * time.Hour

// durations 按周期从短到长排列
var durations = []struct {
	tf       Timeframe
	duration time.Duration
}{
	{Timeframe1m, time.Minute},
	{Timeframe3m, 3 * time.Minute},
	{Timeframe5m, 5 * time.Minute},
	{Timeframe15m, 15 * time.Minute},
	{Timeframe30m, 30 * time.Minute},
	{Timeframe1h, time.Hour},
	{Timeframe2h, 2 * time.Hour},
	{Timeframe4h, 4 * time.Hour},
	{Timeframe6h, 6 * time.Hour},
	{Timeframe8h, 8 * time.Hour},
	{Timeframe12h, 12 * time.Hour},
	{Timeframe1d, day},
	{Timeframe3d, 3 * day},
	{Timeframe1w, 7 * day},
	{Timeframe1M, 30 * day},
}

// GetDuration 单根K线的时长
func (tf Timeframe) GetDuration() (time.Duration, error) {
	for _, d := range durations {
		if d.tf == tf {
			return d.duration, nil
		}
	}
	return 0, fmt.Errorf("unsupported timeframe: %s", tf)
}

// Window limit 根K线覆盖的时间跨度
func (tf Timeframe) Window(limit int) (time.Duration, error) {
	d, err := tf.GetDuration()
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, fmt.Errorf("limit must not be negative, got %d", limit)
	}
	return time.Duration(limit) * d, nil
}

func (tf Timeframe) String() string {
	return string(tf)
}

// IsValid 是否为支持的周期
func (tf Timeframe) IsValid() bool {
	_, err := tf.GetDuration()
	return err == nil
}

// GetBinanceInterval 交易所K线接口的 interval 参数
func (tf Timeframe) GetBinanceInterval() string {
	return string(tf)
}

// GetAllTimeframes 所有支持的周期，从短到长
func GetAllTimeframes() []Timeframe {
	out := make([]Timeframe, 0, len(durations))
	for _, d := range durations {
		out = append(out, d.tf)
	}
	return out
}

// ParseTimeframe 解析周期字符串，"1M"(月) 与 "1m"(分钟) 区分大小写
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(strings.TrimSpace(s))
	if !tf.IsValid() {
		return "", fmt.Errorf("invalid timeframe: %q, supported: %v", s, GetAllTimeframes())
	}
	return tf, nil
}
