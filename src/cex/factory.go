package cex

import (
	"fmt"
	"strings"
)

// Kind 交易所实现类型，由配置显式选择，构造时确定
type Kind string

const (
	KindBinance Kind = "binance" // 币安现货实盘
	KindPaper   Kind = "paper"   // 模拟成交，行情来自真实交易所
)

// SupportedKinds 获取支持的交易所类型
func SupportedKinds() []Kind {
	return []Kind{KindBinance, KindPaper}
}

// ParseKind 解析交易所类型
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, supported := range SupportedKinds() {
		if k == supported {
			return k, nil
		}
	}
	return "", fmt.Errorf("unsupported CEX: %s, supported: %v", s, SupportedKinds())
}

// String 返回字符串表示
func (k Kind) String() string {
	return string(k)
}
