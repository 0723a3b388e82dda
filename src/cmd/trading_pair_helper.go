package cmd

import (
	"fmt"
	"strings"

	"ultratrader/src/config"

	"github.com/xpwu/go-cmd/arg"
)

// Overrides 命令行对配置文件的覆盖，空值表示沿用配置
type Overrides struct {
	Base      string
	Quote     string
	Timeframe string
	Exchange  string
	Interval  int
}

// Apply 把命令行参数写入配置并重新验证
func (o Overrides) Apply(cfg *config.Config) error {
	if o.Base != "" {
		cfg.Trading.BaseAsset = strings.ToUpper(o.Base)
	}
	if o.Quote != "" {
		cfg.Trading.QuoteAsset = strings.ToUpper(o.Quote)
	}
	if o.Timeframe != "" {
		cfg.Trading.Timeframe = o.Timeframe
	}
	if o.Exchange != "" {
		cfg.Exchange.Kind = o.Exchange
	}
	if o.Interval > 0 {
		cfg.Trading.CycleInterval = o.Interval
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// registerOverrideFlags 注册共用的覆盖参数
func registerOverrideFlags(args *arg.Arg, o *Overrides) {
	args.String(&o.Base, "base", "base currency (e.g., BTC, ETH), default from config")
	args.String(&o.Quote, "quote", "quote currency (e.g., USDT), default from config")
	args.String(&o.Timeframe, "t", "timeframe (e.g., 1h, 4h, 1d), default from config")
	args.String(&o.Exchange, "cex", "exchange kind: paper or binance, default from config")
}
