package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"ultratrader/src/config"
	"ultratrader/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterCycleCmd 注册单周期命令
func RegisterCycleCmd() {
	var overrides Overrides
	var trades int

	cmd.RegisterCmd("cycle", "run a single trading cycle and print the report", func(args *arg.Arg) {
		registerOverrideFlags(args, &overrides)
		args.Int(&trades, "trades", "number of recent trades to print (default: 5)")
		args.Parse()

		if trades <= 0 {
			trades = 5
		}

		if err := runSingleCycle(config.AppConfig, overrides, trades); err != nil {
			fmt.Printf("❌ Cycle failed: %v\n", err)
			os.Exit(1)
		}
	})
}

// runSingleCycle 执行一个周期并打印报告与账户
func runSingleCycle(cfg *config.Config, overrides Overrides, trades int) error {
	if err := overrides.Apply(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	system, err := trading.NewSystem(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create trading system: %w", err)
	}
	defer system.Close(context.Background())

	report := system.RunOnce(ctx)
	fmt.Println(RenderReport(report))
	fmt.Println(RenderPortfolio(report.Portfolio))
	fmt.Println(RenderTrades(system.Ledger().RecentTrades(trades)))

	if report.IsWarning() {
		return fmt.Errorf("%s", report.String())
	}
	return nil
}
