package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ultratrader/src/cex"
	"ultratrader/src/config"
	"ultratrader/src/engine"
	"ultratrader/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-log/log"
)

// RegisterRunCmd 注册实时交易命令
func RegisterRunCmd() {
	var overrides Overrides
	var quiet bool

	cmd.RegisterCmd("run", "run the trading engine on a fixed interval until interrupted", func(args *arg.Arg) {
		registerOverrideFlags(args, &overrides)
		args.Int(&overrides.Interval, "interval", "cycle interval in seconds, default from config")
		args.Bool(&quiet, "q", "do not print cycle reports to the terminal")
		args.Parse()

		if err := runLive(config.AppConfig, overrides, quiet); err != nil {
			fmt.Printf("❌ Live trading failed: %v\n", err)
			os.Exit(1)
		}
	})
}

// runLive 运行实时交易，SIGINT/SIGTERM 后等待在途周期结束再退出
func runLive(cfg *config.Config, overrides Overrides, quiet bool) error {
	if err := overrides.Apply(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Run")

	system, err := trading.NewSystem(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create trading system: %w", err)
	}
	defer system.Close(context.Background())

	if !quiet {
		system.Engine().AddObserver(engine.ObserverFunc(func(ctx context.Context, report *engine.CycleReport) error {
			fmt.Println(RenderReport(report))
			return nil
		}))
	}

	kind, _ := cfg.ExchangeKind()
	engineConfig := system.Engine().Config()
	window, _ := engineConfig.Timeframe.Window(engineConfig.CandleLimit)
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s %s on %s", engineConfig.TradingPair, engineConfig.Timeframe, kind)))
	fmt.Printf("📊 %d candles per cycle (%s of history), every %s\n", engineConfig.CandleLimit, window, cfg.GetCycleInterval())
	if kind == cex.KindBinance {
		fmt.Println(warningStyle.Render("⚠️  WARNING: live orders use real money"))
	}
	fmt.Println("Press Ctrl+C to stop...")

	if err := system.Run(ctx); err != nil {
		return err
	}

	logger.Info("交易已停止")
	fmt.Println(RenderPortfolio(system.Engine().Portfolio()))
	return nil
}

// RegisterAllTradingCommands 注册所有交易相关命令
func RegisterAllTradingCommands() {
	RegisterRunCmd()
	RegisterCycleCmd()
	RegisterPingCmd()
}
