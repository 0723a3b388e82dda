package cmd

import (
	"context"
	"fmt"
	"time"

	"ultratrader/src/config"
	"ultratrader/src/trading"

	"github.com/xpwu/go-cmd/arg"
	"github.com/xpwu/go-cmd/cmd"
)

// RegisterPingCmd 注册ping测试命令
func RegisterPingCmd() {
	var verbose bool
	var timeout int
	var overrides Overrides

	cmd.RegisterCmd("ping", "test connectivity to the configured exchange", func(args *arg.Arg) {
		args.Bool(&verbose, "v", "verbose output with detailed information")
		args.Int(&timeout, "timeout", "timeout in seconds (default: 10)")
		args.String(&overrides.Exchange, "cex", "exchange kind: paper or binance, default from config")
		args.Parse()

		// 设置默认超时
		if timeout <= 0 {
			timeout = 10
		}

		if err := runPingTest(config.AppConfig, overrides, verbose, timeout); err != nil {
			fmt.Printf("❌ Ping test failed: %v\n", err)
			return
		}
		fmt.Println("✅ Ping test successful!")
	})
}

// runPingTest 执行ping测试
func runPingTest(cfg *config.Config, overrides Overrides, verbose bool, timeoutSeconds int) error {
	if overrides.Exchange != "" {
		cfg.Exchange.Kind = overrides.Exchange
	}
	client, err := trading.NewClient(cfg)
	if err != nil {
		return err
	}

	if verbose {
		fmt.Println(titleStyle.Render("交易所连通性测试"))
		fmt.Printf("📡 交易所: %s (%s)\n", client.GetName(), cfg.Exchange.Binance.BaseURL)
		fmt.Printf("⏰ 超时时间: %d秒\n", timeoutSeconds)
		fmt.Print("🔄 正在测试连接...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	startTime := time.Now()
	err = client.Ping(ctx)
	latency := time.Since(startTime)

	if err != nil {
		if verbose {
			fmt.Printf("\n❌ 连接失败: %v\n", err)
			fmt.Printf("⏱️ 测试耗时: %v\n", latency)
		}
		return err
	}

	if verbose {
		fmt.Println(" 完成!")
		fmt.Printf("⏱️ 响应延迟: %v\n", latency)
		fmt.Printf("🌍 网络质量: %s\n", latencyQuality(latency))
	}
	return nil
}

// latencyQuality 网络质量分级
func latencyQuality(latency time.Duration) string {
	switch {
	case latency < 100*time.Millisecond:
		return "优秀"
	case latency < 300*time.Millisecond:
		return "良好"
	case latency < time.Second:
		return "一般"
	default:
		return "较差"
	}
}
