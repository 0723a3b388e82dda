package main

import (
	"context"
	"os"
	"path/filepath"

	tradingcmd "ultratrader/src/cmd"
	"ultratrader/src/config"

	"github.com/xpwu/go-cmd/cmd"
	"github.com/xpwu/go-config/configs"
	"github.com/xpwu/go-log/log"
)

func main() {
	// 设置 JSON 配置格式
	configs.SetConfigurator(&configs.JsonConfig{})

	// 智能查找配置文件
	setupConfigPath()

	// 读取配置文件
	err := configs.ReadWithErr()
	if err != nil {
		// 如果读取失败，生成默认配置文件
		printErr := configs.Print()
		if printErr != nil {
			panic("生成默认配置文件失败: " + printErr.Error())
		}
		panic("请修改 config.json 配置文件后重新运行")
	}

	// 密钥可以放在 .env 或环境变量中，不必写进 config.json
	if err := config.AppConfig.LoadSecrets(".env"); err != nil {
		panic("读取密钥失败: " + err.Error())
	}

	// 验证配置
	if err := config.AppConfig.Validate(); err != nil {
		panic("配置验证失败: " + err.Error())
	}

	_, logger := log.WithCtx(context.Background())
	logger.PushPrefix("UltraTrader")
	logger.Info("交易引擎启动", "exchange", config.AppConfig.Exchange.Kind, "pair", config.AppConfig.TradingPair().String())

	// 注册交易相关命令
	tradingcmd.RegisterAllTradingCommands()

	// 运行命令行程序
	cmd.Run()
}

// setupConfigPath 智能设置配置文件路径
// 优先级: 1. 可执行文件目录下的 config.json 2. 当前目录 config.json 3. 生成默认配置
func setupConfigPath() {
	execPath, err := os.Executable()
	if err != nil {
		return
	}

	execDir := filepath.Dir(execPath)
	binConfigPath := filepath.Join(execDir, "config.json")

	if _, err := os.Stat(binConfigPath); err == nil {
		// 切换工作目录，.env 也从同一目录读取
		os.Chdir(execDir)
		return
	}
}
