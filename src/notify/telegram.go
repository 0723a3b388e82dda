package notify

import (
	"context"
	"fmt"
	"strings"

	"ultratrader/src/engine"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xpwu/go-log/log"
)

// Sender 发送 Telegram 消息，*tgbot.BotAPI 满足该接口
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
}

// StatusFunc 返回 /status 命令的回复内容
type StatusFunc func(ctx context.Context) string

// Config Telegram 通知配置
type Config struct {
	Token       string
	ChatID      int64
	NotifyHolds bool // 观望周期也发送
}

// Telegram 周期报告通知
type Telegram struct {
	sender      Sender
	bot         *tgbot.BotAPI
	chatID      int64
	notifyHolds bool
}

var _ engine.Observer = (*Telegram)(nil)

// NewTelegram 创建通知器，token 或 chat id 为空时返回未启用的通知器
func NewTelegram(config Config) (*Telegram, error) {
	if config.Token == "" || config.ChatID == 0 {
		return &Telegram{}, nil
	}

	bot, err := tgbot.NewBotAPI(config.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	t := NewTelegramWithSender(bot, config.ChatID, config.NotifyHolds)
	t.bot = bot
	return t, nil
}

// NewTelegramWithSender 使用自定义发送器
func NewTelegramWithSender(sender Sender, chatID int64, notifyHolds bool) *Telegram {
	return &Telegram{
		sender:      sender,
		chatID:      chatID,
		notifyHolds: notifyHolds,
	}
}

// Enabled 是否配置了发送通道
func (t *Telegram) Enabled() bool {
	return t != nil && t.sender != nil && t.chatID != 0
}

// Send 发送文本
func (t *Telegram) Send(msg string) error {
	if !t.Enabled() {
		return nil
	}
	if _, err := t.sender.Send(tgbot.NewMessage(t.chatID, msg)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// OnCycle 实现 engine.Observer
func (t *Telegram) OnCycle(ctx context.Context, report *engine.CycleReport) error {
	if !t.Enabled() || !t.shouldNotify(report) {
		return nil
	}
	return t.Send(FormatReport(report))
}

func (t *Telegram) shouldNotify(report *engine.CycleReport) bool {
	switch report.Outcome {
	case engine.OutcomeTraded, engine.OutcomeFailed, engine.OutcomeDrift:
		return true
	case engine.OutcomeHold, engine.OutcomeNoAction:
		return t.notifyHolds
	default:
		return false
	}
}

// FormatReport 周期报告的消息文本
func FormatReport(report *engine.CycleReport) string {
	var b strings.Builder

	switch report.Outcome {
	case engine.OutcomeTraded:
		fmt.Fprintf(&b, "✅ %s %s %s @ %s\n", report.Side, report.Amount.String(), report.Pair.String(), report.Price.String())
		fmt.Fprintf(&b, "cost: %s\n", report.Cost.StringFixed(2))
	case engine.OutcomeDrift:
		fmt.Fprintf(&b, "⚠️ %s reconciliation warning\n%s\n", report.Pair.String(), report.Error)
	case engine.OutcomeFailed:
		fmt.Fprintf(&b, "❗️ %s cycle failed\n%s\n", report.Pair.String(), report.Error)
	default:
		fmt.Fprintf(&b, "⏸ %s %s\n", report.Pair.String(), strings.ToLower(string(report.Outcome)))
		if report.Reason != "" {
			fmt.Fprintf(&b, "%s\n", report.Reason)
		}
	}

	if report.Signal != nil && !report.Signal.IsHold() {
		fmt.Fprintf(&b, "signal: %s (rsi %.2f)\n", report.Signal.Reason, report.Signal.RSI)
	}
	if report.Portfolio != nil {
		fmt.Fprintf(&b, "balance: %s, equity: %s", report.Portfolio.Balance.StringFixed(2), report.Portfolio.Equity.StringFixed(2))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Start 长轮询处理 /status 命令，ctx 取消后退出
func (t *Telegram) Start(ctx context.Context, status StatusFunc) {
	if !t.Enabled() || t.bot == nil || status == nil {
		return
	}

	ctx, logger := log.WithCtx(ctx)
	logger.PushPrefix("Telegram")

	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	u.AllowedUpdates = []string{"message"}

	updates := t.bot.GetUpdatesChan(u)
	go func() {
		defer t.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd := <-updates:
				if upd.Message == nil || upd.Message.Chat == nil || upd.Message.Chat.ID != t.chatID || !upd.Message.IsCommand() {
					continue
				}
				if upd.Message.Command() == "status" {
					if err := t.Send(status(ctx)); err != nil {
						logger.Error("回复 /status 失败", "error", err)
					}
				}
			}
		}
	}()
}
