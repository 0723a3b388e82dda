package cmd

import (
	"fmt"
	"strings"

	"ultratrader/src/cex"
	"ultratrader/src/engine"
	"ultratrader/src/ledger"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1)

	tradedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	holdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))
)

// outcomeStyle 按周期结果选择颜色
func outcomeStyle(outcome engine.Outcome) lipgloss.Style {
	switch outcome {
	case engine.OutcomeTraded:
		return tradedStyle
	case engine.OutcomeFailed, engine.OutcomeDrift:
		return warningStyle
	default:
		return holdStyle
	}
}

// RenderReport 渲染周期报告
func RenderReport(report *engine.CycleReport) string {
	if report == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Cycle #%d  %s", report.Seq, report.Pair)))
	b.WriteString("\n")
	writeField(&b, "outcome", outcomeStyle(report.Outcome).Render(string(report.Outcome)))
	if report.Signal != nil {
		writeField(&b, "signal", report.Signal.String())
		if report.Signal.RSI > 0 {
			writeField(&b, "rsi", fmt.Sprintf("%.2f", report.Signal.RSI))
			writeField(&b, "ma", report.Signal.MovingAverage.StringFixed(2))
		}
	}
	if report.Traded() {
		writeField(&b, "order", fmt.Sprintf("%s %s @ %s", report.Side, report.Amount.String(), report.Price.String()))
		writeField(&b, "cost", report.Cost.StringFixed(2))
	}
	if report.Reason != "" {
		writeField(&b, "reason", report.Reason)
	}
	if report.Error != "" {
		writeField(&b, "error", warningStyle.Render(report.Error))
	}
	writeField(&b, "took", report.Duration().String())

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderPortfolio 渲染账户快照
func RenderPortfolio(portfolio *ledger.Portfolio) string {
	if portfolio == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Portfolio"))
	b.WriteString("\n")
	writeField(&b, "balance", portfolio.Balance.StringFixed(2))
	for _, symbol := range portfolio.Symbols() {
		value := portfolio.Positions[symbol].String()
		if price, ok := portfolio.Prices[symbol]; ok {
			value += " @ " + price.String()
		}
		writeField(&b, symbol, value)
	}
	writeField(&b, "equity", portfolio.Equity.StringFixed(2))

	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderTrades 渲染最近成交
func RenderTrades(trades []ledger.TradeRecord) string {
	if len(trades) == 0 {
		return holdStyle.Render("no trades yet")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Recent trades"))
	b.WriteString("\n")
	for _, trade := range trades {
		line := trade.String()
		if trade.Side == cex.OrderSideBuy {
			line = tradedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func writeField(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-8s", label)))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}
