package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/engine"
	"ultratrader/src/ledger"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresDB PostgreSQL数据库连接
type PostgresDB struct {
	db *sql.DB
}

// CycleRecord 周期报告记录
type CycleRecord struct {
	ID         int64           `json:"id"`
	Seq        int64           `json:"seq"`
	Symbol     string          `json:"symbol"`
	Outcome    string          `json:"outcome"`
	Signal     string          `json:"signal"`
	RSI        float64         `json:"rsi"`
	Side       string          `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	Cost       decimal.Decimal `json:"cost"`
	Balance    decimal.Decimal `json:"balance"`
	Equity     decimal.Decimal `json:"equity"`
	Holdings   []string        `json:"holdings"`
	Reason     string          `json:"reason"`
	Error      string          `json:"error"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id          BIGSERIAL PRIMARY KEY,
	order_id    TEXT NOT NULL DEFAULT '',
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	amount      NUMERIC(36, 18) NOT NULL,
	price       NUMERIC(36, 18) NOT NULL,
	value       NUMERIC(36, 18) NOT NULL,
	cost        NUMERIC(36, 18) NOT NULL,
	executed_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_executed_at ON trades (symbol, executed_at);
CREATE TABLE IF NOT EXISTS cycle_reports (
	id          BIGSERIAL PRIMARY KEY,
	seq         BIGINT NOT NULL,
	symbol      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	signal      TEXT NOT NULL DEFAULT '',
	rsi         DOUBLE PRECISION NOT NULL DEFAULT 0,
	side        TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(36, 18) NOT NULL DEFAULT 0,
	price       NUMERIC(36, 18) NOT NULL DEFAULT 0,
	cost        NUMERIC(36, 18) NOT NULL DEFAULT 0,
	balance     NUMERIC(36, 18) NOT NULL DEFAULT 0,
	equity      NUMERIC(36, 18) NOT NULL DEFAULT 0,
	holdings    TEXT[] NOT NULL DEFAULT '{}',
	reason      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);`

// NewPostgresDB 创建PostgreSQL数据库连接
func NewPostgresDB(config DatabaseConfig) (*PostgresDB, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试连接
	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 设置连接池参数
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresDB{db: db}, nil
}

// NewPostgresDBFromConn 使用已有连接，便于测试
func NewPostgresDBFromConn(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

// Close 关闭数据库连接
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// EnsureSchema 建表
func (p *PostgresDB) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveTrade 保存成交记录
func (p *PostgresDB) SaveTrade(ctx context.Context, trade *ledger.TradeRecord) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trades (order_id, symbol, side, amount, price, value, cost, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.OrderID, trade.Symbol, string(trade.Side),
		trade.Amount, trade.Price, trade.Value, trade.Cost, trade.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// SaveCycleReport 保存周期报告
func (p *PostgresDB) SaveCycleReport(ctx context.Context, report *engine.CycleReport) error {
	record := toCycleRecord(report)

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO cycle_reports (seq, symbol, outcome, signal, rsi, side, amount, price, cost,
			balance, equity, holdings, reason, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		record.Seq, record.Symbol, record.Outcome, record.Signal, record.RSI, record.Side,
		record.Amount, record.Price, record.Cost, record.Balance, record.Equity,
		pq.Array(record.Holdings), record.Reason, record.Error, record.StartedAt, record.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to save cycle report: %w", err)
	}
	return nil
}

func toCycleRecord(report *engine.CycleReport) *CycleRecord {
	record := &CycleRecord{
		Seq:        int64(report.Seq),
		Symbol:     report.Pair.String(),
		Outcome:    string(report.Outcome),
		Side:       string(report.Side),
		Amount:     report.Amount,
		Price:      report.Price,
		Cost:       report.Cost,
		Holdings:   []string{},
		Reason:     report.Reason,
		Error:      report.Error,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if report.Signal != nil {
		record.Signal = string(report.Signal.Type)
		record.RSI = report.Signal.RSI
	}
	if report.Portfolio != nil {
		record.Balance = report.Portfolio.Balance
		record.Equity = report.Portfolio.Equity
		record.Holdings = report.Portfolio.Symbols()
	}
	return record
}

// GetTrades 查询最近的成交记录，按时间升序；symbol 为空时查询全部
func (p *PostgresDB) GetTrades(ctx context.Context, symbol string, limit int) ([]*ledger.TradeRecord, error) {
	query := `
		SELECT order_id, symbol, side, amount, price, value, cost, executed_at FROM (
			SELECT id, order_id, symbol, side, amount, price, value, cost, executed_at
			FROM trades
			WHERE ($1 = '' OR symbol = $1)
			ORDER BY executed_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY executed_at ASC, id ASC`

	rows, err := p.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*ledger.TradeRecord
	for rows.Next() {
		var (
			trade                      ledger.TradeRecord
			side                       string
			amount, price, value, cost string
		)
		err := rows.Scan(&trade.OrderID, &trade.Symbol, &side, &amount, &price, &value, &cost, &trade.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		trade.Side = ledgerSide(side)
		if trade.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
		}
		if trade.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", price, err)
		}
		if trade.Value, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("invalid value %q: %w", value, err)
		}
		if trade.Cost, err = decimal.NewFromString(cost); err != nil {
			return nil, fmt.Errorf("invalid cost %q: %w", cost, err)
		}
		trades = append(trades, &trade)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

// CountCycles 按结果统计周期数
func (p *PostgresDB) CountCycles(ctx context.Context, symbol string) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM cycle_reports WHERE symbol = $1 GROUP BY outcome`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to count cycles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan cycle count: %w", err)
		}
		counts[outcome] = count
	}
	return counts, rows.Err()
}

// ledgerSide 数据库中的方向字符串
func ledgerSide(side string) cex.OrderSide {
	if side == string(cex.OrderSideSell) {
		return cex.OrderSideSell
	}
	return cex.OrderSideBuy
}
