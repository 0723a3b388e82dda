package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ultratrader/src/cex"
	"ultratrader/src/engine"
	"ultratrader/src/ledger"
	"ultratrader/src/strategy"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var executedAt = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func testTrade() *ledger.TradeRecord {
	return &ledger.TradeRecord{
		Timestamp: executedAt,
		OrderID:   "12345",
		Symbol:    "BTC/USDT",
		Side:      cex.OrderSideBuy,
		Amount:    decimal.NewFromInt(4),
		Price:     decimal.NewFromInt(100),
		Value:     decimal.NewFromInt(400),
		Cost:      decimal.NewFromFloat(400.4),
	}
}

func testReport() *engine.CycleReport {
	signal := strategy.Buy(decimal.NewFromInt(100), decimal.NewFromFloat(0.01), "oversold")
	signal.RSI = 25
	return &engine.CycleReport{
		Seq:        7,
		Pair:       cex.TradingPair{Base: "BTC", Quote: "USDT"},
		StartedAt:  executedAt,
		FinishedAt: executedAt.Add(time.Second),
		Outcome:    engine.OutcomeTraded,
		Signal:     signal,
		Side:       cex.OrderSideBuy,
		Amount:     decimal.NewFromInt(4),
		Price:      decimal.NewFromInt(100),
		Cost:       decimal.NewFromFloat(400.4),
		Trade:      testTrade(),
		Portfolio: &ledger.Portfolio{
			Balance:   decimal.NewFromFloat(599.6),
			Positions: map[string]decimal.Decimal{"BTC/USDT": decimal.NewFromInt(4)},
			Equity:    decimal.NewFromFloat(999.6),
		},
		Reason: "oversold",
	}
}

func newMockDB(t *testing.T) (*PostgresDB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresDBFromConn(db), mock
}

func TestPostgresDB_EnsureSchema(t *testing.T) {
	postgresDB, mock := newMockDB(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trades").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, postgresDB.EnsureSchema(context.Background()))

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trades").WillReturnError(sql.ErrConnDone)
	err := postgresDB.EnsureSchema(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDB_SaveTrade(t *testing.T) {
	postgresDB, mock := newMockDB(t)
	trade := testTrade()

	t.Run("successful save", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO trades").
			WithArgs("12345", "BTC/USDT", "BUY", trade.Amount, trade.Price, trade.Value, trade.Cost, executedAt).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, postgresDB.SaveTrade(context.Background(), trade))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO trades").WillReturnError(sql.ErrConnDone)

		err := postgresDB.SaveTrade(context.Background(), trade)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save trade")
	})
}

func TestPostgresDB_SaveCycleReport(t *testing.T) {
	postgresDB, mock := newMockDB(t)
	report := testReport()

	mock.ExpectExec("INSERT INTO cycle_reports").
		WithArgs(int64(7), "BTC/USDT", "TRADED", "BUY", 25.0, "BUY",
			report.Amount, report.Price, report.Cost,
			report.Portfolio.Balance, report.Portfolio.Equity,
			sqlmock.AnyArg(), "oversold", "", executedAt, executedAt.Add(time.Second)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, postgresDB.SaveCycleReport(context.Background(), report))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToCycleRecord(t *testing.T) {
	record := toCycleRecord(testReport())
	assert.Equal(t, []string{"BTC/USDT"}, record.Holdings)
	assert.Equal(t, "BUY", record.Signal)

	failed := &engine.CycleReport{
		Seq:     1,
		Pair:    cex.TradingPair{Base: "ETH", Quote: "USDT"},
		Outcome: engine.OutcomeFailed,
		Error:   "market data unavailable",
	}
	record = toCycleRecord(failed)
	assert.Equal(t, "", record.Signal)
	assert.Empty(t, record.Holdings)
	assert.True(t, record.Balance.IsZero())
	assert.Equal(t, "market data unavailable", record.Error)
}

func TestPostgresDB_GetTrades(t *testing.T) {
	postgresDB, mock := newMockDB(t)
	columns := []string{"order_id", "symbol", "side", "amount", "price", "value", "cost", "executed_at"}

	t.Run("successful get", func(t *testing.T) {
		rows := sqlmock.NewRows(columns).
			AddRow("1", "BTC/USDT", "BUY", "4.000000000000000000", "100.0", "400.0", "400.4", executedAt).
			AddRow("2", "BTC/USDT", "SELL", "4", "110", "440", "439.56", executedAt.Add(time.Hour))

		mock.ExpectQuery("SELECT (.+) FROM trades").
			WithArgs("BTC/USDT", 10).
			WillReturnRows(rows)

		trades, err := postgresDB.GetTrades(context.Background(), "BTC/USDT", 10)
		require.NoError(t, err)
		require.Len(t, trades, 2)
		assert.Equal(t, cex.OrderSideBuy, trades[0].Side)
		assert.Equal(t, cex.OrderSideSell, trades[1].Side)
		assert.True(t, trades[0].Amount.Equal(decimal.NewFromInt(4)))
		assert.True(t, trades[1].Cost.Equal(decimal.RequireFromString("439.56")))
		assert.Equal(t, executedAt, trades[0].Timestamp)
	})

	t.Run("no data found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM trades").
			WithArgs("", 5).
			WillReturnRows(sqlmock.NewRows(columns))

		trades, err := postgresDB.GetTrades(context.Background(), "", 5)
		assert.NoError(t, err)
		assert.Empty(t, trades)
	})

	t.Run("malformed decimal", func(t *testing.T) {
		rows := sqlmock.NewRows(columns).
			AddRow("1", "BTC/USDT", "BUY", "not-a-number", "100", "400", "400", executedAt)
		mock.ExpectQuery("SELECT (.+) FROM trades").WillReturnRows(rows)

		_, err := postgresDB.GetTrades(context.Background(), "BTC/USDT", 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid amount")
	})

	t.Run("query error", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM trades").WillReturnError(sql.ErrConnDone)

		_, err := postgresDB.GetTrades(context.Background(), "BTC/USDT", 10)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to query trades")
	})
}

func TestPostgresDB_CountCycles(t *testing.T) {
	postgresDB, mock := newMockDB(t)

	rows := sqlmock.NewRows([]string{"outcome", "count"}).
		AddRow("HOLD", 12).
		AddRow("TRADED", 2)
	mock.ExpectQuery("SELECT outcome, COUNT\\(\\*\\) FROM cycle_reports").
		WithArgs("BTC/USDT").
		WillReturnRows(rows)

	counts, err := postgresDB.CountCycles(context.Background(), "BTC/USDT")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"HOLD": 12, "TRADED": 2}, counts)
}

func TestPostgresDB_Close(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	postgresDB := NewPostgresDBFromConn(db)
	mock.ExpectClose()

	assert.NoError(t, postgresDB.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// fakeJournal 内存日志
type fakeJournal struct {
	trades  []*ledger.TradeRecord
	reports []*engine.CycleReport
	err     error
}

func (f *fakeJournal) SaveTrade(ctx context.Context, trade *ledger.TradeRecord) error {
	if f.err != nil {
		return f.err
	}
	f.trades = append(f.trades, trade)
	return nil
}

func (f *fakeJournal) SaveCycleReport(ctx context.Context, report *engine.CycleReport) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, report)
	return nil
}

func TestRecorder_OnCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("traded cycle saves trade and report", func(t *testing.T) {
		journal := &fakeJournal{}
		recorder := NewRecorder(journal)

		require.NoError(t, recorder.OnCycle(ctx, testReport()))
		assert.Len(t, journal.trades, 1)
		assert.Len(t, journal.reports, 1)
	})

	t.Run("hold cycle saves report only", func(t *testing.T) {
		journal := &fakeJournal{}
		recorder := NewRecorder(journal)

		report := &engine.CycleReport{Seq: 2, Outcome: engine.OutcomeHold}
		require.NoError(t, recorder.OnCycle(ctx, report))
		assert.Empty(t, journal.trades)
		assert.Len(t, journal.reports, 1)
	})

	t.Run("skipped cycle is ignored", func(t *testing.T) {
		journal := &fakeJournal{}
		recorder := NewRecorder(journal)

		require.NoError(t, recorder.OnCycle(ctx, &engine.CycleReport{Outcome: engine.OutcomeSkipped}))
		assert.Empty(t, journal.reports)
	})

	t.Run("journal error", func(t *testing.T) {
		recorder := NewRecorder(&fakeJournal{err: errors.New("disk full")})

		err := recorder.OnCycle(ctx, testReport())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cycle #7")
	})
}
