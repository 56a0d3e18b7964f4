package altdata

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/alphaledger/internal/domain"
)

const testSchema = `
CREATE TABLE alt_data_rows (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	instrument_id TEXT NOT NULL,
	trader_identity TEXT NOT NULL DEFAULT '',
	transaction_type TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	trade_size TEXT NOT NULL DEFAULT '0',
	source TEXT NOT NULL
);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func insertRow(t *testing.T, db *sql.DB, instrument, trader, txType, date, size, source string) {
	_, err := db.Exec(
		"INSERT INTO alt_data_rows (instrument_id, trader_identity, transaction_type, transaction_date, trade_size, source) VALUES (?, ?, ?, ?, ?, ?)",
		instrument, trader, txType, date, size, source,
	)
	require.NoError(t, err)
}

func TestGetRowsFiltersBySourceAndWindow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	insertRow(t, db, "TSLA", "Rep. A", "buy", "2025-06-01", "15000", domain.SourceCongressionalTrades)
	insertRow(t, db, "TSLA", "Rep. B", "buy", "2025-06-15", "50000", domain.SourceCongressionalTrades)
	insertRow(t, db, "KO", "CFO X", "sell", "2025-06-10", "200000", domain.SourceInsiderTrades) // wrong source
	insertRow(t, db, "NVDA", "Rep. C", "buy", "2025-01-05", "10000", domain.SourceCongressionalTrades) // outside window

	repo := NewRepository(db)

	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	rows, err := repo.GetRows(context.Background(), domain.SourceCongressionalTrades, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Ordered oldest first
	assert.Equal(t, "Rep. A", rows[0].TraderIdentity)
	assert.Equal(t, "Rep. B", rows[1].TraderIdentity)
	assert.True(t, rows[1].TradeSize.Equal(decimal.NewFromInt(50000)))
}

func TestGetRowsEmptyResult(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	rows, err := repo.GetRows(context.Background(), domain.SourceLobbying, time.Now().AddDate(0, -1, 0), time.Now())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestGetRowsRejectsMalformedTradeSize(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	insertRow(t, db, "TSLA", "Rep. A", "buy", "2025-06-01", "not-a-number", domain.SourceCongressionalTrades)

	repo := NewRepository(db)

	_, err := repo.GetRows(context.Background(), domain.SourceCongressionalTrades,
		time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
