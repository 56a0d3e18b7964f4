// Package altdata provides read-only access to the alternative-data store.
// Signal producers query rows by source and transaction-date window; the
// ingestion side of this store is owned by a separate system.
package altdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// dateLayout is the transaction_date column format.
const dateLayout = "2006-01-02"

// Repository reads alternative-data rows from altdata.db.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new alternative-data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetRows returns all rows for one source whose transaction date falls in
// [from, to], ordered oldest first. An empty result is a normal condition,
// not an error.
func (r *Repository) GetRows(ctx context.Context, source string, from, to time.Time) ([]domain.AltDataRow, error) {
	query := `
		SELECT instrument_id, trader_identity, transaction_type, transaction_date, trade_size, source
		FROM alt_data_rows
		WHERE source = ? AND transaction_date >= ? AND transaction_date <= ?
		ORDER BY transaction_date ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, source, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query alt data rows for %s: %w", source, err)
	}
	defer rows.Close()

	var result []domain.AltDataRow
	for rows.Next() {
		var row domain.AltDataRow
		var size string
		if err := rows.Scan(&row.InstrumentID, &row.TraderIdentity, &row.TransactionType, &row.TransactionDate, &size, &row.Source); err != nil {
			return nil, fmt.Errorf("failed to scan alt data row: %w", err)
		}

		row.TradeSize, err = decimal.NewFromString(size)
		if err != nil {
			return nil, fmt.Errorf("invalid trade_size %q for %s: %w", size, row.InstrumentID, err)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alt data rows: %w", err)
	}

	return result, nil
}
