package signals

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/alphaledger/internal/domain"
)

// Mock alternative-data store

type mockStore struct {
	rows map[string][]domain.AltDataRow // keyed by source
	err  error
}

func (m *mockStore) GetRows(ctx context.Context, source string, from, to time.Time) ([]domain.AltDataRow, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[source], nil
}

func row(instrument, trader, txType, size string) domain.AltDataRow {
	return domain.AltDataRow{
		InstrumentID:    instrument,
		TraderIdentity:  trader,
		TransactionType: txType,
		TransactionDate: "2025-06-01",
		TradeSize:       decimal.RequireFromString(size),
	}
}

// Mock reference data service

type mockRefData struct {
	sectors  map[string]string
	revenues map[string]decimal.Decimal
}

func (m *mockRefData) GetSector(ctx context.Context, instrumentID string) (*string, error) {
	if s, ok := m.sectors[instrumentID]; ok {
		return &s, nil
	}
	return nil, nil
}

func (m *mockRefData) GetAnnualRevenue(ctx context.Context, instrumentID string) (*decimal.Decimal, error) {
	if r, ok := m.revenues[instrumentID]; ok {
		return &r, nil
	}
	return nil, nil
}
