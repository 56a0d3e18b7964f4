package sizing

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ExclusionList tracks instruments that must not be sized, persisted so
// a block survives restarts. The canonical case is a missing current
// price: sizing with a stale or guessed price risks real money, so the
// instrument is parked until the block expires and the data has a chance
// to heal.
type ExclusionList struct {
	db  *sql.DB
	ttl time.Duration
	log zerolog.Logger
}

// BlockedInstrument is one active entry on the exclusion list.
type BlockedInstrument struct {
	InstrumentID string
	Reason       string
	BlockedAt    time.Time
	ExpiresAt    time.Time
}

// NewExclusionList creates an exclusion list over the cache database.
func NewExclusionList(db *sql.DB, ttl time.Duration, log zerolog.Logger) *ExclusionList {
	return &ExclusionList{
		db:  db,
		ttl: ttl,
		log: log.With().Str("module", "exclusion_list").Logger(),
	}
}

// Block adds or refreshes a block for an instrument. Re-blocking resets
// the expiry clock.
func (e *ExclusionList) Block(instrumentID, reason string) error {
	now := time.Now()
	_, err := e.db.Exec(`
		INSERT INTO price_blocks (symbol, reason, blocked_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			reason = excluded.reason,
			blocked_at = excluded.blocked_at,
			expires_at = excluded.expires_at`,
		instrumentID, reason, now.Unix(), now.Add(e.ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to block instrument %s: %w", instrumentID, err)
	}
	e.log.Warn().
		Str("instrument", instrumentID).
		Str("reason", reason).
		Dur("ttl", e.ttl).
		Msg("Instrument blocked from sizing")
	return nil
}

// IsBlocked reports whether an instrument has an unexpired block.
func (e *ExclusionList) IsBlocked(instrumentID string) (bool, error) {
	var expiresAt int64
	err := e.db.QueryRow(
		`SELECT expires_at FROM price_blocks WHERE symbol = ?`,
		instrumentID,
	).Scan(&expiresAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check block for %s: %w", instrumentID, err)
	}
	return time.Now().Unix() < expiresAt, nil
}

// Active returns all unexpired blocks, for reporting.
func (e *ExclusionList) Active() ([]BlockedInstrument, error) {
	rows, err := e.db.Query(
		`SELECT symbol, reason, blocked_at, expires_at
		 FROM price_blocks WHERE expires_at > ? ORDER BY symbol`,
		time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list active blocks: %w", err)
	}
	defer rows.Close()

	var blocked []BlockedInstrument
	for rows.Next() {
		var b BlockedInstrument
		var blockedAt, expiresAt int64
		if err := rows.Scan(&b.InstrumentID, &b.Reason, &blockedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan block row: %w", err)
		}
		b.BlockedAt = time.Unix(blockedAt, 0)
		b.ExpiresAt = time.Unix(expiresAt, 0)
		blocked = append(blocked, b)
	}
	return blocked, rows.Err()
}

// CleanupExpired deletes expired blocks and returns how many were removed.
func (e *ExclusionList) CleanupExpired() (int64, error) {
	result, err := e.db.Exec(
		`DELETE FROM price_blocks WHERE expires_at <= ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired blocks: %w", err)
	}
	removed, _ := result.RowsAffected()
	if removed > 0 {
		e.log.Debug().Int64("removed", removed).Msg("Cleaned up expired blocks")
	}
	return removed, nil
}
