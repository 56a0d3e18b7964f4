package pipeline

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// SnapshotRepository persists completed pass results to the cache
// database as msgpack blobs. Snapshots are an audit trail and the source
// for the ops API's "latest pass" view; they are never read back into
// the trading path.
type SnapshotRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSnapshotRepository creates a snapshot repository over the cache database.
func NewSnapshotRepository(db *sql.DB, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repository", "pass_snapshots").Logger(),
	}
}

// Save serializes and stores a pass result keyed by its pass ID.
func (r *SnapshotRepository) Save(result *PassResult) error {
	blob, err := msgpack.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to serialize pass snapshot: %w", err)
	}
	_, err = r.db.Exec(
		`INSERT INTO pass_snapshots (pass_id, created_at, snapshot) VALUES (?, ?, ?)`,
		result.ID, result.CompletedAt.Unix(), blob)
	if err != nil {
		return fmt.Errorf("failed to store pass snapshot: %w", err)
	}
	r.log.Debug().Str("pass_id", result.ID).Int("bytes", len(blob)).Msg("Stored pass snapshot")
	return nil
}

// Latest returns the most recently completed pass, or nil when no pass
// has ever run.
func (r *SnapshotRepository) Latest() (*PassResult, error) {
	var blob []byte
	err := r.db.QueryRow(
		`SELECT snapshot FROM pass_snapshots ORDER BY created_at DESC, pass_id DESC LIMIT 1`,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest pass snapshot: %w", err)
	}

	var result PassResult
	if err := msgpack.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize pass snapshot: %w", err)
	}
	return &result, nil
}

// Get returns one pass by ID, or nil when unknown.
func (r *SnapshotRepository) Get(passID string) (*PassResult, error) {
	var blob []byte
	err := r.db.QueryRow(
		`SELECT snapshot FROM pass_snapshots WHERE pass_id = ?`, passID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pass snapshot %s: %w", passID, err)
	}

	var result PassResult
	if err := msgpack.Unmarshal(blob, &result); err != nil {
		return nil, fmt.Errorf("failed to deserialize pass snapshot %s: %w", passID, err)
	}
	return &result, nil
}

// Prune deletes snapshots older than the retention window and returns
// how many were removed.
func (r *SnapshotRepository) Prune(retention time.Duration) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM pass_snapshots WHERE created_at < ?`,
		time.Now().Add(-retention).Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune pass snapshots: %w", err)
	}
	removed, _ := result.RowsAffected()
	if removed > 0 {
		r.log.Debug().Int64("removed", removed).Msg("Pruned old pass snapshots")
	}
	return removed, nil
}
