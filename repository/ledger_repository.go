package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"coinduel/database"
	"coinduel/models"
)

// LedgerRepository implements the service.LedgerRepository interface.
// The ledger is append-only; this type deliberately has no update or delete.
type LedgerRepository struct {
	q queryable
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{q: db.Pool}
}

// newLedgerRepositoryWithTx creates a new ledger repository with a transaction
func newLedgerRepositoryWithTx(tx queryable) *LedgerRepository {
	return &LedgerRepository{q: tx}
}

// Record inserts one immutable ledger entry
func (r *LedgerRepository) Record(ctx context.Context, entry *models.LedgerEntry) error {
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger meta: %w", err)
	}

	query := `
		INSERT INTO ledger_entries (id, user_id, change_amount, kind, room_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err = r.q.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.ChangeAmount,
		entry.Kind,
		entry.RoomID,
		metaJSON,
	).Scan(&entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record ledger entry for user %s: %w", entry.UserID, err)
	}

	return nil
}

// GetByUser returns the most recent ledger entries for a user
func (r *LedgerRepository) GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, user_id, change_amount, kind, room_id, meta, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// GetByRoom returns all ledger entries tied to a room, oldest first
func (r *LedgerRepository) GetByRoom(ctx context.Context, roomID string) ([]*models.LedgerEntry, error) {
	query := `
		SELECT id, user_id, change_amount, kind, room_id, meta, created_at
		FROM ledger_entries
		WHERE room_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries for room %s: %w", roomID, err)
	}
	defer rows.Close()

	return scanLedgerEntries(rows)
}

// SumByUser returns the sum of all ledger deltas for a user. The user's
// cached balance must equal their initial balance plus this sum.
func (r *LedgerRepository) SumByUser(ctx context.Context, userID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(change_amount), 0)
		FROM ledger_entries
		WHERE user_id = $1
	`

	var sum int64
	if err := r.q.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries for user %s: %w", userID, err)
	}

	return sum, nil
}

func scanLedgerEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var metaJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.ChangeAmount,
			&entry.Kind,
			&entry.RoomID,
			&metaJSON,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}

		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &entry.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ledger meta: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}

	return entries, nil
}
