package repository

import (
	"context"
	"fmt"
	"time"

	"coinduel/database"
	"coinduel/models"
	"github.com/jackc/pgx/v5"
)

// RoomRepository implements the service.RoomRepository interface
type RoomRepository struct {
	q queryable
}

// NewRoomRepository creates a new room repository
func NewRoomRepository(db *database.DB) *RoomRepository {
	return &RoomRepository{q: db.Pool}
}

// newRoomRepositoryWithTx creates a new room repository with a transaction
func newRoomRepositoryWithTx(tx queryable) *RoomRepository {
	return &RoomRepository{q: tx}
}

// Create inserts a new open room
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	query := `
		INSERT INTO rooms (id, wager_type, bet_amount, status, secret, commitment_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`

	err := r.q.QueryRow(ctx, query,
		room.ID,
		room.WagerType,
		room.BetAmount,
		room.Status,
		room.Secret,
		room.CommitmentHash,
	).Scan(&room.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create room %s: %w", room.ID, err)
	}

	return nil
}

const roomColumns = `id, wager_type, bet_amount, status, secret, commitment_hash, created_at, finished_at`

// GetByID retrieves a room by id, or nil if it does not exist
func (r *RoomRepository) GetByID(ctx context.Context, roomID string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1`
	return r.scanRoom(r.q.QueryRow(ctx, query, roomID), roomID)
}

// GetByIDForUpdate retrieves a room by id with a row lock, serializing all
// multi-step transitions for the same room. Transactions for other rooms are
// unaffected; concurrent transactions for this room queue behind the lock.
func (r *RoomRepository) GetByIDForUpdate(ctx context.Context, roomID string) (*models.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE id = $1 FOR UPDATE`
	return r.scanRoom(r.q.QueryRow(ctx, query, roomID), roomID)
}

func (r *RoomRepository) scanRoom(row pgx.Row, roomID string) (*models.Room, error) {
	var room models.Room
	err := row.Scan(
		&room.ID,
		&room.WagerType,
		&room.BetAmount,
		&room.Status,
		&room.Secret,
		&room.CommitmentHash,
		&room.CreatedAt,
		&room.FinishedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room %s: %w", roomID, err)
	}

	return &room, nil
}

// ListVisible returns every non-finished room with its member count, newest
// first. Canceled and running rooms stay listed so the lobby can show them.
func (r *RoomRepository) ListVisible(ctx context.Context) ([]*models.RoomSummary, error) {
	query := `
		SELECT r.id, r.wager_type, r.bet_amount, r.status, r.commitment_hash,
			(SELECT COUNT(*) FROM room_members m WHERE m.room_id = r.id) AS member_count
		FROM rooms r
		WHERE r.status != 'finished'
		ORDER BY r.created_at DESC
	`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var summaries []*models.RoomSummary
	for rows.Next() {
		var s models.RoomSummary
		err := rows.Scan(
			&s.ID,
			&s.WagerType,
			&s.BetAmount,
			&s.Status,
			&s.CommitmentHash,
			&s.MemberCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	return summaries, nil
}

// UpdateStatus flips a room from one status to another. The WHERE clause on
// the current status makes the transition conditional: a duplicate trigger
// sees zero affected rows and the caller treats that as "already handled".
func (r *RoomRepository) UpdateStatus(ctx context.Context, roomID string, from, to models.RoomStatus, finishedAt *time.Time) (bool, error) {
	query := `
		UPDATE rooms
		SET status = $1, finished_at = COALESCE($2, finished_at)
		WHERE id = $3 AND status = $4
	`

	result, err := r.q.Exec(ctx, query, to, finishedAt, roomID, from)
	if err != nil {
		return false, fmt.Errorf("failed to update status of room %s: %w", roomID, err)
	}

	return result.RowsAffected() > 0, nil
}

// AddMember adds a user to a room, unconfirmed
func (r *RoomRepository) AddMember(ctx context.Context, roomID, userID string) error {
	query := `
		INSERT INTO room_members (room_id, user_id)
		VALUES ($1, $2)
	`

	if _, err := r.q.Exec(ctx, query, roomID, userID); err != nil {
		return fmt.Errorf("failed to add user %s to room %s: %w", userID, roomID, err)
	}

	return nil
}

// GetMembers returns a room's members in join order
func (r *RoomRepository) GetMembers(ctx context.Context, roomID string) ([]*models.RoomMember, error) {
	query := `
		SELECT m.id, m.room_id, m.user_id, u.username, m.confirmed, m.result, m.joined_at
		FROM room_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.id ASC
	`

	rows, err := r.q.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get members of room %s: %w", roomID, err)
	}
	defer rows.Close()

	var members []*models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.UserID,
			&m.Username,
			&m.Confirmed,
			&m.Result,
			&m.JoinedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room member: %w", err)
		}
		members = append(members, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate room members: %w", err)
	}

	return members, nil
}

// SetConfirmed marks a member as confirmed
func (r *RoomRepository) SetConfirmed(ctx context.Context, roomID, userID string) error {
	query := `
		UPDATE room_members
		SET confirmed = TRUE
		WHERE room_id = $1 AND user_id = $2
	`

	result, err := r.q.Exec(ctx, query, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to confirm user %s in room %s: %w", userID, roomID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s in room %s: %w", userID, roomID, models.ErrNotAMember)
	}

	return nil
}

// SetResult writes a member's final result. Guarded on result = 'pending' so
// a result, once written, is never overwritten.
func (r *RoomRepository) SetResult(ctx context.Context, roomID, userID string, result models.MemberResult) error {
	query := `
		UPDATE room_members
		SET result = $1
		WHERE room_id = $2 AND user_id = $3 AND result = 'pending'
	`

	tag, err := r.q.Exec(ctx, query, result, roomID, userID)
	if err != nil {
		return fmt.Errorf("failed to set result for user %s in room %s: %w", userID, roomID, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("result already written for user %s in room %s", userID, roomID)
	}

	return nil
}
