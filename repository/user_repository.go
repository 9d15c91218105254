package repository

import (
	"context"
	"fmt"

	"coinduel/database"
	"coinduel/models"
	"github.com/jackc/pgx/v5"
)

// UserRepository implements the service.UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

// GetByID retrieves a user by id, or nil if the user does not exist
func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, username, balance, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", userID, err)
	}

	return &user, nil
}

// Create creates a new user with the initial balance
func (r *UserRepository) Create(ctx context.Context, userID, username string, initialBalance int64) (*models.User, error) {
	query := `
		INSERT INTO users (id, username, balance)
		VALUES ($1, $2, $3)
		RETURNING id, username, balance, created_at, updated_at
	`

	var user models.User
	err := r.q.QueryRow(ctx, query, userID, username, initialBalance).Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", userID, err)
	}

	return &user, nil
}

// ApplyDelta adjusts a user's cached balance by delta. A negative delta that
// would drive the balance below zero affects no rows and is reported as
// ErrInsufficientFunds; callers pre-check balances but this closes the race.
func (r *UserRepository) ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error) {
	query := `
		UPDATE users
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`

	var newBalance int64
	err := r.q.QueryRow(ctx, query, delta, userID).Scan(&newBalance)
	if err == pgx.ErrNoRows {
		user, getErr := r.GetByID(ctx, userID)
		if getErr != nil {
			return 0, fmt.Errorf("failed to check user after rejected delta: %w", getErr)
		}
		if user == nil {
			return 0, fmt.Errorf("user %s: %w", userID, models.ErrUserNotFound)
		}
		return 0, fmt.Errorf("user %s has %d, delta %d: %w", userID, user.Balance, delta, models.ErrInsufficientFunds)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply balance delta for user %s: %w", userID, err)
	}

	return newBalance, nil
}
