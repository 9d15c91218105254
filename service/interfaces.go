package service

import (
	"context"
	"time"

	"coinduel/events"
	"coinduel/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	// GetByID retrieves a user by id, or nil if the user does not exist
	GetByID(ctx context.Context, userID string) (*models.User, error)

	// Create creates a new user with the initial balance
	Create(ctx context.Context, userID, username string, initialBalance int64) (*models.User, error)

	// ApplyDelta adjusts the cached balance atomically, failing with
	// models.ErrInsufficientFunds if the result would be negative.
	// Returns the new balance.
	ApplyDelta(ctx context.Context, userID string, delta int64) (int64, error)
}

// LedgerRepository defines the interface for the append-only ledger
type LedgerRepository interface {
	// Record inserts one immutable ledger entry
	Record(ctx context.Context, entry *models.LedgerEntry) error

	// GetByUser returns the most recent ledger entries for a user
	GetByUser(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)

	// GetByRoom returns all ledger entries tied to a room, oldest first
	GetByRoom(ctx context.Context, roomID string) ([]*models.LedgerEntry, error)

	// SumByUser returns the sum of all ledger deltas for a user
	SumByUser(ctx context.Context, userID string) (int64, error)
}

// RoomRepository defines the interface for room and membership data access
type RoomRepository interface {
	// Create inserts a new open room
	Create(ctx context.Context, room *models.Room) error

	// GetByID retrieves a room by id, or nil if it does not exist
	GetByID(ctx context.Context, roomID string) (*models.Room, error)

	// GetByIDForUpdate retrieves a room with a row lock, serializing
	// concurrent transitions for the same room
	GetByIDForUpdate(ctx context.Context, roomID string) (*models.Room, error)

	// ListVisible returns every non-finished room with its member count
	ListVisible(ctx context.Context) ([]*models.RoomSummary, error)

	// UpdateStatus conditionally flips status from one value to another,
	// reporting whether the transition happened
	UpdateStatus(ctx context.Context, roomID string, from, to models.RoomStatus, finishedAt *time.Time) (bool, error)

	// AddMember adds a user to a room, unconfirmed
	AddMember(ctx context.Context, roomID, userID string) error

	// GetMembers returns a room's members in join order
	GetMembers(ctx context.Context, roomID string) ([]*models.RoomMember, error)

	// SetConfirmed marks a member as confirmed
	SetConfirmed(ctx context.Context, roomID, userID string) error

	// SetResult writes a member's final result exactly once
	SetResult(ctx context.Context, roomID, userID string, result models.MemberResult) error
}

// UnitOfWork bundles the repositories and pending events of one transaction
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	UserRepository() UserRepository
	LedgerRepository() LedgerRepository
	RoomRepository() RoomRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates units of work
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UserService defines the interface for user operations
type UserService interface {
	// GetOrCreateUser retrieves an existing user or provisions a new one
	// with the configured starting balance
	GetOrCreateUser(ctx context.Context, userID, username string) (*models.User, error)

	// GetUser retrieves a user, failing with models.ErrUserNotFound
	GetUser(ctx context.Context, userID string) (*models.User, error)

	// GetLedger returns the most recent ledger entries for a user
	GetLedger(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error)

	// AdjustBalance applies an out-of-band balance adjustment with a
	// matching ledger entry
	AdjustBalance(ctx context.Context, userID string, delta int64, reason string) (*models.User, error)
}

// RoomService defines the interface for room registry operations
type RoomService interface {
	// CreateRoom opens a new room with a fresh fairness commitment and the
	// caller auto-joined, unconfirmed
	CreateRoom(ctx context.Context, callerID, wagerType string, betAmount int64) (*models.Room, error)

	// JoinRoom adds the caller to an open room
	JoinRoom(ctx context.Context, callerID, roomID string) error

	// GetRoom returns a room with its members
	GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error)

	// ListRooms returns the lobby view of all non-finished rooms
	ListRooms(ctx context.Context) ([]*models.RoomSummary, error)
}

// GameService defines the interface for the confirmation and settlement flow
type GameService interface {
	// ConfirmReady records the caller's confirmation and, when it is the
	// one that completes the set, takes both bets and starts the game
	ConfirmReady(ctx context.Context, callerID, roomID string) error

	// Resolve settles a running room: pays the winner, reveals the secret
	// and marks the room finished. A no-op unless the room is running.
	Resolve(ctx context.Context, roomID string) error

	// Stop cancels all pending resolution timers
	Stop()
}
