package service

import (
	"context"
	"fmt"

	"coinduel/events"
	"coinduel/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// roomService implements the RoomService interface
type roomService struct {
	uowFactory UnitOfWorkFactory
}

// NewRoomService creates a new room service
func NewRoomService(uowFactory UnitOfWorkFactory) RoomService {
	return &roomService{
		uowFactory: uowFactory,
	}
}

// CreateRoom opens a new room. The fairness secret is drawn here and only
// its commitment ever leaves the server; the creator is auto-joined,
// unconfirmed. The creator's balance is checked but no funds move until
// both players confirm.
func (s *roomService) CreateRoom(ctx context.Context, callerID, wagerType string, betAmount int64) (*models.Room, error) {
	if betAmount <= 0 {
		return nil, fmt.Errorf("bet amount must be positive: %w", models.ErrValidation)
	}
	if wagerType == "" {
		wagerType = models.WagerTypeCoinflip
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	caller, err := uow.UserRepository().GetByID(ctx, callerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get caller: %w", err)
	}
	if caller == nil {
		return nil, fmt.Errorf("user %s: %w", callerID, models.ErrUserNotFound)
	}
	if caller.Balance < betAmount {
		return nil, fmt.Errorf("have %d, need %d: %w", caller.Balance, betAmount, models.ErrInsufficientFunds)
	}

	roomID := uuid.New().String()
	secret, err := NewSecret()
	if err != nil {
		return nil, err
	}

	room := &models.Room{
		ID:             roomID,
		WagerType:      wagerType,
		BetAmount:      betAmount,
		Status:         models.RoomStatusOpen,
		Secret:         secret,
		CommitmentHash: Commitment(secret, roomID),
	}

	if err := uow.RoomRepository().Create(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	if err := uow.RoomRepository().AddMember(ctx, roomID, callerID); err != nil {
		return nil, fmt.Errorf("failed to add creator to room: %w", err)
	}

	uow.EventBus().Publish(events.RoomCreatedEvent{
		RoomID:    roomID,
		WagerType: wagerType,
		BetAmount: betAmount,
	})
	uow.EventBus().Publish(events.LobbyUpdateEvent{})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roomID":    roomID,
		"creator":   callerID,
		"betAmount": betAmount,
	}).Info("Room created")

	return room, nil
}

// JoinRoom adds the caller to an open room. The room row is locked so two
// concurrent joins cannot both slip past the capacity check.
func (s *roomService) JoinRoom(ctx context.Context, callerID, roomID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil {
		return fmt.Errorf("room %s: %w", roomID, models.ErrRoomNotFound)
	}
	if room.Status != models.RoomStatusOpen {
		return fmt.Errorf("room %s is %s: %w", roomID, room.Status, models.ErrRoomNotJoinable)
	}

	members, err := uow.RoomRepository().GetMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room members: %w", err)
	}
	if len(members) >= models.MaxRoomMembers {
		return fmt.Errorf("room %s is full: %w", roomID, models.ErrRoomNotJoinable)
	}
	for _, m := range members {
		if m.UserID == callerID {
			return fmt.Errorf("user %s in room %s: %w", callerID, roomID, models.ErrAlreadyMember)
		}
	}

	caller, err := uow.UserRepository().GetByID(ctx, callerID)
	if err != nil {
		return fmt.Errorf("failed to get caller: %w", err)
	}
	if caller == nil {
		return fmt.Errorf("user %s: %w", callerID, models.ErrUserNotFound)
	}
	if caller.Balance < room.BetAmount {
		return fmt.Errorf("have %d, need %d: %w", caller.Balance, room.BetAmount, models.ErrInsufficientFunds)
	}

	if err := uow.RoomRepository().AddMember(ctx, roomID, callerID); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	members, err = uow.RoomRepository().GetMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to reload room members: %w", err)
	}

	uow.EventBus().Publish(events.RoomStateEvent{
		RoomID:  roomID,
		Status:  room.Status,
		Members: members,
	})
	uow.EventBus().Publish(events.LobbyUpdateEvent{})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roomID": roomID,
		"userID": callerID,
	}).Info("User joined room")

	return nil
}

// GetRoom returns a room with its members
func (s *roomService) GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil {
		return nil, fmt.Errorf("room %s: %w", roomID, models.ErrRoomNotFound)
	}

	members, err := uow.RoomRepository().GetMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room members: %w", err)
	}

	return &models.RoomDetail{Room: room, Members: members}, nil
}

// ListRooms returns the lobby view of all non-finished rooms
func (s *roomService) ListRooms(ctx context.Context) ([]*models.RoomSummary, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	rooms, err := uow.RoomRepository().ListVisible(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return rooms, nil
}
