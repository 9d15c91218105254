package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coinduel/events"
	"coinduel/models"

	log "github.com/sirupsen/logrus"
)

const cancelReasonInsufficientBalance = "insufficient balance"

// gameService implements the GameService interface: the confirmation
// coordinator and settlement engine. Every multi-step transition locks the
// room row first, so concurrent operations on the same room are totally
// ordered while different rooms proceed independently.
type gameService struct {
	uowFactory UnitOfWorkFactory
	scheduler  *resolutionScheduler
}

// NewGameService creates a new game service. resolveDelay is the wall-clock
// pause between game start and resolution.
func NewGameService(uowFactory UnitOfWorkFactory, resolveDelay time.Duration) GameService {
	s := &gameService{
		uowFactory: uowFactory,
	}
	s.scheduler = newResolutionScheduler(resolveDelay, s.resolveScheduled)
	return s
}

// ConfirmReady records the caller's confirmation. Two confirmations can race
// from different connections; the room row lock serializes them, and only
// the caller that observes the start condition flip from false to true while
// the room is still open performs the start. The loser of the race finds the
// condition already handled and no-ops.
func (s *gameService) ConfirmReady(ctx context.Context, callerID, roomID string) error {
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

	if err := uow.RoomRepository().SetConfirmed(ctx, roomID, callerID); err != nil {
		return err
	}

	// Re-read membership under the same lock and evaluate the start
	// condition. Only one confirmation can observe it becoming true.
	members, err := uow.RoomRepository().GetMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room members: %w", err)
	}

	uow.EventBus().Publish(events.RoomStateEvent{
		RoomID:  roomID,
		Status:  room.Status,
		Members: members,
	})

	started := false
	if models.AllConfirmed(members) {
		started, err = s.takeBets(ctx, uow, room, members)
		if err != nil {
			if errors.Is(err, models.ErrInsufficientFunds) {
				// A balance changed underneath the pre-check. Nothing
				// from this transaction may survive; cancel in a fresh
				// one so the debits roll back.
				uow.Rollback()
				return s.cancelRoom(context.WithoutCancel(ctx), roomID)
			}
			return err
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if started {
		s.scheduler.Schedule(roomID)
	}

	return nil
}

// takeBets performs the bet-taking bundle inside the caller's transaction:
// re-checks both balances, debits each player with a ledger entry, and flips
// the room to running. If a pre-check fails the room is canceled instead and
// no funds move; this is the only path to the canceled status.
func (s *gameService) takeBets(ctx context.Context, uow UnitOfWork, room *models.Room, members []*models.RoomMember) (bool, error) {
	for _, m := range members {
		user, err := uow.UserRepository().GetByID(ctx, m.UserID)
		if err != nil {
			return false, fmt.Errorf("failed to get member balance: %w", err)
		}
		if user == nil || user.Balance < room.BetAmount {
			flipped, err := uow.RoomRepository().UpdateStatus(ctx, room.ID, models.RoomStatusOpen, models.RoomStatusCanceled, nil)
			if err != nil {
				return false, err
			}
			if flipped {
				uow.EventBus().Publish(events.GameCanceledEvent{
					RoomID: room.ID,
					Reason: cancelReasonInsufficientBalance,
				})
				uow.EventBus().Publish(events.LobbyUpdateEvent{})

				log.WithFields(log.Fields{
					"roomID": room.ID,
					"userID": m.UserID,
				}).Info("Room canceled at settlement, member balance too low")
			}
			return false, nil
		}
	}

	// Debit in a stable global order so two rooms sharing both players
	// cannot deadlock on the user row locks.
	debitOrder := []*models.RoomMember{members[0], members[1]}
	if debitOrder[0].UserID > debitOrder[1].UserID {
		debitOrder[0], debitOrder[1] = debitOrder[1], debitOrder[0]
	}

	for i, m := range debitOrder {
		opponent := debitOrder[1-i]
		entry := &models.LedgerEntry{
			UserID:       m.UserID,
			ChangeAmount: -room.BetAmount,
			Kind:         models.LedgerKindBet,
			RoomID:       &room.ID,
			Meta: map[string]any{
				"room":     room.ID,
				"opponent": opponent.UserID,
			},
		}
		if _, err := ApplyLedgerEntry(ctx, uow, entry); err != nil {
			return false, fmt.Errorf("failed to take bet from %s: %w", m.UserID, err)
		}
	}

	// The status flip doubles as the exactly-once guard: a duplicate
	// trigger sees status != open and aborts before any money moved.
	flipped, err := uow.RoomRepository().UpdateStatus(ctx, room.ID, models.RoomStatusOpen, models.RoomStatusRunning, nil)
	if err != nil {
		return false, err
	}
	if !flipped {
		return false, fmt.Errorf("room %s left open state during start", room.ID)
	}

	uow.EventBus().Publish(events.GameStartEvent{
		RoomID:         room.ID,
		CommitmentHash: room.CommitmentHash,
	})
	uow.EventBus().Publish(events.LobbyUpdateEvent{})

	log.WithFields(log.Fields{
		"roomID":    room.ID,
		"betAmount": room.BetAmount,
	}).Info("Bets taken, game running")

	return true, nil
}

// cancelRoom flips a still-open room to canceled in its own transaction.
func (s *gameService) cancelRoom(ctx context.Context, roomID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil || room.Status != models.RoomStatusOpen {
		return nil
	}

	if _, err := uow.RoomRepository().UpdateStatus(ctx, roomID, models.RoomStatusOpen, models.RoomStatusCanceled, nil); err != nil {
		return err
	}

	uow.EventBus().Publish(events.GameCanceledEvent{
		RoomID: roomID,
		Reason: cancelReasonInsufficientBalance,
	})
	uow.EventBus().Publish(events.LobbyUpdateEvent{})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Resolve settles a running room: derives the outcome from the committed
// secret, pays the winner both stakes, writes each member's result once and
// flips the room to finished. A no-op for any other status, which is what
// makes the deferred timer safe to fire unconditionally.
func (s *gameService) Resolve(ctx context.Context, roomID string) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	room, err := uow.RoomRepository().GetByIDForUpdate(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	if room == nil || room.Status != models.RoomStatusRunning {
		return nil
	}

	members, err := uow.RoomRepository().GetMembers(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room members: %w", err)
	}
	if len(members) != models.MaxRoomMembers {
		return fmt.Errorf("running room %s has %d members", roomID, len(members))
	}

	outcomeBit := OutcomeBit(room.Secret, room.ID)
	winner := members[outcomeBit]
	loser := members[1-outcomeBit]
	payout := 2 * room.BetAmount

	entry := &models.LedgerEntry{
		UserID:       winner.UserID,
		ChangeAmount: payout,
		Kind:         models.LedgerKindWin,
		RoomID:       &room.ID,
		Meta: map[string]any{
			"room":       room.ID,
			"outcomeBit": outcomeBit,
		},
	}
	if _, err := ApplyLedgerEntry(ctx, uow, entry); err != nil {
		return fmt.Errorf("failed to pay winner: %w", err)
	}

	if err := uow.RoomRepository().SetResult(ctx, roomID, winner.UserID, models.MemberResultWin); err != nil {
		return err
	}
	if err := uow.RoomRepository().SetResult(ctx, roomID, loser.UserID, models.MemberResultLose); err != nil {
		return err
	}

	now := time.Now()
	flipped, err := uow.RoomRepository().UpdateStatus(ctx, roomID, models.RoomStatusRunning, models.RoomStatusFinished, &now)
	if err != nil {
		return err
	}
	if !flipped {
		return fmt.Errorf("room %s left running state during resolution", roomID)
	}

	uow.EventBus().Publish(events.GameEndEvent{
		RoomID:         roomID,
		WinnerUserID:   winner.UserID,
		Payout:         payout,
		OutcomeBit:     outcomeBit,
		SecretReveal:   room.Secret,
		CommitmentHash: room.CommitmentHash,
	})
	uow.EventBus().Publish(events.LobbyUpdateEvent{})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"roomID":     roomID,
		"winner":     winner.UserID,
		"payout":     payout,
		"outcomeBit": outcomeBit,
	}).Info("Room resolved")

	return nil
}

// Stop cancels all pending resolution timers
func (s *gameService) Stop() {
	s.scheduler.Stop()
}

// resolveScheduled is the timer callback. The request that started the game
// has long returned, so resolution runs on a background context.
func (s *gameService) resolveScheduled(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Resolve(ctx, roomID); err != nil {
		log.WithFields(log.Fields{
			"roomID": roomID,
			"error":  err,
		}).Error("Scheduled resolution failed")
	}
}
