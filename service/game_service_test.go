package service

import (
	"context"
	"testing"
	"time"

	"coinduel/events"
	"coinduel/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newMockedGameService wires a game service whose resolution timer never
// fires during the test.
func newMockedGameService() (GameService, *MockUnitOfWork, *MockUnitOfWorkFactory, *MockUserRepository, *MockLedgerRepository, *MockRoomRepository, *MockEventPublisher) {
	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockLedgerRepo := new(MockLedgerRepository)
	mockRoomRepo := new(MockRoomRepository)
	mockBus := new(MockEventPublisher)

	mockUoW.SetRepositories(mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus)

	return NewGameService(mockFactory, time.Hour), mockUoW, mockFactory, mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus
}

func TestGameService_ConfirmReady_FirstConfirmationDoesNotStart(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, _, _, mockRoomRepo, mockBus := newMockedGameService()
	defer service.Stop()

	room := &models.Room{ID: "room-1", Status: models.RoomStatusOpen, BetAmount: 100}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(room, nil)
	mockRoomRepo.On("SetConfirmed", ctx, "room-1", "user-a").Return(nil)
	mockRoomRepo.On("GetMembers", ctx, "room-1").Return([]*models.RoomMember{
		{ID: 1, RoomID: "room-1", UserID: "user-a", Confirmed: true},
		{ID: 2, RoomID: "room-1", UserID: "user-b", Confirmed: false},
	}, nil)
	mockBus.On("Publish", mock.Anything).Return()

	err := service.ConfirmReady(ctx, "user-a", "room-1")

	require.NoError(t, err)
	mockRoomRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Len(t, mockBus.PublishedOfType(events.EventTypeRoomState), 1)
	assert.Empty(t, mockBus.PublishedOfType(events.EventTypeGameStart))
	mockUoW.AssertCalled(t, "Commit")
}

func TestGameService_ConfirmReady_LastConfirmationStartsGame(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus := newMockedGameService()
	defer service.Stop()

	room := &models.Room{ID: "room-1", Status: models.RoomStatusOpen, BetAmount: 100, CommitmentHash: "abc"}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(room, nil)
	mockRoomRepo.On("SetConfirmed", ctx, "room-1", "user-b").Return(nil)
	mockRoomRepo.On("GetMembers", ctx, "room-1").Return([]*models.RoomMember{
		{ID: 1, RoomID: "room-1", UserID: "user-a", Confirmed: true},
		{ID: 2, RoomID: "room-1", UserID: "user-b", Confirmed: true},
	}, nil)
	mockUserRepo.On("GetByID", ctx, "user-a").Return(&models.User{ID: "user-a", Balance: 1000}, nil)
	mockUserRepo.On("GetByID", ctx, "user-b").Return(&models.User{ID: "user-b", Balance: 1000}, nil)
	mockUserRepo.On("ApplyDelta", ctx, "user-a", int64(-100)).Return(int64(900), nil)
	mockUserRepo.On("ApplyDelta", ctx, "user-b", int64(-100)).Return(int64(900), nil)
	mockLedgerRepo.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Kind == models.LedgerKindBet && e.ChangeAmount == -100 && e.RoomID != nil && *e.RoomID == "room-1"
	})).Return(nil).Twice()
	mockRoomRepo.On("UpdateStatus", ctx, "room-1", models.RoomStatusOpen, models.RoomStatusRunning, (*time.Time)(nil)).Return(true, nil)
	mockBus.On("Publish", mock.Anything).Return()

	err := service.ConfirmReady(ctx, "user-b", "room-1")

	require.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
	mockLedgerRepo.AssertExpectations(t)

	starts := mockBus.PublishedOfType(events.EventTypeGameStart)
	require.Len(t, starts, 1)
	assert.Equal(t, "abc", starts[0].(events.GameStartEvent).CommitmentHash)
	assert.Len(t, mockBus.PublishedOfType(events.EventTypeBalanceChange), 2)
}

func TestGameService_ConfirmReady_RoomAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, _, _, mockRoomRepo, _ := newMockedGameService()
	defer service.Stop()

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(&models.Room{
		ID:     "room-1",
		Status: models.RoomStatusRunning,
	}, nil)

	err := service.ConfirmReady(ctx, "user-a", "room-1")

	assert.ErrorIs(t, err, models.ErrRoomNotJoinable)
	mockRoomRepo.AssertNotCalled(t, "SetConfirmed", mock.Anything, mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
}

func TestGameService_ConfirmReady_CancelsWhenBalanceTooLow(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, mockUserRepo, _, mockRoomRepo, mockBus := newMockedGameService()
	defer service.Stop()

	room := &models.Room{ID: "room-1", Status: models.RoomStatusOpen, BetAmount: 100}

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(room, nil)
	mockRoomRepo.On("SetConfirmed", ctx, "room-1", "user-b").Return(nil)
	mockRoomRepo.On("GetMembers", ctx, "room-1").Return([]*models.RoomMember{
		{ID: 1, RoomID: "room-1", UserID: "user-a", Confirmed: true},
		{ID: 2, RoomID: "room-1", UserID: "user-b", Confirmed: true},
	}, nil)
	mockUserRepo.On("GetByID", ctx, "user-a").Return(&models.User{ID: "user-a", Balance: 1000}, nil)
	mockUserRepo.On("GetByID", ctx, "user-b").Return(&models.User{ID: "user-b", Balance: 50}, nil)
	mockRoomRepo.On("UpdateStatus", ctx, "room-1", models.RoomStatusOpen, models.RoomStatusCanceled, (*time.Time)(nil)).Return(true, nil)
	mockBus.On("Publish", mock.Anything).Return()

	err := service.ConfirmReady(ctx, "user-b", "room-1")

	require.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)

	canceled := mockBus.PublishedOfType(events.EventTypeGameCanceled)
	require.Len(t, canceled, 1)
	assert.Equal(t, cancelReasonInsufficientBalance, canceled[0].(events.GameCanceledEvent).Reason)
	assert.Empty(t, mockBus.PublishedOfType(events.EventTypeGameStart))
}

func TestGameService_ConfirmReady_DebitRaceCancelsInFreshTransaction(t *testing.T) {
	ctx := context.Background()

	confirmUoW := new(MockUnitOfWork)
	cancelUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockLedgerRepo := new(MockLedgerRepository)
	mockRoomRepo := new(MockRoomRepository)
	mockBus := new(MockEventPublisher)

	confirmUoW.SetRepositories(mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus)
	cancelUoW.SetRepositories(mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus)

	service := NewGameService(mockFactory, time.Hour)
	defer service.Stop()

	room := &models.Room{ID: "room-1", Status: models.RoomStatusOpen, BetAmount: 100}

	mockFactory.On("Create").Return(confirmUoW).Once()
	mockFactory.On("Create").Return(cancelUoW).Once()

	confirmUoW.On("Begin", ctx).Return(nil)
	confirmUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", mock.Anything, "room-1").Return(room, nil)
	mockRoomRepo.On("SetConfirmed", ctx, "room-1", "user-b").Return(nil)
	mockRoomRepo.On("GetMembers", ctx, "room-1").Return([]*models.RoomMember{
		{ID: 1, RoomID: "room-1", UserID: "user-a", Confirmed: true},
		{ID: 2, RoomID: "room-1", UserID: "user-b", Confirmed: true},
	}, nil)

	// Pre-checks pass, then the debit loses a race with a concurrent
	// balance change.
	mockUserRepo.On("GetByID", ctx, "user-a").Return(&models.User{ID: "user-a", Balance: 1000}, nil)
	mockUserRepo.On("GetByID", ctx, "user-b").Return(&models.User{ID: "user-b", Balance: 1000}, nil)
	mockUserRepo.On("ApplyDelta", ctx, "user-a", int64(-100)).Return(int64(0), models.ErrInsufficientFunds)

	cancelUoW.On("Begin", mock.Anything).Return(nil)
	cancelUoW.On("Commit").Return(nil)
	cancelUoW.On("Rollback").Return(nil)
	mockRoomRepo.On("UpdateStatus", mock.Anything, "room-1", models.RoomStatusOpen, models.RoomStatusCanceled, (*time.Time)(nil)).Return(true, nil)
	mockBus.On("Publish", mock.Anything).Return()

	err := service.ConfirmReady(ctx, "user-b", "room-1")

	require.NoError(t, err)
	confirmUoW.AssertNotCalled(t, "Commit")
	cancelUoW.AssertCalled(t, "Commit")
	require.Len(t, mockBus.PublishedOfType(events.EventTypeGameCanceled), 1)
}

func TestGameService_Resolve_PaysWinnerByOutcomeBit(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, mockUserRepo, mockLedgerRepo, mockRoomRepo, mockBus := newMockedGameService()
	defer service.Stop()

	secret, err := NewSecret()
	require.NoError(t, err)

	room := &models.Room{
		ID:             "room-1",
		Status:         models.RoomStatusRunning,
		BetAmount:      100,
		Secret:         secret,
		CommitmentHash: Commitment(secret, "room-1"),
	}
	members := []*models.RoomMember{
		{ID: 1, RoomID: "room-1", UserID: "user-a", Confirmed: true},
		{ID: 2, RoomID: "room-1", UserID: "user-b", Confirmed: true},
	}
	bit := OutcomeBit(secret, "room-1")
	winner := members[bit]
	loser := members[1-bit]

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(room, nil)
	mockRoomRepo.On("GetMembers", ctx, "room-1").Return(members, nil)
	mockUserRepo.On("ApplyDelta", ctx, winner.UserID, int64(200)).Return(int64(1100), nil)
	mockLedgerRepo.On("Record", ctx, mock.MatchedBy(func(e *models.LedgerEntry) bool {
		return e.Kind == models.LedgerKindWin && e.ChangeAmount == 200 && e.UserID == winner.UserID
	})).Return(nil)
	mockRoomRepo.On("SetResult", ctx, "room-1", winner.UserID, models.MemberResultWin).Return(nil)
	mockRoomRepo.On("SetResult", ctx, "room-1", loser.UserID, models.MemberResultLose).Return(nil)
	mockRoomRepo.On("UpdateStatus", ctx, "room-1", models.RoomStatusRunning, models.RoomStatusFinished, mock.AnythingOfType("*time.Time")).Return(true, nil)
	mockBus.On("Publish", mock.Anything).Return()

	err = service.Resolve(ctx, "room-1")

	require.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)

	ends := mockBus.PublishedOfType(events.EventTypeGameEnd)
	require.Len(t, ends, 1)
	end := ends[0].(events.GameEndEvent)
	assert.Equal(t, winner.UserID, end.WinnerUserID)
	assert.Equal(t, int64(200), end.Payout)
	assert.Equal(t, secret, end.SecretReveal)
	assert.True(t, VerifyCommitment(end.SecretReveal, "room-1", end.CommitmentHash))
}

func TestGameService_Resolve_NoopUnlessRunning(t *testing.T) {
	ctx := context.Background()
	service, mockUoW, mockFactory, mockUserRepo, _, mockRoomRepo, _ := newMockedGameService()
	defer service.Stop()

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockRoomRepo.On("GetByIDForUpdate", ctx, "room-1").Return(&models.Room{
		ID:     "room-1",
		Status: models.RoomStatusFinished,
	}, nil)

	err := service.Resolve(ctx, "room-1")

	require.NoError(t, err)
	mockUserRepo.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
	mockUoW.AssertNotCalled(t, "Commit")
}
