package service

import (
	"context"
	"fmt"

	"coinduel/models"

	log "github.com/sirupsen/logrus"
)

// userService implements the UserService interface
type userService struct {
	uowFactory      UnitOfWorkFactory
	startingBalance int64
}

// NewUserService creates a new user service
func NewUserService(uowFactory UnitOfWorkFactory, startingBalance int64) UserService {
	return &userService{
		uowFactory:      uowFactory,
		startingBalance: startingBalance,
	}
}

// GetOrCreateUser retrieves an existing user or provisions a new one with
// the starting balance. Identity comes verified from the auth collaborator;
// this is the first time the core sees a given user id.
func (s *userService) GetOrCreateUser(ctx context.Context, userID, username string) (*models.User, error) {
	if userID == "" || username == "" {
		return nil, fmt.Errorf("user id and username are required: %w", models.ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = uow.UserRepository().Create(ctx, userID, username, s.startingBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.WithFields(log.Fields{
		"userID":          userID,
		"username":        username,
		"startingBalance": s.startingBalance,
	}).Info("Provisioned new user")

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by id
func (s *userService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrUserNotFound)
	}

	return user, nil
}

// GetLedger returns the most recent ledger entries for a user
func (s *userService) GetLedger(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	entries, err := uow.LedgerRepository().GetByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entries: %w", err)
	}

	return entries, nil
}

// AdjustBalance applies an out-of-band adjustment, e.g. an operator credit
// or debit, recorded in the ledger like every other balance change.
func (s *userService) AdjustBalance(ctx context.Context, userID string, delta int64, reason string) (*models.User, error) {
	if delta == 0 {
		return nil, fmt.Errorf("adjustment delta must be non-zero: %w", models.ErrValidation)
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	user, err := uow.UserRepository().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, models.ErrUserNotFound)
	}

	entry := &models.LedgerEntry{
		UserID:       userID,
		ChangeAmount: delta,
		Kind:         models.LedgerKindAdjustment,
		Meta:         map[string]any{"reason": reason},
	}

	newBalance, err := ApplyLedgerEntry(ctx, uow, entry)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	user.Balance = newBalance
	return user, nil
}
