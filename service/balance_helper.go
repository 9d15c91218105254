package service

import (
	"context"
	"fmt"

	"coinduel/events"
	"coinduel/models"

	"github.com/google/uuid"
)

// ApplyLedgerEntry is the single entry point for all balance changes: it
// adjusts the user's cached balance and records the immutable ledger entry
// in the same unit of work, then queues a balance change event for after
// commit. The balance cache can never drift from the ledger because the two
// writes share a transaction.
func ApplyLedgerEntry(ctx context.Context, uow UnitOfWork, entry *models.LedgerEntry) (int64, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	newBalance, err := uow.UserRepository().ApplyDelta(ctx, entry.UserID, entry.ChangeAmount)
	if err != nil {
		return 0, fmt.Errorf("failed to apply balance delta: %w", err)
	}

	if err := uow.LedgerRepository().Record(ctx, entry); err != nil {
		return 0, fmt.Errorf("failed to record ledger entry: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		UserID:       entry.UserID,
		ChangeAmount: entry.ChangeAmount,
		NewBalance:   newBalance,
		Kind:         entry.Kind,
	})

	return newBalance, nil
}
