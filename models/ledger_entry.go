package models

import (
	"time"
)

// LedgerKind represents the type of balance change
type LedgerKind string

const (
	LedgerKindBet        LedgerKind = "bet"
	LedgerKindWin        LedgerKind = "win"
	LedgerKindAdjustment LedgerKind = "adjustment"
)

// LedgerEntry is one immutable balance delta for a user. Entries are only
// ever inserted, never updated or deleted; the user's cached balance is
// adjusted by ChangeAmount in the same transaction that records the entry.
type LedgerEntry struct {
	ID           string         `db:"id"`
	UserID       string         `db:"user_id"`
	ChangeAmount int64          `db:"change_amount"`
	Kind         LedgerKind     `db:"kind"`
	RoomID       *string        `db:"room_id"`
	Meta         map[string]any `db:"meta"`
	CreatedAt    time.Time      `db:"created_at"`
}
