package models

import (
	"time"
)

// User represents an authenticated player with a cached balance.
// The balance column is a cache over the ledger: at all times it must equal
// the user's initial balance plus the sum of their ledger entry deltas.
type User struct {
	ID        string    `db:"id"`
	Username  string    `db:"username"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
