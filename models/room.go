package models

import (
	"time"
)

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomStatusOpen     RoomStatus = "open"
	RoomStatusRunning  RoomStatus = "running"
	RoomStatusCanceled RoomStatus = "canceled"
	RoomStatusFinished RoomStatus = "finished"
)

// MemberResult represents a member's outcome within a finished room
type MemberResult string

const (
	MemberResultPending MemberResult = "pending"
	MemberResultWin     MemberResult = "win"
	MemberResultLose    MemberResult = "lose"
)

// WagerTypeCoinflip is the only wager type the settlement engine resolves.
const WagerTypeCoinflip = "coinflip"

// MaxRoomMembers is the fixed room capacity.
const MaxRoomMembers = 2

// Room represents one two-player wager. Status moves strictly forward:
// open -> running -> finished, or open -> canceled. The secret is generated
// at creation and must never reach clients before the game finishes; the
// commitment hash is public from the start and never changes.
type Room struct {
	ID             string     `db:"id"`
	WagerType      string     `db:"wager_type"`
	BetAmount      int64      `db:"bet_amount"`
	Status         RoomStatus `db:"status"`
	Secret         string     `db:"secret"`
	CommitmentHash string     `db:"commitment_hash"`
	CreatedAt      time.Time  `db:"created_at"`
	FinishedAt     *time.Time `db:"finished_at"`
}

// IsTerminal reports whether the room can no longer change state.
func (r *Room) IsTerminal() bool {
	return r.Status == RoomStatusFinished || r.Status == RoomStatusCanceled
}

// RoomMember is a user's participation record within a room. The ID is a
// serial and doubles as the join order: the member with the smaller ID is
// the first joiner (outcome bit 0), the other the second (bit 1).
type RoomMember struct {
	ID        int64        `db:"id"`
	RoomID    string       `db:"room_id"`
	UserID    string       `db:"user_id"`
	Username  string       `db:"username"`
	Confirmed bool         `db:"confirmed"`
	Result    MemberResult `db:"result"`
	JoinedAt  time.Time    `db:"joined_at"`
}

// RoomSummary is the lobby projection of a room.
type RoomSummary struct {
	ID             string     `db:"id"`
	WagerType      string     `db:"wager_type"`
	BetAmount      int64      `db:"bet_amount"`
	Status         RoomStatus `db:"status"`
	CommitmentHash string     `db:"commitment_hash"`
	MemberCount    int        `db:"member_count"`
}

// RoomDetail bundles a room with its members for synchronous state queries.
type RoomDetail struct {
	Room    *Room
	Members []*RoomMember
}

// AllConfirmed reports whether the room is full and every member confirmed.
func AllConfirmed(members []*RoomMember) bool {
	if len(members) != MaxRoomMembers {
		return false
	}
	for _, m := range members {
		if !m.Confirmed {
			return false
		}
	}
	return true
}
