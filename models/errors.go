package models

import "errors"

// Sentinel errors for room and ledger operations. Services wrap these with
// context via fmt.Errorf and %w; callers match with errors.Is.
var (
	// ErrInsufficientFunds is returned when a debit would drive a balance
	// below zero, or a pre-check finds the balance too small for a bet.
	ErrInsufficientFunds = errors.New("insufficient balance")

	// ErrRoomNotFound is returned for an unknown room id.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomNotJoinable is returned when a room is full or no longer open.
	ErrRoomNotJoinable = errors.New("room is not joinable")

	// ErrAlreadyMember is returned when a user tries to join a room twice.
	ErrAlreadyMember = errors.New("already in room")

	// ErrNotAMember is returned when a non-member acts on a room.
	ErrNotAMember = errors.New("not in room")

	// ErrValidation is returned for bad or missing input.
	ErrValidation = errors.New("invalid input")

	// ErrUserNotFound is returned for an unknown user id.
	ErrUserNotFound = errors.New("user not found")
)
