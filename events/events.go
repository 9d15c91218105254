package events

import (
	"context"
	"sync"

	"coinduel/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeRoomCreated   EventType = "room_created"
	EventTypeRoomState     EventType = "room_state"
	EventTypeGameStart     EventType = "game_start"
	EventTypeGameEnd       EventType = "game_end"
	EventTypeGameCanceled  EventType = "game_canceled"
	EventTypeLobbyUpdate   EventType = "lobby_update"
	EventTypeBalanceChange EventType = "balance_change"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// RoomCreatedEvent announces a newly opened room.
type RoomCreatedEvent struct {
	RoomID    string
	WagerType string
	BetAmount int64
}

func (e RoomCreatedEvent) Type() EventType {
	return EventTypeRoomCreated
}

// RoomStateEvent carries a fresh membership snapshot after a join or confirm.
type RoomStateEvent struct {
	RoomID  string
	Status  models.RoomStatus
	Members []*models.RoomMember
}

func (e RoomStateEvent) Type() EventType {
	return EventTypeRoomState
}

// GameStartEvent announces that both bets were taken and the room is running.
// Only the commitment hash is published; the secret stays server-side.
type GameStartEvent struct {
	RoomID         string
	CommitmentHash string
}

func (e GameStartEvent) Type() EventType {
	return EventTypeGameStart
}

// GameEndEvent announces the resolved outcome and reveals the secret so any
// subscriber can verify the commitment.
type GameEndEvent struct {
	RoomID         string
	WinnerUserID   string
	Payout         int64
	OutcomeBit     int
	SecretReveal   string
	CommitmentHash string
}

func (e GameEndEvent) Type() EventType {
	return EventTypeGameEnd
}

// GameCanceledEvent announces a cancellation before any funds moved.
type GameCanceledEvent struct {
	RoomID string
	Reason string
}

func (e GameCanceledEvent) Type() EventType {
	return EventTypeGameCanceled
}

// LobbyUpdateEvent signals that the visible room list changed. It carries no
// payload; lobby subscribers re-query the room list.
type LobbyUpdateEvent struct{}

func (e LobbyUpdateEvent) Type() EventType {
	return EventTypeLobbyUpdate
}

// BalanceChangeEvent represents a balance change that occurred
type BalanceChangeEvent struct {
	UserID       string
	ChangeAmount int64
	NewBalance   int64
	Kind         models.LedgerKind
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking
	for _, handler := range handlers {
		go func(h Handler) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType": event.Type(),
						"panic":     r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after a successful commit, so
// subscribers never see an event for a state that failed to persist.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events, called after successful DB commit.
func (b *TransactionalBus) Flush(ctx context.Context) {
	// Events outlive the transaction context, so emit on a fresh one.
	eventCtx := context.Background()

	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events to main event bus")

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
}

// Discard drops pending events, called after rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
