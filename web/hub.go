package web

import (
	"context"
	"net/http"
	"sync"

	"coinduel/events"
	"coinduel/service"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// wsMessage is the envelope for every server-to-client push.
type wsMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type wsClientMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
}

// wsClient wraps a connection with a write lock; gorilla allows only one
// concurrent writer per connection.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(msg wsMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

// Hub manages WebSocket subscriptions: a per-room subscriber set plus a
// global lobby set. Delivery is at-most-once best-effort; a client that
// subscribes late gets an immediate room snapshot, and the synchronous
// GET /api/rooms/{id} endpoint covers anything missed before that.
type Hub struct {
	upgrader    websocket.Upgrader
	roomService service.RoomService

	mu    sync.RWMutex
	rooms map[string]map[*wsClient]struct{}
	lobby map[*wsClient]struct{}
}

// NewHub creates a hub that answers room subscriptions with fresh snapshots
// from the given room service.
func NewHub(roomService service.RoomService) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		roomService: roomService,
		rooms:       make(map[string]map[*wsClient]struct{}),
		lobby:       make(map[*wsClient]struct{}),
	}
}

// HandleWS owns the lifecycle of one WebSocket connection.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsClient{conn: conn}
	defer func() {
		h.dropClient(client)
		conn.Close()
	}()

	for {
		var msg wsClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}

		switch msg.Type {
		case "subscribe":
			if msg.RoomID == "" {
				continue
			}
			h.subscribeRoom(client, msg.RoomID)
			h.sendRoomSnapshot(r.Context(), client, msg.RoomID)
		case "unsubscribe":
			h.unsubscribeRoom(client, msg.RoomID)
		case "subscribe_lobby":
			h.mu.Lock()
			h.lobby[client] = struct{}{}
			h.mu.Unlock()
		case "unsubscribe_lobby":
			h.mu.Lock()
			delete(h.lobby, client)
			h.mu.Unlock()
		case "ping":
			_ = client.send(wsMessage{Type: "pong"})
		}
	}
}

func (h *Hub) subscribeRoom(client *wsClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*wsClient]struct{})
	}
	h.rooms[roomID][client] = struct{}{}
}

func (h *Hub) unsubscribeRoom(client *wsClient, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) dropClient(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID, subs := range h.rooms {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.lobby, client)
}

// sendRoomSnapshot pushes the current room state to a single client, so a
// subscriber that arrives after game_start still sees the running status.
func (h *Hub) sendRoomSnapshot(ctx context.Context, client *wsClient, roomID string) {
	detail, err := h.roomService.GetRoom(ctx, roomID)
	if err != nil {
		_ = client.send(wsMessage{Type: "error_msg", Payload: map[string]string{"message": "room not found"}})
		return
	}

	_ = client.send(wsMessage{Type: "room_state", Payload: map[string]any{
		"room":    toRoomResponse(detail.Room),
		"members": toMemberResponses(detail.Members),
	}})
}

// BroadcastRoom delivers a message to every subscriber of a room.
func (h *Hub) BroadcastRoom(roomID string, msg wsMessage) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.send(msg); err != nil {
			log.WithFields(log.Fields{
				"roomID": roomID,
				"type":   msg.Type,
			}).Debug("Dropping WebSocket delivery")
		}
	}
}

// BroadcastLobby delivers a message to every lobby subscriber.
func (h *Hub) BroadcastLobby(msg wsMessage) {
	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.lobby))
	for c := range h.lobby {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		_ = c.send(msg)
	}
}

// Bind forwards bus events to connected subscribers.
func (h *Hub) Bind(bus *events.Bus) {
	bus.Subscribe(events.EventTypeRoomState, func(ctx context.Context, event events.Event) {
		e := event.(events.RoomStateEvent)
		h.BroadcastRoom(e.RoomID, wsMessage{Type: "room_state", Payload: map[string]any{
			"roomId":  e.RoomID,
			"status":  string(e.Status),
			"members": toMemberResponses(e.Members),
		}})
	})

	bus.Subscribe(events.EventTypeGameStart, func(ctx context.Context, event events.Event) {
		e := event.(events.GameStartEvent)
		h.BroadcastRoom(e.RoomID, wsMessage{Type: "game_start", Payload: map[string]any{
			"roomId":         e.RoomID,
			"commitmentHash": e.CommitmentHash,
		}})
	})

	bus.Subscribe(events.EventTypeGameEnd, func(ctx context.Context, event events.Event) {
		e := event.(events.GameEndEvent)
		h.BroadcastRoom(e.RoomID, wsMessage{Type: "game_end", Payload: map[string]any{
			"roomId":         e.RoomID,
			"winnerUserId":   e.WinnerUserID,
			"payout":         e.Payout,
			"outcomeBit":     e.OutcomeBit,
			"secretReveal":   e.SecretReveal,
			"commitmentHash": e.CommitmentHash,
		}})
	})

	bus.Subscribe(events.EventTypeGameCanceled, func(ctx context.Context, event events.Event) {
		e := event.(events.GameCanceledEvent)
		h.BroadcastRoom(e.RoomID, wsMessage{Type: "game_canceled", Payload: map[string]any{
			"roomId": e.RoomID,
			"reason": e.Reason,
		}})
	})

	bus.Subscribe(events.EventTypeLobbyUpdate, func(ctx context.Context, event events.Event) {
		h.BroadcastLobby(wsMessage{Type: "lobby_update"})
	})
}
