package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coinduel/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockUserService struct {
	mock.Mock
}

func (m *mockUserService) GetOrCreateUser(ctx context.Context, userID, username string) (*models.User, error) {
	args := m.Called(ctx, userID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserService) GetLedger(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerEntry), args.Error(1)
}

func (m *mockUserService) AdjustBalance(ctx context.Context, userID string, delta int64, reason string) (*models.User, error) {
	args := m.Called(ctx, userID, delta, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type mockRoomService struct {
	mock.Mock
}

func (m *mockRoomService) CreateRoom(ctx context.Context, callerID, wagerType string, betAmount int64) (*models.Room, error) {
	args := m.Called(ctx, callerID, wagerType, betAmount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Room), args.Error(1)
}

func (m *mockRoomService) JoinRoom(ctx context.Context, callerID, roomID string) error {
	args := m.Called(ctx, callerID, roomID)
	return args.Error(0)
}

func (m *mockRoomService) GetRoom(ctx context.Context, roomID string) (*models.RoomDetail, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.RoomDetail), args.Error(1)
}

func (m *mockRoomService) ListRooms(ctx context.Context) ([]*models.RoomSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.RoomSummary), args.Error(1)
}

type mockGameService struct {
	mock.Mock
}

func (m *mockGameService) ConfirmReady(ctx context.Context, callerID, roomID string) error {
	args := m.Called(ctx, callerID, roomID)
	return args.Error(0)
}

func (m *mockGameService) Resolve(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *mockGameService) Stop() {
	m.Called()
}

type handlerFixture struct {
	server      *Server
	hub         *Hub
	userService *mockUserService
	roomService *mockRoomService
	gameService *mockGameService
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	userService := new(mockUserService)
	roomService := new(mockRoomService)
	gameService := new(mockGameService)
	hub := NewHub(roomService)

	server := NewServer(Config{
		Addr:        ":0",
		TokenSecret: "test-secret",
		DefaultBet:  100,
	}, userService, roomService, gameService, hub)

	// Every authenticated request provisions the caller
	userService.On("GetOrCreateUser", mock.Anything, "user-a", "alice").
		Return(&models.User{ID: "user-a", Username: "alice", Balance: 1000}, nil).Maybe()

	return &handlerFixture{
		server:      server,
		hub:         hub,
		userService: userService,
		roomService: roomService,
		gameService: gameService,
	}
}

func (f *handlerFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Authorization", "Bearer "+mintToken(t, "test-secret", "user-a", "alice"))

	w := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(w, r)
	return w
}

func TestHandleMe(t *testing.T) {
	f := newHandlerFixture(t)
	f.userService.On("GetUser", mock.Anything, "user-a").
		Return(&models.User{ID: "user-a", Username: "alice", Balance: 740}, nil)

	w := f.do(t, "GET", "/api/me", "")

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		User userResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "user-a", resp.User.ID)
	assert.Equal(t, int64(740), resp.User.Balance)
}

func TestHandleMe_Unauthorized(t *testing.T) {
	f := newHandlerFixture(t)

	r := httptest.NewRequest("GET", "/api/me", nil)
	w := httptest.NewRecorder()
	f.server.httpServer.Handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleCreateRoom_DefaultBet(t *testing.T) {
	f := newHandlerFixture(t)
	f.roomService.On("CreateRoom", mock.Anything, "user-a", "", int64(100)).
		Return(&models.Room{ID: "room-1", Status: models.RoomStatusOpen}, nil)

	w := f.do(t, "POST", "/api/rooms", `{}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "room-1", resp["roomId"])
	f.roomService.AssertExpectations(t)
}

func TestHandleCreateRoom_ExplicitBet(t *testing.T) {
	f := newHandlerFixture(t)
	f.roomService.On("CreateRoom", mock.Anything, "user-a", "coinflip", int64(250)).
		Return(&models.Room{ID: "room-1", Status: models.RoomStatusOpen}, nil)

	w := f.do(t, "POST", "/api/rooms", `{"wagerType":"coinflip","bet":250}`)

	require.Equal(t, http.StatusOK, w.Code)
	f.roomService.AssertExpectations(t)
}

func TestHandleGetRoom_NeverExposesSecret(t *testing.T) {
	f := newHandlerFixture(t)
	f.roomService.On("GetRoom", mock.Anything, "room-1").Return(&models.RoomDetail{
		Room: &models.Room{
			ID:             "room-1",
			WagerType:      models.WagerTypeCoinflip,
			BetAmount:      100,
			Status:         models.RoomStatusRunning,
			Secret:         "super-secret-value",
			CommitmentHash: "commitment",
			CreatedAt:      time.Now(),
		},
		Members: []*models.RoomMember{
			{UserID: "user-a", Username: "alice", Confirmed: true, Result: models.MemberResultPending},
			{UserID: "user-b", Username: "bob", Confirmed: true, Result: models.MemberResultPending},
		},
	}, nil)

	w := f.do(t, "GET", "/api/rooms/room-1", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "super-secret-value")
	assert.Contains(t, w.Body.String(), "commitment")

	var resp struct {
		Room    roomResponse     `json:"room"`
		Members []memberResponse `json:"members"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Room.Status)
	require.Len(t, resp.Members, 2)
}

func TestHandleGetRoom_NotFound(t *testing.T) {
	f := newHandlerFixture(t)
	f.roomService.On("GetRoom", mock.Anything, "missing").
		Return(nil, models.ErrRoomNotFound)

	w := f.do(t, "GET", "/api/rooms/missing", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleConfirmReady_Conflict(t *testing.T) {
	f := newHandlerFixture(t)
	f.gameService.On("ConfirmReady", mock.Anything, "user-a", "room-1").
		Return(models.ErrRoomNotJoinable)

	w := f.do(t, "POST", "/api/rooms/room-1/confirm", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleJoinRoom(t *testing.T) {
	f := newHandlerFixture(t)
	f.roomService.On("JoinRoom", mock.Anything, "user-a", "room-1").Return(nil)

	w := f.do(t, "POST", "/api/rooms/room-1/join", "")

	assert.Equal(t, http.StatusOK, w.Code)
	f.roomService.AssertExpectations(t)
}
