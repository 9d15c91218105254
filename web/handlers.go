package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"coinduel/models"

	log "github.com/sirupsen/logrus"
)

// Response DTOs. Rooms are always projected through these types so the
// fairness secret can never leak into a payload before reveal.

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

type roomResponse struct {
	ID             string     `json:"id"`
	WagerType      string     `json:"wagerType"`
	Bet            int64      `json:"bet"`
	Status         string     `json:"status"`
	CommitmentHash string     `json:"commitmentHash"`
	CreatedAt      time.Time  `json:"createdAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

type roomSummaryResponse struct {
	ID             string `json:"id"`
	WagerType      string `json:"wagerType"`
	Bet            int64  `json:"bet"`
	Status         string `json:"status"`
	CommitmentHash string `json:"commitmentHash"`
	MemberCount    int    `json:"memberCount"`
}

type memberResponse struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Confirmed bool   `json:"confirmed"`
	Result    string `json:"result"`
}

type ledgerEntryResponse struct {
	ID           string         `json:"id"`
	ChangeAmount int64          `json:"changeAmount"`
	Kind         string         `json:"kind"`
	RoomID       *string        `json:"roomId,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func toRoomResponse(room *models.Room) roomResponse {
	return roomResponse{
		ID:             room.ID,
		WagerType:      room.WagerType,
		Bet:            room.BetAmount,
		Status:         string(room.Status),
		CommitmentHash: room.CommitmentHash,
		CreatedAt:      room.CreatedAt,
		FinishedAt:     room.FinishedAt,
	}
}

func toMemberResponses(members []*models.RoomMember) []memberResponse {
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID:    m.UserID,
			Username:  m.Username,
			Confirmed: m.Confirmed,
			Result:    string(m.Result),
		})
	}
	return out
}

// GET /api/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	user, err := s.userService.GetUser(r.Context(), identity.UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": userResponse{ID: user.ID, Username: user.Username, Balance: user.Balance},
	})
}

// GET /api/me/ledger
func (s *Server) handleMyLedger(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	entries, err := s.userService.GetLedger(r.Context(), identity.UserID, 50)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, ledgerEntryResponse{
			ID:           e.ID,
			ChangeAmount: e.ChangeAmount,
			Kind:         string(e.Kind),
			RoomID:       e.RoomID,
			Meta:         e.Meta,
			CreatedAt:    e.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// GET /api/rooms
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.roomService.ListRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	out := make([]roomSummaryResponse, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomSummaryResponse{
			ID:             room.ID,
			WagerType:      room.WagerType,
			Bet:            room.BetAmount,
			Status:         string(room.Status),
			CommitmentHash: room.CommitmentHash,
			MemberCount:    room.MemberCount,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"rooms": out})
}

type createRoomRequest struct {
	WagerType string `json:"wagerType"`
	Bet       int64  `json:"bet"`
}

// POST /api/rooms
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Bet == 0 {
		req.Bet = s.defaultBet
	}

	room, err := s.roomService.CreateRoom(r.Context(), identity.UserID, req.WagerType, req.Bet)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"roomId": room.ID})
}

// GET /api/rooms/{id}
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	detail, err := s.roomService.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"room":    toRoomResponse(detail.Room),
		"members": toMemberResponses(detail.Members),
	})
}

// POST /api/rooms/{id}/join
func (s *Server) handleJoinRoom(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	if err := s.roomService.JoinRoom(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// POST /api/rooms/{id}/confirm
func (s *Server) handleConfirmReady(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFrom(r.Context())

	if err := s.gameService.ConfirmReady(r.Context(), identity.UserID, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrUserNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrRoomNotJoinable),
		errors.Is(err, models.ErrAlreadyMember),
		errors.Is(err, models.ErrNotAMember):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
