package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cwrk-planet/chat-service/internal/domain"
	"github.com/cwrk-planet/chat-service/internal/service"
	httpmw "github.com/cwrk-planet/chat-service/internal/transport/http/middleware"
)

type Handler struct {
	roomSvc   *service.RoomService
	chatSvc   *service.ChatService
	notifySvc *service.NotificationService
}

func NewHandler(room *service.RoomService, chat *service.ChatService, notify *service.NotificationService) *Handler {
	return &Handler{
		roomSvc:   room,
		chatSvc:   chat,
		notifySvc: notify,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to a status; anything unknown is a 500.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		status, msg = http.StatusNotFound, "room not found"
	case errors.Is(err, domain.ErrUserNotFound):
		status, msg = http.StatusNotFound, "user not found"
	case errors.Is(err, domain.ErrAlreadyExists):
		status, msg = http.StatusConflict, "already exists"
	}
	if status == http.StatusInternalServerError {
		httpmw.L(r.Context()).Error("handler."+op, "err", err)
	}
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func queryInt(r *http.Request, key string, def int) int {
	if s := r.URL.Query().Get(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

// POST /rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	room, err := h.roomSvc.CreateRoom(r.Context(), req.Name, req.Type, domain.Location{
		Lat:   req.Location.Lat,
		Lon:   req.Location.Lon,
		Label: req.Location.Label,
	})
	if err != nil {
		writeError(w, r, "CreateRoom", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRoomItem(room, false))
}

// GET /rooms?limit=&cursor=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, next, err := h.roomSvc.ListRooms(r.Context(), queryInt(r, "limit", 20), r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, "ListRooms", err)
		return
	}
	favs, err := h.roomSvc.Favorites(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "ListRooms", err)
		return
	}

	resp := RoomsListResponse{Items: make([]RoomItem, 0, len(rooms)), NextCursor: next}
	for i := range rooms {
		resp.Items = append(resp.Items, toRoomItem(&rooms[i], favs[rooms[i].ID]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /rooms/{id}
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	room, err := h.roomSvc.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	favs, err := h.roomSvc.Favorites(r.Context(), httpmw.UserIDFromCtx(r.Context()))
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomItem(room, favs[id]))
}

// GET /rooms/{id}/messages?cursor=&limit=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	items, next, err := h.chatSvc.History(r.Context(), roomID, r.URL.Query().Get("cursor"), queryInt(r, "limit", 50))
	if err != nil {
		writeError(w, r, "ListMessages", err)
		return
	}
	resp := MessagesResponse{Items: make([]MessageItem, 0, len(items)), NextCursor: next}
	for _, m := range items {
		resp.Items = append(resp.Items, toMessageItem(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// POST /rooms/{id}/favorite
func (h *Handler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.roomSvc.AddFavorite(r.Context(), httpmw.UserIDFromCtx(r.Context()), roomID); err != nil {
		writeError(w, r, "AddFavorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": roomID, "favorite": true})
}

// DELETE /rooms/{id}/favorite
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.roomSvc.RemoveFavorite(r.Context(), httpmw.UserIDFromCtx(r.Context()), roomID); err != nil {
		writeError(w, r, "RemoveFavorite", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roomId": roomID, "favorite": false})
}

// POST /rooms/{id}/visit
func (h *Handler) VisitRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if err := h.notifySvc.VisitRoom(r.Context(), httpmw.UserIDFromCtx(r.Context()), roomID); err != nil {
		writeError(w, r, "VisitRoom", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /rooms/{id}/notifications
func (h *Handler) NotificationEligibility(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	d, err := h.notifySvc.ShouldSendNotification(r.Context(), httpmw.UserIDFromCtx(r.Context()), roomID)
	if err != nil {
		writeError(w, r, "NotificationEligibility", err)
		return
	}
	writeJSON(w, http.StatusOK, EligibilityResponse{RoomID: roomID, Allowed: d.Allowed, Reason: d.Reason})
}

// POST /push/endpoints
func (h *Handler) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid json"})
		return
	}
	ep := domain.PushEndpoint{Endpoint: req.Endpoint, Keys: req.Keys}
	if err := h.notifySvc.RegisterEndpoint(r.Context(), httpmw.UserIDFromCtx(r.Context()), ep); err != nil {
		writeError(w, r, "RegisterEndpoint", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"endpoint": ep.Endpoint})
}

// DELETE /push/endpoints
func (h *Handler) UnregisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req UnregisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "endpoint is required"})
		return
	}
	if err := h.notifySvc.UnregisterEndpoint(r.Context(), httpmw.UserIDFromCtx(r.Context()), req.Endpoint); err != nil {
		writeError(w, r, "UnregisterEndpoint", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
