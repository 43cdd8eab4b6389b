package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"match-chat/contract"
	"match-chat/domain"
	"match-chat/infrastructure/wire"
	"match-chat/services"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

type Handler struct {
	log          *slog.Logger
	service      services.IChatService
	matches      contract.MatchDirectory
	history      contract.MessageHistory
	historyLimit int
}

type PresenceResponse struct {
	RoomID     string            `json:"roomId"`
	Membership []domain.Identity `json:"membership"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Presence returns who is currently in a match room, in arrival order.
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}
	membership := h.service.Presence(room)
	if membership == nil {
		membership = []domain.Identity{}
	}
	h.JSON(w, http.StatusOK, PresenceResponse{RoomID: room.String(), Membership: membership})
}

// Messages pages through the persisted posts of a match, newest first.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	room, ok := h.room(w, r)
	if !ok {
		return
	}

	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			h.Error(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = lo.ToPtr(raw)
	}

	posts, next, err := h.history.GetMessages(r.Context(), room, cursor, limit)
	if err != nil {
		h.log.Error("Failed to read history", "room_id", room, "error", err)
		h.Error(w, http.StatusServiceUnavailable, "history unavailable")
		return
	}

	page := wire.HistoryPagePayload{RoomID: room.String(), Messages: make([]wire.Post, 0, len(posts)), Cursor: next}
	for _, p := range posts {
		page.Messages = append(page.Messages, wire.Post{
			ID:        p.ID,
			AuthorID:  p.AuthorID,
			Content:   p.Content,
			Category:  string(p.Category),
			Language:  p.Language,
			CreatedAt: p.CreatedAt,
		})
	}
	h.JSON(w, http.StatusOK, page)
}

// room reads the match id from the path and checks it exists when a directory is wired.
func (h *Handler) room(w http.ResponseWriter, r *http.Request) (domain.RoomID, bool) {
	room := domain.RoomID(chi.URLParam(r, "id")).Normalize()
	if room == "" {
		h.Error(w, http.StatusBadRequest, "match id is required")
		return "", false
	}
	if h.matches == nil {
		return room, true
	}
	exists, err := h.matches.MatchExists(r.Context(), room)
	if err != nil {
		h.log.Error("Failed to look up match", "room_id", room, "error", err)
		h.Error(w, http.StatusServiceUnavailable, "match directory unavailable")
		return "", false
	}
	if !exists {
		h.Error(w, http.StatusNotFound, "match not found")
		return "", false
	}
	return room, true
}

func (h *Handler) JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Failed to write response", "error", err)
	}
}

func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, ErrorResponse{Error: message})
}
