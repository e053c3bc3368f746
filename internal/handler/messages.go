package handler

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/johndosdos/huddle/internal/chat"
	"github.com/johndosdos/huddle/internal/model"
)

type messagesResponse struct {
	OK       bool            `json:"ok"`
	Messages []model.Message `json:"messages"`
}

type roomsResponse struct {
	OK    bool                `json:"ok"`
	Rooms []model.RoomSummary `json:"rooms"`
}

type presenceResponse struct {
	OK    bool                  `json:"ok"`
	Users []model.PresenceEntry `json:"users"`
}

// ServePrivateHistory returns the full conversation between {a} and {b}.
// Either order of the pair yields the same log.
func ServePrivateHistory(router *chat.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b := pathParam(r, "a"), pathParam(r, "b")
		if a == "" || b == "" {
			respondError(w, r, http.StatusBadRequest, "two usernames are required")
			return
		}

		respondJSON(w, r, http.StatusOK, messagesResponse{
			OK:       true,
			Messages: router.Private().FullHistory(a, b),
		})
	}
}

// ServeRoomHistory returns the recent history of {room}, bounded by the
// optional limit query parameter.
func ServeRoomHistory(router *chat.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room := pathParam(r, "room")
		if !router.Rooms().Exists(room) {
			respondError(w, r, http.StatusNotFound, "room not found")
			return
		}

		limit := chat.HistoryLimit
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				respondError(w, r, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, chat.HistoryLimit)
		}

		respondJSON(w, r, http.StatusOK, messagesResponse{
			OK:       true,
			Messages: router.Rooms().RecentHistory(room, limit),
		})
	}
}

// ServeRooms lists every room that has been opened.
func ServeRooms(router *chat.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, roomsResponse{
			OK:    true,
			Rooms: router.Rooms().Rooms(),
		})
	}
}

// ServePresence returns the current online list.
func ServePresence(router *chat.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, r, http.StatusOK, presenceResponse{
			OK:    true,
			Users: router.Presence().CurrentList(),
		})
	}
}

// pathParam returns the decoded URL parameter key. chi matches on the raw
// path when the request escapes characters like & or /, leaving the
// parameter percent-encoded.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}
