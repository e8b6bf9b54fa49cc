package response

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// Replies is the body returned for every chat exchange.
type Replies struct {
	Replies []string `json:"replies"`
}

// WriteReplies writes the bot's reply lines, always as a JSON array.
func WriteReplies(w http.ResponseWriter, replies []string) {
	if replies == nil {
		replies = []string{}
	}
	WriteJSON(w, http.StatusOK, Replies{Replies: replies})
}
