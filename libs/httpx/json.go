package httpx

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// WriteError writes {"error": msg, "code": code}. code lets clients tell a
// booking conflict from other failures without parsing the message.
func WriteError(w http.ResponseWriter, status int, code string, msg string) {
	WriteJSON(w, status, errorBody{Error: msg, Code: code})
}
