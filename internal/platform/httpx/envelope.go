package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the uniform success payload wrapper returned by every endpoint.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes a success envelope with the given status, message, and data.
func WriteJSON(w http.ResponseWriter, status int, message string, data any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Success: true,
		Message: sanitize(message, 512),
		Data:    data,
	})
}
