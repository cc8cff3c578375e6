// Package httputil provides JSON response envelopes, request parsing
// and the generic HTTP middleware shared by every handler.
package httputil

import (
	"encoding/json"
	"net/http"
)

// MessageResponse is the error envelope used by auth and resource
// handlers: {"message": "..."}.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 response with JSON data.
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a 201 response with JSON data.
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes an empty 204 response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteMessage writes a {"message": ...} envelope with the given status.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(MessageResponse{Message: message})
}

// WriteBadRequest writes a 400 message envelope.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes a 401 message envelope.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a 403 message envelope.
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a 404 message envelope.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a 409 message envelope.
func WriteConflict(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a 429 message envelope.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes a 500 with a generic {"error": ...}
// envelope. Internal details stay in the logs, never in the response.
func WriteInternalError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
