package response

import (
	"encoding/json"
	"net/http"
)

// Body is embedded by success payloads so every response carries "success".
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK returns a success Body with an optional message.
func OK(message string) Body {
	return Body{Success: true, Message: message}
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func JSON(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusOK, v)
}

func Accepted(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusAccepted, v)
}

func Created(w http.ResponseWriter, v any) {
	writeJSON(w, http.StatusCreated, v)
}

// Status writes v with an arbitrary status code.
func Status(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, v)
}

func Error(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
