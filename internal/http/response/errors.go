package response

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeNotFound       = "NOT_FOUND"
	CodeDuplicatePhone = "DUPLICATE_PHONE"
	CodeAlreadyStamped = "ALREADY_STAMPED_TODAY"
	CodeCardClosed     = "CARD_CLOSED"
	CodeInternalError  = "INTERNAL_ERROR"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func DuplicatePhone(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeDuplicatePhone)
}

func AlreadyStamped(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeAlreadyStamped)
}

func CardClosed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeCardClosed)
}
