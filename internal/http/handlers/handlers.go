package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
	"github.com/diagnosis/perrona-loyalty/internal/http/response"
	"github.com/diagnosis/perrona-loyalty/internal/service"
)

type Handlers struct {
	loyaltyService service.LoyaltyService
}

func New(loyaltyService service.LoyaltyService) *Handlers {
	return &Handlers{loyaltyService: loyaltyService}
}

// Helper functions for common response patterns
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeDomainError maps service errors onto the HTTP error taxonomy.
// AlreadyStampedToday and DuplicatePhone are expected operator-facing
// outcomes, not faults.
func writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidInput:
		response.BadRequest(w, "Name and a valid phone number are required")
	case domain.ErrNotFound:
		response.NotFound(w, "Customer or card not found")
	case domain.ErrDuplicatePhone:
		response.DuplicatePhone(w, "That phone number is already registered")
	case domain.ErrAlreadyStampedToday:
		response.AlreadyStamped(w, "Cannot stamp today: card opened today or already stamped")
	case domain.ErrCardClosed:
		response.CardClosed(w, "Card is closed")
	default:
		response.InternalError(w, "Something went wrong")
	}
}
