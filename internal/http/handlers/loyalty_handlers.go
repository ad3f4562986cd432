package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/perrona-loyalty/internal/domain"
	"github.com/diagnosis/perrona-loyalty/internal/http/response"
)

// RegisterCustomer handles new customer registration, which also opens the
// customer's first card.
func (h *Handlers) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterCustomerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	summary, err := h.loyaltyService.RegisterCustomer(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// LookupCard handles phone lookup: customer, open card (created on demand),
// stamp count, current discount and whether a stamp may be granted today.
func (h *Handlers) LookupCard(w http.ResponseWriter, r *http.Request) {
	phone := chi.URLParam(r, "phone")

	summary, err := h.loyaltyService.LookupByPhone(r.Context(), phone)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// GrantStamp handles the once-per-day stamp action.
func (h *Handlers) GrantStamp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "Invalid card ID")
		return
	}

	summary, err := h.loyaltyService.GrantStamp(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// ListTiers handles the active reward catalog.
func (h *Handlers) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.loyaltyService.ListTiers(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if tiers == nil {
		tiers = []domain.DiscountTier{}
	}
	writeJSON(w, http.StatusOK, tiers)
}
