package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"bus-booking/internal/auth"
	"bus-booking/internal/models"
)

func (h *Handler) ListTickets(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	list, err := h.Tickets.List(r.Context(), sess.UserID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListTickets: %v", err))
		http.Error(w, "Could not read ticket store", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

func (h *Handler) SaveTicket(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var ticket models.StoredTicket
	if err := json.NewDecoder(r.Body).Decode(&ticket); err != nil {
		http.Error(w, "Invalid ticket JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.QRData == "" {
		// The QR payload defaults to the booking id so gate scanners can
		// resolve the authoritative record.
		ticket.QRData = ticket.ID
	}

	if err := h.Tickets.Save(r.Context(), sess.UserID, ticket); err != nil {
		h.Logger.Error("API", fmt.Sprintf("SaveTicket: %v", err))
		http.Error(w, "Could not save ticket", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	ticketID := chi.URLParam(r, "ticketId")

	if err := h.Tickets.Delete(r.Context(), sess.UserID, ticketID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteTicket: %v", err))
		http.Error(w, "Could not delete ticket", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearTickets(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	if err := h.Tickets.Clear(r.Context(), sess.UserID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("ClearTickets: %v", err))
		http.Error(w, "Could not clear ticket store", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type recentCityRequest struct {
	Direction string `json:"direction"`
	City      string `json:"city"`
}

func (h *Handler) ListRecentCities(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	direction := r.URL.Query().Get("direction")
	if direction != "from" && direction != "to" {
		http.Error(w, "direction must be 'from' or 'to'", http.StatusBadRequest)
		return
	}

	cities, err := h.Recent.List(r.Context(), sess.UserID, direction)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListRecentCities: %v", err))
		http.Error(w, "Could not read recent cities", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, cities)
}

func (h *Handler) AddRecentCity(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var req recentCityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid recent city JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Direction != "from" && req.Direction != "to" {
		http.Error(w, "direction must be 'from' or 'to'", http.StatusBadRequest)
		return
	}

	if err := h.Recent.Add(r.Context(), sess.UserID, req.Direction, req.City); err != nil {
		h.Logger.Error("API", fmt.Sprintf("AddRecentCity: %v", err))
		http.Error(w, "Could not store recent city", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
