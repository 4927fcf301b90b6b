package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"bus-booking/internal/auth"
	"bus-booking/internal/hold"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
	"bus-booking/internal/passenger"
	"bus-booking/internal/payment"
	"bus-booking/internal/remote"
	"bus-booking/internal/storage"
	"bus-booking/internal/tickets"
	"bus-booking/internal/trips"
)

type Handler struct {
	Holds    *hold.Coordinator
	Trips    *trips.Service
	Payments *payment.Bridge
	Tickets  *tickets.Store
	Recent   *storage.RecentCities
	HoldTTL  int
	Logger   *logger.Logger
}

// Routes registers the booking flow endpoints. Every route runs behind the
// session middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/booking", func(r chi.Router) {
		r.Post("/price", h.GetPrice)
		r.Get("/seats", h.TakenSeats)
		r.Get("/discount", h.StudentDiscount)
		r.Post("/hold", h.CreateHold)
		r.Get("/hold/{reservationId}", h.GetHold)
		r.Delete("/hold/{reservationId}", h.CancelHold)
		r.Post("/confirm", h.ConfirmTrip)
		r.Post("/", h.CreateBooking)
		r.Post("/payment-session", h.InitPaymentSession)
	})

	r.Route("/tickets", func(r chi.Router) {
		r.Get("/", h.ListTickets)
		r.Post("/", h.SaveTicket)
		r.Delete("/{ticketId}", h.DeleteTicket)
		r.Delete("/", h.ClearTickets)
	})

	r.Route("/cities", func(r chi.Router) {
		r.Get("/recent", h.ListRecentCities)
		r.Post("/recent", h.AddRecentCity)
	})
}

func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var query models.PriceQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		http.Error(w, "Invalid price query JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if query.Passengers <= 0 {
		query.Passengers = 1
	}

	quote, err := h.Payments.GetPrice(r.Context(), sess, query)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPrice: %v", err))
		h.writeRemoteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, quote)
}

func (h *Handler) TakenSeats(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	route := models.RouteKey{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
		Date: r.URL.Query().Get("date"),
	}

	taken, err := h.Trips.TakenSeats(r.Context(), sess, route)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("TakenSeats: %v", err))
		h.writeRemoteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string][]int{"takenSeats": taken})
}

func (h *Handler) StudentDiscount(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())
	discount := h.Trips.StudentDiscount(r.Context(), sess, r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	h.writeJSON(w, http.StatusOK, discount)
}

type seatRequest struct {
	SeatNumber int                 `json:"seatNumber"`
	Passenger  passenger.Passenger `json:"passenger"`
}

type legRequest struct {
	From  string        `json:"from"`
	To    string        `json:"to"`
	Date  string        `json:"date"`
	Seats []seatRequest `json:"seats"`
}

type createHoldRequest struct {
	Outbound   legRequest  `json:"outbound"`
	Return     *legRequest `json:"return,omitempty"`
	TTLSeconds int         `json:"ttlSeconds,omitempty"`
}

type holdView struct {
	Hold             *models.ReservationHold `json:"hold"`
	RemainingSeconds int                     `json:"remaining_seconds"`
}

type createHoldResponse struct {
	Outbound holdView  `json:"outbound"`
	Return   *holdView `json:"return,omitempty"`
}

func (h *Handler) CreateHold(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var req createHoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid hold request JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	ttl := req.TTLSeconds
	if ttl <= 0 {
		ttl = h.HoldTTL
	}

	legs := append([]legRequest{req.Outbound}, derefLeg(req.Return)...)

	var allErrs []passenger.ValidationError
	for _, leg := range legs {
		for _, seat := range leg.Seats {
			allErrs = append(allErrs, passenger.Validate(seat.Passenger)...)
		}
	}
	if len(allErrs) > 0 {
		h.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errors": allErrs})
		return
	}

	for _, leg := range legs {
		if len(trips.AvailableDates([]string{leg.Date}, time.Now())) == 0 {
			http.Error(w, "travel date must be today or later", http.StatusBadRequest)
			return
		}

		// Early conflict answer from the seat map. The backend still
		// enforces exclusivity on reserve, so a failed lookup only skips
		// the pre-check.
		taken, err := h.Trips.TakenSeats(r.Context(), sess, models.RouteKey{From: leg.From, To: leg.To, Date: leg.Date})
		if err != nil {
			h.Logger.Warn("API", fmt.Sprintf("seat pre-check skipped for %s-%s: %v", leg.From, leg.To, err))
			continue
		}
		for _, seat := range leg.Seats {
			if !trips.SeatFree(taken, seat.SeatNumber) {
				http.Error(w, fmt.Sprintf("seat %d is already taken", seat.SeatNumber), http.StatusConflict)
				return
			}
		}
	}

	outRoute, outSeats := legToHold(req.Outbound)

	var resp createHoldResponse
	if req.Return == nil {
		outbound, err := h.Holds.CreateHold(r.Context(), sess, outRoute, outSeats, ttl)
		if err != nil {
			h.writeHoldError(w, err)
			return
		}
		resp.Outbound = holdView{Hold: outbound, RemainingSeconds: ttl}
	} else {
		retRoute, retSeats := legToHold(*req.Return)
		outbound, ret, err := h.Holds.CreateRoundTrip(r.Context(), sess, outRoute, outSeats, retRoute, retSeats, ttl)
		if err != nil {
			h.writeHoldError(w, err)
			return
		}
		resp.Outbound = holdView{Hold: outbound, RemainingSeconds: ttl}
		resp.Return = &holdView{Hold: ret, RemainingSeconds: ttl}
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")

	snapshot, remaining, err := h.Holds.Get(reservationID)
	if err != nil {
		http.Error(w, "Hold not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, holdView{Hold: snapshot, RemainingSeconds: remaining})
}

func (h *Handler) CancelHold(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "reservationId")

	if err := h.Holds.CancelHold(r.Context(), reservationID); err != nil {
		if errors.Is(err, hold.ErrHoldNotFound) {
			http.Error(w, "Hold not found", http.StatusNotFound)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CancelHold: %v", err))
		http.Error(w, "Could not cancel hold: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type confirmTripRequest struct {
	OutboundID string `json:"outboundId"`
	ReturnID   string `json:"returnId,omitempty"`
}

func (h *Handler) ConfirmTrip(w http.ResponseWriter, r *http.Request) {
	var req confirmTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid confirm request JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.OutboundID == "" {
		http.Error(w, "outboundId is required", http.StatusBadRequest)
		return
	}

	result := h.Holds.ConfirmTrip(r.Context(), req.OutboundID, req.ReturnID)
	status := http.StatusOK
	if !result.FullySucceeded() {
		// Partial outcomes still return the full per-leg breakdown.
		status = http.StatusConflict
	}
	h.writeJSON(w, status, result)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var req models.BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid booking request JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	booking, err := h.Payments.CreateBooking(r.Context(), sess, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: %v", err))
		h.writeRemoteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, booking)
}

type paymentSessionRequest struct {
	BookingID string  `json:"bookingId"`
	Total     float64 `json:"total"`
}

func (h *Handler) InitPaymentSession(w http.ResponseWriter, r *http.Request) {
	sess := auth.FromContext(r.Context())

	var req paymentSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid payment session JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	session, err := h.Payments.InitSession(r.Context(), sess, req.BookingID, req.Total)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidTotal):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, payment.ErrSuperseded):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, remote.ErrSessionIncomplete):
			http.Error(w, "Payment is unavailable right now, please retry later", http.StatusBadGateway)
		default:
			h.writeRemoteError(w, err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, session)
}

func legToHold(leg legRequest) (models.RouteKey, []models.SeatOccupant) {
	route := models.RouteKey{From: leg.From, To: leg.To, Date: leg.Date}
	seats := make([]models.SeatOccupant, len(leg.Seats))
	for i, s := range leg.Seats {
		seats[i] = models.SeatOccupant{
			SeatNumber:    s.SeatNumber,
			PassengerName: s.Passenger.FullName(),
		}
	}
	return route, seats
}

func derefLeg(leg *legRequest) []legRequest {
	if leg == nil {
		return nil
	}
	return []legRequest{*leg}
}

func (h *Handler) writeHoldError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrSeatUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, hold.ErrRouteAlreadyHeld):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, hold.ErrNoSeats), errors.Is(err, hold.ErrDuplicateSeats):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.writeRemoteError(w, err)
	}
}

// writeRemoteError surfaces backend validation messages verbatim and folds
// everything else into a generic alert, mirroring how the flow treats
// transport failures.
func (h *Handler) writeRemoteError(w http.ResponseWriter, err error) {
	var apiErr *remote.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		http.Error(w, apiErr.Error(), apiErr.Status)
		return
	}
	http.Error(w, "Booking service is unavailable, please try again", http.StatusBadGateway)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// RequestLogger logs one line per request the way the mobile client logged
// its API calls.
func RequestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.LogAPI(r.Method, r.URL.Path, "done", time.Since(start).String())
		})
	}
}
