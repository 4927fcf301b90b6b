package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"bus-booking/internal/auth"
	"bus-booking/internal/hold"
	holdredis "bus-booking/internal/hold/redis"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
	"bus-booking/internal/payment"
	"bus-booking/internal/remote"
	"bus-booking/internal/storage"
	"bus-booking/internal/tickets"
	"bus-booking/internal/tickets/qr"
	"bus-booking/internal/trips"
)

// fakeBackend is an httptest stand-in for the remote booking API.
func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/tickets/get-price", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.Quote{
			LegPrices:     []float64{140},
			Fee:           10,
			Total:         150,
			Currency:      "RON",
			DepartureTime: "08:30",
			ArrivalTime:   "14:45",
		})
	})
	mux.HandleFunc("/seats/reserve-seats-temp", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"reservationId": "r1"})
	})
	mux.HandleFunc("/seats/confirm-reservation", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/seats/cancel-reservation", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/available-seats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]int{"takenSeats": []int{3, 12}})
	})
	mux.HandleFunc("/bookings", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.Booking{BookingID: "b1", Total: 150, Currency: "RON"})
	})
	mux.HandleFunc("/payments/payment-sheet", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.PaymentSession{
			PaymentIntent: "pi_1",
			EphemeralKey:  "ek_1",
			Customer:      "cus_1",
		})
	})
	mux.HandleFunc("/route-student-discount", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.StudentDiscount{Percent: 20, Available: true})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()
	log := logger.NewLogger()

	backend := fakeBackend(t)
	client := remote.NewClient(backend.URL, backend.Client(), log)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	locks := holdredis.NewSessionLock(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), log)

	coordinator := hold.NewCoordinator(client, locks, nil, hold.NewClock(), log)
	t.Cleanup(coordinator.Close)

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })
	kv := storage.NewKV(bun.NewDB(sqldb, sqlitedialect.New()))
	require.NoError(t, kv.Init(context.Background()))

	h := &Handler{
		Holds:    coordinator,
		Trips:    trips.NewService(client, log),
		Payments: payment.NewBridge(client, 0, log),
		Tickets:  tickets.NewStore(kv, qr.NewGenerator(t.TempDir()), nil, log),
		Recent:   storage.NewRecentCities(kv),
		HoldTTL:  900,
		Logger:   log,
	}

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware())
		h.Routes(r)
	})
	return r
}

// futureDate returns a travel date that always passes availability checks.
func futureDate() string {
	return time.Now().AddDate(0, 1, 0).Format("2006-01-02")
}

func signedToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router chi.Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRequestsWithoutTokenAreRejected(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/tickets/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFullBookingFlowCarriesPriceIntoStoredTicket(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	// 1. Price the itinerary.
	rec := doJSON(t, router, http.MethodPost, "/booking/price", token, models.PriceQuery{
		From: "Chișinău", To: "Brașov", Date: futureDate(), Passengers: 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var quote models.Quote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &quote))
	assert.Equal(t, 150.0, quote.Total)
	assert.Equal(t, "RON", quote.Currency)

	// 2. Hold a seat.
	rec = doJSON(t, router, http.MethodPost, "/booking/hold", token, map[string]interface{}{
		"outbound": map[string]interface{}{
			"from": "Chișinău", "to": "Brașov", "date": futureDate(),
			"seats": []map[string]interface{}{
				{"seatNumber": 7, "passenger": map[string]interface{}{
					"firstName": "Ana", "lastName": "Popescu",
					"email": "ana@example.com", "phone": "+37369123456", "lead": true,
				}},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var holdResp createHoldResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &holdResp))
	assert.Equal(t, "r1", holdResp.Outbound.Hold.ReservationID)
	assert.Equal(t, models.HoldActive, holdResp.Outbound.Hold.Status)
	assert.Equal(t, 900, holdResp.Outbound.RemainingSeconds)

	// 3. Confirm the hold.
	rec = doJSON(t, router, http.MethodPost, "/booking/confirm", token, confirmTripRequest{OutboundID: "r1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmation models.TripConfirmation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &confirmation))
	assert.True(t, confirmation.FullySucceeded())

	// 4. Create the booking record.
	rec = doJSON(t, router, http.MethodPost, "/booking/", token, models.BookingRequest{
		From: "Chișinău", To: "Brașov", Date: futureDate(), Passenger: "Ana Popescu",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var booking models.Booking
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booking))
	require.Equal(t, "b1", booking.BookingID)

	// 5. Initialize the payment session with the quoted total.
	rec = doJSON(t, router, http.MethodPost, "/booking/payment-session", token, paymentSessionRequest{
		BookingID: booking.BookingID, Total: quote.Total,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var session models.PaymentSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.True(t, session.Complete())

	// 6. Save the paid ticket; the displayed price is what gets stored.
	rec = doJSON(t, router, http.MethodPost, "/tickets/", token, models.StoredTicket{
		From: "Chișinău", To: "Brașov", Date: futureDate(),
		Price: quote.Total, Currency: quote.Currency, PassengerName: "Ana Popescu",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/tickets/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.StoredTicket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 150.0, list[0].Price)
	assert.Equal(t, "RON", list[0].Currency)
	assert.NotEmpty(t, list[0].QRData)
	assert.NotEmpty(t, list[0].PDFURI)
}

func TestCreateHoldRejectsInvalidPassenger(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodPost, "/booking/hold", token, map[string]interface{}{
		"outbound": map[string]interface{}{
			"from": "Chișinău", "to": "Brașov", "date": futureDate(),
			"seats": []map[string]interface{}{
				{"seatNumber": 7, "passenger": map[string]interface{}{
					"firstName": "", "lastName": "Popescu",
				}},
			},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Errors []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "firstName", resp.Errors[0].Field)
}

func TestSecondHoldOnSameRouteConflicts(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	body := map[string]interface{}{
		"outbound": map[string]interface{}{
			"from": "Chișinău", "to": "Brașov", "date": futureDate(),
			"seats": []map[string]interface{}{
				{"seatNumber": 7, "passenger": map[string]interface{}{
					"firstName": "Ana", "lastName": "Popescu",
					"email": "ana@example.com", "phone": "+37369123456", "lead": true,
				}},
			},
		},
	}

	rec := doJSON(t, router, http.MethodPost, "/booking/hold", token, body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/booking/hold", token, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateHoldRejectsPastDate(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodPost, "/booking/hold", token, map[string]interface{}{
		"outbound": map[string]interface{}{
			"from": "Chișinău", "to": "Brașov", "date": "2020-01-01",
			"seats": []map[string]interface{}{
				{"seatNumber": 7, "passenger": map[string]interface{}{
					"firstName": "Ana", "lastName": "Popescu",
					"email": "ana@example.com", "phone": "+37369123456", "lead": true,
				}},
			},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "travel date")
}

func TestCreateHoldRejectsSeatAlreadyTaken(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	// Seat 3 is on the backend's taken list; the conflict answer comes
	// from the seat map without a reserve attempt.
	rec := doJSON(t, router, http.MethodPost, "/booking/hold", token, map[string]interface{}{
		"outbound": map[string]interface{}{
			"from": "Chișinău", "to": "Brașov", "date": futureDate(),
			"seats": []map[string]interface{}{
				{"seatNumber": 3, "passenger": map[string]interface{}{
					"firstName": "Ana", "lastName": "Popescu",
					"email": "ana@example.com", "phone": "+37369123456", "lead": true,
				}},
			},
		},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "seat 3")

	// Had the reserve call gone out, hold r1 would exist locally.
	rec = doJSON(t, router, http.MethodGet, "/booking/hold/r1", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTakenSeatsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodGet, "/booking/seats?from=Chi%C8%99in%C4%83u&to=Bra%C8%99ov&date=2030-06-01", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []int{3, 12}, resp["takenSeats"])
}

func TestRecentCitiesEndpoints(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodPost, "/cities/recent", token, recentCityRequest{Direction: "from", City: "Chișinău"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, router, http.MethodPost, "/cities/recent", token, recentCityRequest{Direction: "from", City: "Bălți"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/cities/recent?direction=from", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cities []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cities))
	assert.Equal(t, []string{"Bălți", "Chișinău"}, cities)

	rec = doJSON(t, router, http.MethodGet, "/cities/recent?direction=sideways", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMissingTicketIsNoop(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodDelete, "/tickets/never-existed", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetUnknownHoldReturns404(t *testing.T) {
	router := newTestRouter(t)
	token := signedToken(t, "user123")

	rec := doJSON(t, router, http.MethodGet, "/booking/hold/missing", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
