package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"bus-booking/internal/auth"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

// Client talks to the remote booking API. The API owns seat exclusivity,
// pricing and ticket issuance; the gateway only orchestrates calls.
type Client struct {
	base   string
	client *http.Client
	log    *logger.Logger
}

func NewClient(base string, client *http.Client, log *logger.Logger) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: client,
		log:    log,
	}
}

type holdRequest struct {
	From      string                `json:"from"`
	To        string                `json:"to"`
	Date      string                `json:"date"`
	Seats     []models.SeatOccupant `json:"seats"`
	ExpiresIn int                   `json:"expiresIn"`
}

type holdResponse struct {
	ReservationID string `json:"reservationId"`
}

type reservationRef struct {
	ReservationID string `json:"reservationId"`
}

type seatsResponse struct {
	TakenSeats []int `json:"takenSeats"`
}

// GetPrice fetches a quote for the itinerary and passenger count.
func (c *Client) GetPrice(ctx context.Context, sess *auth.Session, q models.PriceQuery) (*models.Quote, error) {
	var quote models.Quote
	if err := c.post(ctx, sess, "/tickets/get-price", q, &quote); err != nil {
		return nil, err
	}
	return &quote, nil
}

// CreateHold requests a time-boxed exclusive lock on the given seats.
// A 409 from the backend maps to ErrSeatUnavailable.
func (c *Client) CreateHold(ctx context.Context, sess *auth.Session, route models.RouteKey, seats []models.SeatOccupant, ttlSeconds int) (string, error) {
	req := holdRequest{
		From:      route.From,
		To:        route.To,
		Date:      route.Date,
		Seats:     seats,
		ExpiresIn: ttlSeconds,
	}

	var resp holdResponse
	if err := c.post(ctx, sess, "/seats/reserve-seats-temp", req, &resp); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return "", fmt.Errorf("%w: %s", ErrSeatUnavailable, apiErr.Message)
		}
		return "", err
	}
	if resp.ReservationID == "" {
		return "", &APIError{Status: http.StatusBadGateway, Message: "backend returned no reservation id"}
	}
	return resp.ReservationID, nil
}

// CancelHold releases a temporary lock.
func (c *Client) CancelHold(ctx context.Context, sess *auth.Session, reservationID string) error {
	return c.post(ctx, sess, "/seats/cancel-reservation", reservationRef{ReservationID: reservationID}, nil)
}

// ConfirmHold converts a temporary lock into a permanent booking.
func (c *Client) ConfirmHold(ctx context.Context, sess *auth.Session, reservationID string) error {
	return c.post(ctx, sess, "/seats/confirm-reservation", reservationRef{ReservationID: reservationID}, nil)
}

// TakenSeats returns the seat numbers already held or booked on a leg.
func (c *Client) TakenSeats(ctx context.Context, sess *auth.Session, route models.RouteKey) ([]int, error) {
	params := url.Values{}
	params.Set("from", route.From)
	params.Set("to", route.To)
	params.Set("date", route.Date)

	var resp seatsResponse
	if err := c.get(ctx, sess, "/available-seats?"+params.Encode(), &resp); err != nil {
		return nil, err
	}
	return resp.TakenSeats, nil
}

// CreateBooking creates the backend booking record the payment sheet is
// scoped to.
func (c *Client) CreateBooking(ctx context.Context, sess *auth.Session, req models.BookingRequest) (*models.Booking, error) {
	var booking models.Booking
	if err := c.post(ctx, sess, "/bookings", req, &booking); err != nil {
		return nil, err
	}
	return &booking, nil
}

type paymentSheetRequest struct {
	BookingID   string  `json:"bookingId"`
	TotalAmount float64 `json:"totalAmount,omitempty"`
}

// PaymentSheet obtains the payment-session handle for a booking. A response
// missing any of the three fields fails with ErrSessionIncomplete.
func (c *Client) PaymentSheet(ctx context.Context, sess *auth.Session, bookingID string, total float64) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := c.post(ctx, sess, "/payments/payment-sheet", paymentSheetRequest{BookingID: bookingID, TotalAmount: total}, &session); err != nil {
		return nil, err
	}
	if !session.Complete() {
		return nil, ErrSessionIncomplete
	}
	return &session, nil
}

// StudentDiscount looks up the per-route student discount. Any failure
// degrades to "no discount"; the caller never sees an error.
func (c *Client) StudentDiscount(ctx context.Context, sess *auth.Session, from, to string) models.StudentDiscount {
	params := url.Values{}
	params.Set("from", from)
	params.Set("to", to)

	var discount models.StudentDiscount
	if err := c.get(ctx, sess, "/route-student-discount?"+params.Encode(), &discount); err != nil {
		c.log.Warn("REMOTE", fmt.Sprintf("student discount lookup failed, defaulting to none: %v", err))
		return models.StudentDiscount{}
	}
	return discount
}

func (c *Client) post(ctx context.Context, sess *auth.Session, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, sess, out)
}

func (c *Client) get(ctx context.Context, sess *auth.Session, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, sess, out)
}

func (c *Client) do(req *http.Request, sess *auth.Session, out interface{}) error {
	if sess != nil && sess.Token != "" {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("booking api unreachable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &body)
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
