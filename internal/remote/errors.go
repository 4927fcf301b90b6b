package remote

import (
	"errors"
	"fmt"
)

var (
	// ErrSeatUnavailable means the backend refused a hold because another
	// session already holds or booked one of the requested seats.
	ErrSeatUnavailable = errors.New("one or more seats are no longer available")

	// ErrSessionIncomplete means the payment-sheet response was missing at
	// least one of paymentIntent/ephemeralKey/customer. All three are
	// required to present the sheet, so this is fatal to checkout.
	ErrSessionIncomplete = errors.New("payment session response is incomplete")
)

// APIError carries the backend's own message for a non-2xx response. The
// message is shown to the user verbatim; the gateway adds nothing to it.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("booking api returned status %d", e.Status)
}
