package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bus-booking/internal/auth"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

var (
	ErrInvalidTotal = errors.New("payment total must be positive")
	// ErrSuperseded means a newer initialization attempt replaced this one
	// before its result could commit.
	ErrSuperseded = errors.New("payment session attempt superseded")
)

type RemoteAPI interface {
	GetPrice(ctx context.Context, sess *auth.Session, q models.PriceQuery) (*models.Quote, error)
	CreateBooking(ctx context.Context, sess *auth.Session, req models.BookingRequest) (*models.Booking, error)
	PaymentSheet(ctx context.Context, sess *auth.Session, bookingID string, total float64) (*models.PaymentSession, error)
}

type sessionScope struct {
	BookingID string
	Total     float64
}

type attempt struct {
	seq  uint64
	key  sessionScope
	sess *auth.Session

	done       chan struct{}
	result     *models.PaymentSession
	err        error
	superseded bool
}

// Bridge fetches price quotes and obtains payment-session handles scoped to
// an exact (bookingID, total) pair. Initialization attempts are debounced
// and tagged with a monotonically increasing sequence number: only the most
// recent attempt's result commits, and stale in-flight responses are
// discarded even when they resolve later.
type Bridge struct {
	remote   RemoteAPI
	log      *logger.Logger
	debounce time.Duration

	mu         sync.Mutex
	seq        uint64
	timer      *time.Timer
	pending    *attempt
	current    *models.PaymentSession
	currentKey sessionScope
}

func NewBridge(remote RemoteAPI, debounce time.Duration, log *logger.Logger) *Bridge {
	return &Bridge{
		remote:   remote,
		log:      log,
		debounce: debounce,
	}
}

// GetPrice is a pure request/response passthrough. Nothing is cached; the
// caller re-fetches whenever route, date or passenger count changes.
func (b *Bridge) GetPrice(ctx context.Context, sess *auth.Session, q models.PriceQuery) (*models.Quote, error) {
	return b.remote.GetPrice(ctx, sess, q)
}

// CreateBooking creates the backend booking record that scopes the payment
// sheet.
func (b *Bridge) CreateBooking(ctx context.Context, sess *auth.Session, req models.BookingRequest) (*models.Booking, error) {
	return b.remote.CreateBooking(ctx, sess, req)
}

// InitSession obtains a payment-session handle for the exact (bookingID,
// total) pair. A session already initialized for the same pair is returned
// without a new request. Bursts of calls coalesce through the debounce, and
// an attempt overtaken by a newer one fails with ErrSuperseded.
func (b *Bridge) InitSession(ctx context.Context, sess *auth.Session, bookingID string, total float64) (*models.PaymentSession, error) {
	if total <= 0 {
		return nil, ErrInvalidTotal
	}
	key := sessionScope{BookingID: bookingID, Total: total}

	b.mu.Lock()
	if b.current != nil && b.currentKey == key {
		session := b.current
		b.mu.Unlock()
		b.log.LogPayment("INIT", bookingID, "session already initialized for this booking and total, skipping")
		return session, nil
	}

	b.seq++
	att := &attempt{
		seq:  b.seq,
		key:  key,
		sess: sess,
		done: make(chan struct{}),
	}

	// A still-debouncing attempt is replaced outright. When Stop reports
	// the timer already fired, its callback is on its way into launch and
	// owns the close via the sequence check; closing here too would
	// double-close the channel.
	if b.timer != nil {
		stopped := b.timer.Stop()
		b.timer = nil
		if b.pending != nil {
			b.pending.superseded = true
			if stopped {
				close(b.pending.done)
			}
			b.pending = nil
		}
	}
	b.pending = att

	if b.debounce <= 0 {
		b.pending = nil
		go b.launch(att)
	} else {
		b.timer = time.AfterFunc(b.debounce, func() {
			b.mu.Lock()
			if b.pending == att {
				b.pending = nil
			}
			b.mu.Unlock()
			b.launch(att)
		})
	}
	b.mu.Unlock()

	select {
	case <-att.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if att.superseded {
		return nil, fmt.Errorf("%w: attempt %d", ErrSuperseded, att.seq)
	}
	if att.err != nil {
		return nil, att.err
	}
	return att.result, nil
}

// Session returns the currently committed payment session, if any.
func (b *Bridge) Session() (*models.PaymentSession, string, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current, b.currentKey.BookingID, b.currentKey.Total
}

// Reset drops the committed session, forcing the next InitSession to hit
// the backend again.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = nil
	b.currentKey = sessionScope{}
}

func (b *Bridge) launch(att *attempt) {
	b.mu.Lock()
	if att.seq != b.seq {
		att.superseded = true
		close(att.done)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	// The request itself has no cancellation tie to the triggering caller;
	// a stale response is discarded by the sequence check below.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := b.remote.PaymentSheet(ctx, att.sess, att.key.BookingID, att.key.Total)

	b.mu.Lock()
	if att.seq != b.seq {
		att.superseded = true
	} else if err == nil {
		b.current = session
		b.currentKey = att.key
	}
	att.result = session
	att.err = err
	close(att.done)
	b.mu.Unlock()

	if err != nil && !att.superseded {
		b.log.Error("PAYMENT", fmt.Sprintf("payment session init failed for booking %s: %v", att.key.BookingID, err))
	}
}
