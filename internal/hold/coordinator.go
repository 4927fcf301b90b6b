package hold

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bus-booking/internal/auth"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

const (
	topicHoldCreated   = "busly.hold.created"
	topicHoldConfirmed = "busly.hold.confirmed"
	topicHoldCancelled = "busly.hold.cancelled"
	topicHoldExpired   = "busly.hold.expired"
)

var (
	ErrHoldNotFound     = errors.New("reservation hold not found")
	ErrHoldNotActive    = errors.New("reservation hold is no longer active")
	ErrRouteAlreadyHeld = errors.New("an active hold already exists for this route")
	ErrNoSeats          = errors.New("at least one seat is required")
	ErrDuplicateSeats   = errors.New("seat numbers within a hold must be unique")
)

type RemoteAPI interface {
	CreateHold(ctx context.Context, sess *auth.Session, route models.RouteKey, seats []models.SeatOccupant, ttlSeconds int) (string, error)
	CancelHold(ctx context.Context, sess *auth.Session, reservationID string) error
	ConfirmHold(ctx context.Context, sess *auth.Session, reservationID string) error
}

type SessionLock interface {
	Acquire(ctx context.Context, userID string, route models.RouteKey, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID string, route models.RouteKey, owner string) error
}

type EventPublisher interface {
	Publish(topic, key string, value []byte) error
}

// Coordinator mediates the temporary-lock lifecycle between seat selection
// and payment. The backend owns seat exclusivity; the coordinator owns the
// local countdown and the Active/Confirmed/Cancelled/Expired transitions.
// Once the local countdown hits zero the hold is unusable, even if the
// server-side expiry lags slightly behind.
type Coordinator struct {
	remote RemoteAPI
	locks  SessionLock
	events EventPublisher
	clock  Clock
	log    *logger.Logger

	mu    sync.Mutex
	holds map[string]*trackedHold
}

type trackedHold struct {
	hold      models.ReservationHold
	sess      *auth.Session
	lockOwner string
	countdown *Countdown
	// linked holds share the countdown's fate: when one leg expires, the
	// sibling leg is cancelled in the same pass.
	linked []string
	// confirming marks an outstanding remote confirm; a countdown hitting
	// zero meanwhile sets expiryDeferred instead of transitioning, and the
	// confirm's completion decides between Confirmed and Expired.
	confirming     bool
	expiryDeferred bool
}

func NewCoordinator(remote RemoteAPI, locks SessionLock, events EventPublisher, clock Clock, log *logger.Logger) *Coordinator {
	return &Coordinator{
		remote: remote,
		locks:  locks,
		events: events,
		clock:  clock,
		log:    log,
		holds:  make(map[string]*trackedHold),
	}
}

// CreateHold requests a time-boxed exclusive lock for the given seats and
// starts the local countdown, anchored at the moment of the request.
func (c *Coordinator) CreateHold(ctx context.Context, sess *auth.Session, route models.RouteKey, seats []models.SeatOccupant, ttlSeconds int) (*models.ReservationHold, error) {
	if len(seats) == 0 {
		return nil, ErrNoSeats
	}
	seen := make(map[int]bool, len(seats))
	for _, s := range seats {
		if seen[s.SeatNumber] {
			return nil, ErrDuplicateSeats
		}
		seen[s.SeatNumber] = true
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	owner := uuid.NewString()

	ok, err := c.locks.Acquire(ctx, sess.UserID, route, owner, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRouteAlreadyHeld
	}

	reservationID, err := c.remote.CreateHold(ctx, sess, route, seats, ttlSeconds)
	if err != nil {
		if relErr := c.locks.Release(ctx, sess.UserID, route, owner); relErr != nil {
			c.log.Warn("HOLD", fmt.Sprintf("failed to release session lock after create failure: %v", relErr))
		}
		return nil, err
	}

	now := c.clock.Now()
	hold := models.ReservationHold{
		ReservationID: reservationID,
		Route:         route,
		Seats:         seats,
		Status:        models.HoldActive,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}

	tracked := &trackedHold{
		hold:      hold,
		sess:      sess,
		lockOwner: owner,
	}
	tracked.countdown = newCountdown(c.clock, ttlSeconds, func() {
		c.expire(reservationID)
	})

	c.mu.Lock()
	c.holds[reservationID] = tracked
	c.mu.Unlock()

	tracked.countdown.start()

	c.log.LogHold("CREATE", reservationID, fmt.Sprintf("seats %v on %s, ttl %ds", hold.SeatNumbers(), route.String(), ttlSeconds))
	c.publish(topicHoldCreated, &hold)

	return &hold, nil
}

// CreateRoundTrip creates outbound and return holds and links them so that
// either leg's countdown reaching zero cancels both. A failure on the
// return leg releases the outbound hold before surfacing the error.
func (c *Coordinator) CreateRoundTrip(ctx context.Context, sess *auth.Session, outRoute models.RouteKey, outSeats []models.SeatOccupant, retRoute models.RouteKey, retSeats []models.SeatOccupant, ttlSeconds int) (*models.ReservationHold, *models.ReservationHold, error) {
	outbound, err := c.CreateHold(ctx, sess, outRoute, outSeats, ttlSeconds)
	if err != nil {
		return nil, nil, err
	}

	ret, err := c.CreateHold(ctx, sess, retRoute, retSeats, ttlSeconds)
	if err != nil {
		if cancelErr := c.CancelHold(ctx, outbound.ReservationID); cancelErr != nil {
			c.log.Warn("HOLD", fmt.Sprintf("failed to roll back outbound hold %s: %v", outbound.ReservationID, cancelErr))
		}
		return nil, nil, err
	}

	c.Link(outbound.ReservationID, ret.ReservationID)
	return outbound, ret, nil
}

// Link ties two holds together for expiry purposes.
func (c *Coordinator) Link(a, b string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ha, ok := c.holds[a]; ok {
		ha.linked = append(ha.linked, b)
	}
	if hb, ok := c.holds[b]; ok {
		hb.linked = append(hb.linked, a)
	}
}

// CancelHold releases a hold explicitly. Idempotent: cancelling a hold that
// already reached a terminal state is a no-op, and a remote cancel failure
// is logged but not surfaced since the seat lapses naturally.
func (c *Coordinator) CancelHold(ctx context.Context, reservationID string) error {
	c.mu.Lock()
	tracked, ok := c.holds[reservationID]
	if !ok {
		c.mu.Unlock()
		return ErrHoldNotFound
	}
	if tracked.hold.Status.Terminal() {
		c.mu.Unlock()
		return nil
	}
	tracked.hold.Status = models.HoldCancelled
	tracked.countdown.Stop()
	hold := tracked.hold
	sess := tracked.sess
	owner := tracked.lockOwner
	c.mu.Unlock()

	if err := c.remote.CancelHold(ctx, sess, reservationID); err != nil {
		c.log.Warn("HOLD", fmt.Sprintf("remote cancel failed for %s (seat will lapse naturally): %v", reservationID, err))
	}
	if err := c.locks.Release(ctx, sess.UserID, hold.Route, owner); err != nil {
		c.log.Warn("HOLD", fmt.Sprintf("failed to release session lock for %s: %v", reservationID, err))
	}

	c.log.LogHold("CANCEL", reservationID, "hold cancelled")
	c.publish(topicHoldCancelled, &hold)
	return nil
}

// ConfirmHold converts an active hold into a permanent booking. Called only
// after payment success. A hold past its local countdown is rejected here
// without a network round-trip.
func (c *Coordinator) ConfirmHold(ctx context.Context, reservationID string) error {
	c.mu.Lock()
	tracked, ok := c.holds[reservationID]
	if !ok {
		c.mu.Unlock()
		return ErrHoldNotFound
	}
	if tracked.hold.Status != models.HoldActive {
		c.mu.Unlock()
		return fmt.Errorf("%w: status is %s", ErrHoldNotActive, tracked.hold.Status)
	}
	tracked.confirming = true
	sess := tracked.sess
	c.mu.Unlock()

	confirmErr := c.remote.ConfirmHold(ctx, sess, reservationID)

	c.mu.Lock()
	tracked.confirming = false
	deferred := tracked.expiryDeferred
	tracked.expiryDeferred = false

	if confirmErr != nil {
		if deferred && tracked.hold.Status == models.HoldActive {
			// The countdown ran out while the failed confirm was in
			// flight; apply the expiry it deferred.
			tracked.hold.Status = models.HoldExpired
			tracked.countdown.Stop()
			hold := tracked.hold
			owner := tracked.lockOwner
			c.mu.Unlock()
			c.log.Error("HOLD", fmt.Sprintf("confirm failed for %s: %v", reservationID, confirmErr))
			c.finishExpiry(hold, sess, owner)
			return fmt.Errorf("%w: hold expired during confirmation", ErrHoldNotActive)
		}
		c.mu.Unlock()
		// Hold stays Active; the user may retry until the countdown ends.
		c.log.Error("HOLD", fmt.Sprintf("confirm failed for %s: %v", reservationID, confirmErr))
		return confirmErr
	}

	if tracked.hold.Status != models.HoldActive {
		status := tracked.hold.Status
		c.mu.Unlock()
		c.log.Warn("HOLD", fmt.Sprintf("backend confirmed %s but the hold was already %s locally", reservationID, status))
		return fmt.Errorf("%w: status is %s", ErrHoldNotActive, status)
	}
	if deferred {
		c.log.Warn("HOLD", fmt.Sprintf("countdown for %s reached zero mid-confirm; backend confirmation wins", reservationID))
	}
	tracked.hold.Status = models.HoldConfirmed
	tracked.countdown.Stop()
	hold := tracked.hold
	owner := tracked.lockOwner
	c.mu.Unlock()

	if err := c.locks.Release(ctx, sess.UserID, hold.Route, owner); err != nil {
		c.log.Warn("HOLD", fmt.Sprintf("failed to release session lock for %s: %v", reservationID, err))
	}

	c.log.LogHold("CONFIRM", reservationID, "hold confirmed")
	c.publish(topicHoldConfirmed, &hold)
	return nil
}

// ConfirmTrip confirms the outbound hold and then, if present, the return
// hold, sequentially. Outcomes are reported per leg: a failed return confirm
// never hides a confirmed outbound, and no compensating cancellation of the
// outbound leg is attempted.
func (c *Coordinator) ConfirmTrip(ctx context.Context, outboundID, returnID string) models.TripConfirmation {
	result := models.TripConfirmation{
		Outbound: c.confirmLeg(ctx, outboundID),
	}
	if returnID != "" {
		leg := c.confirmLeg(ctx, returnID)
		result.Return = &leg
	}
	return result
}

func (c *Coordinator) confirmLeg(ctx context.Context, reservationID string) models.LegOutcome {
	outcome := models.LegOutcome{ReservationID: reservationID}
	if err := c.ConfirmHold(ctx, reservationID); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Confirmed = true
	return outcome
}

// Get returns a snapshot of the hold and its remaining seconds.
func (c *Coordinator) Get(reservationID string) (*models.ReservationHold, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tracked, ok := c.holds[reservationID]
	if !ok {
		return nil, 0, ErrHoldNotFound
	}
	hold := tracked.hold
	remaining := 0
	if hold.Status == models.HoldActive {
		remaining = tracked.countdown.Remaining()
	}
	return &hold, remaining, nil
}

// expire runs when a countdown reaches zero. The expiring hold and every
// linked leg transition to Expired in one pass, and a best-effort remote
// cancel is issued exactly once for each.
func (c *Coordinator) expire(reservationID string) {
	type expiredHold struct {
		hold  models.ReservationHold
		sess  *auth.Session
		owner string
	}

	c.mu.Lock()
	var expired []expiredHold
	ids := append([]string{reservationID}, c.linkedOf(reservationID)...)
	for _, id := range ids {
		tracked, ok := c.holds[id]
		if !ok || tracked.hold.Status.Terminal() {
			continue
		}
		// A confirm answer is outstanding for this hold; its completion
		// decides between Confirmed and Expired.
		if tracked.confirming {
			tracked.expiryDeferred = true
			continue
		}
		tracked.hold.Status = models.HoldExpired
		tracked.countdown.Stop()
		expired = append(expired, expiredHold{hold: tracked.hold, sess: tracked.sess, owner: tracked.lockOwner})
	}
	c.mu.Unlock()

	for _, e := range expired {
		c.finishExpiry(e.hold, e.sess, e.owner)
	}
}

// finishExpiry runs the side effects of one expiry after the hold already
// transitioned under the lock: best-effort remote cancel, session lock
// release and the lifecycle event.
func (c *Coordinator) finishExpiry(hold models.ReservationHold, sess *auth.Session, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := hold.ReservationID
	if err := c.remote.CancelHold(ctx, sess, id); err != nil {
		c.log.Warn("HOLD", fmt.Sprintf("remote cancel after expiry failed for %s: %v", id, err))
	}
	if err := c.locks.Release(ctx, sess.UserID, hold.Route, owner); err != nil {
		c.log.Warn("HOLD", fmt.Sprintf("failed to release session lock for %s: %v", id, err))
	}
	c.log.LogHold("EXPIRE", id, "countdown reached zero, hold expired")
	c.publish(topicHoldExpired, &hold)
}

// linkedOf must be called with c.mu held.
func (c *Coordinator) linkedOf(reservationID string) []string {
	if tracked, ok := c.holds[reservationID]; ok {
		return tracked.linked
	}
	return nil
}

// Close stops every countdown. Holds are left in their current state; the
// backend expires anything unconfirmed on its own clock.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tracked := range c.holds {
		tracked.countdown.Stop()
	}
}

func (c *Coordinator) publish(topic string, hold *models.ReservationHold) {
	if c.events == nil {
		return
	}
	event := models.HoldEvent{
		Type:          topic,
		ReservationID: hold.ReservationID,
		Route:         hold.Route,
		Seats:         hold.SeatNumbers(),
		Status:        hold.Status,
		Timestamp:     c.clock.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		c.log.Error("KAFKA", fmt.Sprintf("failed to marshal hold event: %v", err))
		return
	}
	if err := c.events.Publish(topic, hold.ReservationID, value); err != nil {
		c.log.Warn("KAFKA", fmt.Sprintf("failed to publish %s for %s: %v", topic, hold.ReservationID, err))
	}
}
