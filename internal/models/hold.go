package models

import (
	"fmt"
	"time"
)

type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldConfirmed HoldStatus = "confirmed"
	HoldCancelled HoldStatus = "cancelled"
	HoldExpired   HoldStatus = "expired"
)

// Terminal reports whether no further transition is possible for the status.
func (s HoldStatus) Terminal() bool {
	return s == HoldConfirmed || s == HoldCancelled || s == HoldExpired
}

// RouteKey identifies one trip leg: origin, destination and travel date.
type RouteKey struct {
	From string `json:"from"`
	To   string `json:"to"`
	Date string `json:"date"`
}

func (k RouteKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.From, k.To, k.Date)
}

// SeatOccupant binds one seat number to a passenger name. The binding is
// for the manifest only and is not identity-verified.
type SeatOccupant struct {
	SeatNumber    int    `json:"seatNumber"`
	PassengerName string `json:"passengerName"`
}

// ReservationHold is one temporary seat lock issued by the booking backend.
type ReservationHold struct {
	ReservationID string         `json:"reservation_id"`
	Route         RouteKey       `json:"route"`
	Seats         []SeatOccupant `json:"seats"`
	Status        HoldStatus     `json:"status"`
	ExpiresAt     time.Time      `json:"expires_at"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SeatNumbers returns the held seat numbers in request order.
func (h *ReservationHold) SeatNumbers() []int {
	nums := make([]int, len(h.Seats))
	for i, s := range h.Seats {
		nums[i] = s.SeatNumber
	}
	return nums
}

// BookingLeg pairs a hold with the trip metadata shown to the user.
// Outbound and return legs carry independent holds with independent expiry.
type BookingLeg struct {
	Hold          ReservationHold `json:"hold"`
	DepartureTime string          `json:"departure_time"`
	ArrivalTime   string          `json:"arrival_time"`
	Price         float64         `json:"price"`
	Currency      string          `json:"currency"`
}

// LegOutcome is the per-leg result of a confirm attempt.
type LegOutcome struct {
	ReservationID string `json:"reservation_id"`
	Confirmed     bool   `json:"confirmed"`
	Error         string `json:"error,omitempty"`
}

// TripConfirmation reports outbound and return confirm results distinctly.
// A failed return leg never hides a confirmed outbound leg: the state is
// inconsistent at that point and needs manual follow-up.
type TripConfirmation struct {
	Outbound LegOutcome  `json:"outbound"`
	Return   *LegOutcome `json:"return,omitempty"`
}

// FullySucceeded reports whether every attempted leg was confirmed.
func (t TripConfirmation) FullySucceeded() bool {
	if !t.Outbound.Confirmed {
		return false
	}
	if t.Return != nil && !t.Return.Confirmed {
		return false
	}
	return true
}

type HoldEvent struct {
	Type          string     `json:"type"`
	ReservationID string     `json:"reservation_id"`
	Route         RouteKey   `json:"route"`
	Seats         []int      `json:"seats"`
	Status        HoldStatus `json:"status"`
	Timestamp     time.Time  `json:"timestamp"`
}
