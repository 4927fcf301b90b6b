package trips

import (
	"context"
	"sort"
	"time"

	"bus-booking/internal/auth"
	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

type RemoteAPI interface {
	TakenSeats(ctx context.Context, sess *auth.Session, route models.RouteKey) ([]int, error)
	StudentDiscount(ctx context.Context, sess *auth.Session, from, to string) models.StudentDiscount
}

// Service resolves seat availability and discounts for an itinerary.
// All answers come from the backend; nothing is cached between calls.
type Service struct {
	remote RemoteAPI
	log    *logger.Logger
}

func NewService(remote RemoteAPI, log *logger.Logger) *Service {
	return &Service{remote: remote, log: log}
}

// TakenSeats returns the seat numbers unavailable on a leg, sorted.
func (s *Service) TakenSeats(ctx context.Context, sess *auth.Session, route models.RouteKey) ([]int, error) {
	taken, err := s.remote.TakenSeats(ctx, sess, route)
	if err != nil {
		return nil, err
	}
	sort.Ints(taken)
	return taken, nil
}

// SeatFree reports whether a seat number is absent from the taken list.
func SeatFree(taken []int, seat int) bool {
	for _, t := range taken {
		if t == seat {
			return false
		}
	}
	return true
}

// StudentDiscount looks up the per-route discount, defaulting to none.
func (s *Service) StudentDiscount(ctx context.Context, sess *auth.Session, from, to string) models.StudentDiscount {
	return s.remote.StudentDiscount(ctx, sess, from, to)
}

// AvailableDates filters out travel dates already in the past relative to
// now. Dates are "YYYY-MM-DD"; unparseable entries are dropped.
func AvailableDates(dates []string, now time.Time) []string {
	today := now.Format("2006-01-02")
	available := make([]string, 0, len(dates))
	for _, d := range dates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			continue
		}
		if d >= today {
			available = append(available, d)
		}
	}
	return available
}
