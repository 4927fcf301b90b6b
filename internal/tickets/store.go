package tickets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bus-booking/internal/logger"
	"bus-booking/internal/models"
)

const topicTicketSaved = "busly.ticket.saved"

type KVLayer interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

type ArtifactGenerator interface {
	Generate(ticket models.StoredTicket) (string, error)
}

type EventPublisher interface {
	Publish(topic, key string, value []byte) error
}

// Store is the durable on-device record of paid bookings. Each user's
// tickets live as one JSON-array blob under a single storage key, written
// whole on every change; the backend keeps the authoritative copy and the
// store is never synced back.
type Store struct {
	kv        KVLayer
	artifacts ArtifactGenerator
	events    EventPublisher
	log       *logger.Logger
}

func NewStore(kv KVLayer, artifacts ArtifactGenerator, events EventPublisher, log *logger.Logger) *Store {
	return &Store{
		kv:        kv,
		artifacts: artifacts,
		events:    events,
		log:       log,
	}
}

func ticketsKey(userID string) string {
	return "tickets:" + userID
}

// Save upserts the ticket by id at the front of the user's list. A QR
// artifact is attempted first; its failure never blocks the record, so the
// price and QR payload persist regardless.
func (s *Store) Save(ctx context.Context, userID string, ticket models.StoredTicket) error {
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}

	if s.artifacts != nil && ticket.PDFURI == "" {
		uri, err := s.artifacts.Generate(ticket)
		if err != nil {
			s.log.Warn("TICKET", fmt.Sprintf("artifact generation failed for %s, saving record anyway: %v", ticket.ID, err))
		} else {
			ticket.PDFURI = uri
		}
	}

	existing, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	updated := make([]models.StoredTicket, 0, len(existing)+1)
	updated = append(updated, ticket)
	for _, t := range existing {
		if t.ID == ticket.ID {
			continue
		}
		updated = append(updated, t)
	}

	if err := s.persist(ctx, userID, updated); err != nil {
		return err
	}

	s.log.LogTicket("SAVE", ticket.ID, fmt.Sprintf("%s → %s on %s (%0.2f %s)", ticket.From, ticket.To, ticket.Date, ticket.Price, ticket.Currency))
	s.publishSaved(userID, ticket)
	return nil
}

// List returns the user's tickets most-recent-first. Malformed stored data
// yields an empty list rather than an error.
func (s *Store) List(ctx context.Context, userID string) ([]models.StoredTicket, error) {
	return s.load(ctx, userID)
}

// Delete removes one ticket. A missing id leaves the list unchanged.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	existing, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	updated := make([]models.StoredTicket, 0, len(existing))
	for _, t := range existing {
		if t.ID == id {
			continue
		}
		updated = append(updated, t)
	}
	if len(updated) == len(existing) {
		return nil
	}

	s.log.LogTicket("DELETE", id, "ticket removed from local store")
	return s.persist(ctx, userID, updated)
}

// Clear removes every stored ticket for the user.
func (s *Store) Clear(ctx context.Context, userID string) error {
	s.log.LogTicket("CLEAR", userID, "clearing local ticket store")
	return s.kv.Delete(ctx, ticketsKey(userID))
}

func (s *Store) load(ctx context.Context, userID string) ([]models.StoredTicket, error) {
	raw, err := s.kv.Get(ctx, ticketsKey(userID))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []models.StoredTicket{}, nil
	}
	var list []models.StoredTicket
	if err := json.Unmarshal(raw, &list); err != nil {
		s.log.Warn("TICKET", fmt.Sprintf("malformed ticket blob for user %s, treating as empty: %v", userID, err))
		return []models.StoredTicket{}, nil
	}
	return list, nil
}

func (s *Store) persist(ctx context.Context, userID string, list []models.StoredTicket) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("failed to encode ticket list: %w", err)
	}
	return s.kv.Set(ctx, ticketsKey(userID), raw)
}

func (s *Store) publishSaved(userID string, ticket models.StoredTicket) {
	if s.events == nil {
		return
	}
	event := models.TicketEvent{
		Type:      topicTicketSaved,
		TicketID:  ticket.ID,
		UserID:    userID,
		Price:     ticket.Price,
		Currency:  ticket.Currency,
		Timestamp: time.Now(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		s.log.Error("KAFKA", fmt.Sprintf("failed to marshal ticket event: %v", err))
		return
	}
	if err := s.events.Publish(topicTicketSaved, ticket.ID, value); err != nil {
		s.log.Warn("KAFKA", fmt.Sprintf("failed to publish ticket saved event for %s: %v", ticket.ID, err))
	}
}
