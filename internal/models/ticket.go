package models

import "time"

// StoredTicket is the on-device record of a paid booking. It is written once
// after payment success and never synced back to the server; the backend
// keeps its own authoritative copy.
type StoredTicket struct {
	ID            string    `json:"id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Date          string    `json:"date"`
	DepartureTime string    `json:"departureTime"`
	ArrivalTime   string    `json:"arrivalTime"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	QRData        string    `json:"qrData"`
	PassengerName string    `json:"passengerName"`
	CreatedAt     time.Time `json:"createdAt"`
	PDFURI        string    `json:"pdfUri,omitempty"`
}

type TicketEvent struct {
	Type      string    `json:"type"`
	TicketID  string    `json:"ticket_id"`
	UserID    string    `json:"user_id"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}
