package models

// PriceQuery describes one itinerary to be priced. ReturnDate empty means
// a one-way trip.
type PriceQuery struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Date       string `json:"date"`
	ReturnDate string `json:"returnDate,omitempty"`
	Passengers int    `json:"passengers"`
	Student    bool   `json:"student,omitempty"`
}

// Quote is the priced itinerary as returned by the backend. Prices are
// re-fetched whenever route, date or passenger count changes; nothing is
// cached locally.
type Quote struct {
	LegPrices     []float64 `json:"leg_prices"`
	Fee           float64   `json:"fee"`
	Total         float64   `json:"total"`
	Currency      string    `json:"currency"`
	DepartureTime string    `json:"departure_time"`
	ArrivalTime   string    `json:"arrival_time"`
	Stations      []string  `json:"stations,omitempty"`
}

// Booking is the backend's persistent booking record, created before the
// payment sheet is initialized.
type Booking struct {
	BookingID     string  `json:"bookingId"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	From          string  `json:"from"`
	To            string  `json:"to"`
	Date          string  `json:"date"`
	DepartureTime string  `json:"departureTime"`
	ArrivalTime   string  `json:"arrivalTime"`
}

type BookingRequest struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Date            string `json:"date"`
	Passenger       string `json:"passenger"`
	StudentDiscount bool   `json:"studentDiscount,omitempty"`
}

// StudentDiscount is the per-route discount lookup result. A failed lookup
// degrades to "no discount" rather than blocking the flow.
type StudentDiscount struct {
	Percent   float64 `json:"studentDiscount"`
	Available bool    `json:"hasStudentDiscount"`
}
