package passenger

import (
	"fmt"
	"regexp"
	"strings"
)

// Passenger is the closed traveler record collected before a hold is
// requested. Email and Phone are optional for additional passengers; the
// lead passenger needs both for booking confirmation delivery.
type Passenger struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Student   bool   `json:"student,omitempty"`
	Lead      bool   `json:"lead,omitempty"`
}

// FullName is the manifest name bound to a seat.
func (p Passenger) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ValidationError names one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	nameRe  = regexp.MustCompile(`^[\p{L}][\p{L} '\-]{1,49}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9]{6,15}$`)
)

// Validate checks the whole record and returns every rejected field at
// once, replacing the scattered per-field boolean flags the form used to
// carry.
func Validate(p Passenger) []ValidationError {
	var errs []ValidationError

	if !nameRe.MatchString(p.FirstName) {
		errs = append(errs, ValidationError{Field: "firstName", Message: "must be 2-50 letters"})
	}
	if !nameRe.MatchString(p.LastName) {
		errs = append(errs, ValidationError{Field: "lastName", Message: "must be 2-50 letters"})
	}

	if p.Lead {
		if !emailRe.MatchString(p.Email) {
			errs = append(errs, ValidationError{Field: "email", Message: "valid email required for the lead passenger"})
		}
		if !phoneRe.MatchString(strings.ReplaceAll(p.Phone, " ", "")) {
			errs = append(errs, ValidationError{Field: "phone", Message: "valid phone number required for the lead passenger"})
		}
	} else {
		if p.Email != "" && !emailRe.MatchString(p.Email) {
			errs = append(errs, ValidationError{Field: "email", Message: "invalid email"})
		}
		if p.Phone != "" && !phoneRe.MatchString(strings.ReplaceAll(p.Phone, " ", "")) {
			errs = append(errs, ValidationError{Field: "phone", Message: "invalid phone number"})
		}
	}

	return errs
}
