package models

// PaymentSession is the backend-issued handle required to present a payment
// sheet for one exact amount. All three fields are mandatory; a response
// missing any of them cannot initialize the sheet and is a hard failure.
type PaymentSession struct {
	PaymentIntent string `json:"paymentIntent"`
	EphemeralKey  string `json:"ephemeralKey"`
	Customer      string `json:"customer"`
}

// Complete reports whether every field the payment sheet needs is present.
func (s *PaymentSession) Complete() bool {
	return s != nil && s.PaymentIntent != "" && s.EphemeralKey != "" && s.Customer != ""
}
