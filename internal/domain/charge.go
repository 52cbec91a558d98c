package domain

import "fmt"

// RoundingPolicy decides what happens to totals that are not a whole number of pulses
type RoundingPolicy string

const (
	RoundingReject   RoundingPolicy = "reject"
	RoundingTruncate RoundingPolicy = "truncate"
)

// MismatchPolicy decides how a completion with paid != expected is reported
type MismatchPolicy string

const (
	MismatchFlag   MismatchPolicy = "flag"
	MismatchAccept MismatchPolicy = "accept"
)

// ChargeRequest is what the kiosk asks the customer to pay for
type ChargeRequest struct {
	PlaytimeRate int `json:"playtimeRate"`
	ChildCount   int `json:"childCount"`
	KidsSockQty  int `json:"kidsQty"`
	AdultSockQty int `json:"adultsQty"`
}

// Validate rejects negative inputs
func (r ChargeRequest) Validate() error {
	switch {
	case r.PlaytimeRate < 0:
		return fmt.Errorf("%w: playtime rate %d", ErrInvalidRequest, r.PlaytimeRate)
	case r.ChildCount < 0:
		return fmt.Errorf("%w: child count %d", ErrInvalidRequest, r.ChildCount)
	case r.KidsSockQty < 0:
		return fmt.Errorf("%w: kids sock quantity %d", ErrInvalidRequest, r.KidsSockQty)
	case r.AdultSockQty < 0:
		return fmt.Errorf("%w: adult sock quantity %d", ErrInvalidRequest, r.AdultSockQty)
	}
	return nil
}

// Pricing turns a request into an amount and a pulse count
type Pricing struct {
	SockPrice      int
	PulseUnitValue int
	Rounding       RoundingPolicy
}

// DefaultPricing matches the installed coin acceptor
func DefaultPricing() Pricing {
	return Pricing{SockPrice: 50, PulseUnitValue: 10, Rounding: RoundingReject}
}

// Quote is the derived charge for a request
type Quote struct {
	PlaytimeFee int `json:"playtime_fee"`
	SocksFee    int `json:"socks_fee"`
	Total       int `json:"total"`
	Pulses      int `json:"pulses"`
	Remainder   int `json:"remainder,omitempty"`
}

// Quote prices req. With RoundingReject a total that is not a multiple of
// PulseUnitValue is an error; with RoundingTruncate the remainder is dropped
// and reported in Quote.Remainder.
func (p Pricing) Quote(req ChargeRequest) (Quote, error) {
	if err := req.Validate(); err != nil {
		return Quote{}, err
	}
	if p.PulseUnitValue <= 0 {
		return Quote{}, fmt.Errorf("%w: pulse unit value %d", ErrInvalidRequest, p.PulseUnitValue)
	}

	q := Quote{
		PlaytimeFee: req.PlaytimeRate * req.ChildCount,
		SocksFee:    (req.KidsSockQty + req.AdultSockQty) * p.SockPrice,
	}
	q.Total = q.PlaytimeFee + q.SocksFee
	q.Pulses = q.Total / p.PulseUnitValue
	q.Remainder = q.Total % p.PulseUnitValue

	if q.Remainder != 0 && p.Rounding != RoundingTruncate {
		return q, fmt.Errorf("%w: %d %% %d = %d", ErrNonDivisible, q.Total, p.PulseUnitValue, q.Remainder)
	}
	return q, nil
}
