package cli

import (
	"errors"

	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/gateway"
)

// VisitFlags describe one visit; shared by quote and charge
type VisitFlags struct {
	PlaytimeRate int `short:"r" default:"0" help:"Playtime rate per child"`
	Children     int `short:"k" default:"0" help:"Number of children"`
	KidsSocks    int `default:"0" help:"Kids sock pairs"`
	AdultSocks   int `default:"0" help:"Adult sock pairs"`
}

func (v VisitFlags) request() domain.ChargeRequest {
	return domain.ChargeRequest{
		PlaytimeRate: v.PlaytimeRate,
		ChildCount:   v.Children,
		KidsSockQty:  v.KidsSocks,
		AdultSockQty: v.AdultSocks,
	}
}

// QuoteCmd prices a visit and prints the device command
type QuoteCmd struct {
	VisitFlags `embed:""`
}

// Run executes the quote command
func (c *QuoteCmd) Run(globals *Globals) error {
	q, cmd, err := gateway.New(nil, pricingFrom(globals.Config.Payment)).Quote(c.request())
	if err != nil {
		return outputErrorCommon(globals, quoteErrorCode(err), err.Error())
	}
	return writerFor(globals).WriteQuote(q, cmd.String())
}

func quoteErrorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNonDivisible):
		return "NON_DIVISIBLE_TOTAL"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "INVALID_REQUEST"
	default:
		return "QUOTE_FAILED"
	}
}
