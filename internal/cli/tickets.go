package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/store"
)

// TicketsCmd groups registration management commands
type TicketsCmd struct {
	DB string `name:"db" type:"path" help:"Registration database (overrides store.path)"`

	List     TicketsListCmd     `cmd:"" default:"withargs" help:"List registrations, newest first"`
	Checkout TicketsCheckoutCmd `cmd:"" help:"Mark a registration as checked out"`
	Delete   TicketsDeleteCmd   `cmd:"" help:"Delete a registration"`
}

// TicketsListCmd lists registrations
type TicketsListCmd struct {
	Active bool `help:"Only show visitors still on the floor"`
	Limit  int  `short:"n" default:"0" help:"Show at most N registrations (0 = all)"`
}

// Run executes the list command
func (c *TicketsListCmd) Run(globals *Globals, parent *TicketsCmd) error {
	st, err := openStore(globals.Config.Store, parent.DB)
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", err.Error())
	}
	defer func() { _ = st.Close() }()

	regs, err := st.List(context.Background())
	if err != nil {
		return outputErrorCommon(globals, "STORE_FAILED", err.Error())
	}
	if c.Active {
		regs = lo.Filter(regs, func(r domain.Registration, _ int) bool {
			return r.Status == domain.RegistrationActive
		})
	}
	if c.Limit > 0 && len(regs) > c.Limit {
		regs = regs[:c.Limit]
	}
	return writerFor(globals).WriteTickets(regs)
}

// TicketsCheckoutCmd completes a visit
type TicketsCheckoutCmd struct {
	ID string `arg:"" help:"Registration id"`
}

// Run executes the checkout command
func (c *TicketsCheckoutCmd) Run(globals *Globals, parent *TicketsCmd) error {
	return mutateTicket(globals, parent.DB, c.ID, "checked out", (*store.Store).Checkout)
}

// TicketsDeleteCmd removes a registration
type TicketsDeleteCmd struct {
	ID string `arg:"" help:"Registration id"`
}

// Run executes the delete command
func (c *TicketsDeleteCmd) Run(globals *Globals, parent *TicketsCmd) error {
	return mutateTicket(globals, parent.DB, c.ID, "deleted", (*store.Store).Delete)
}

func mutateTicket(globals *Globals, db, id, verb string, op func(*store.Store, context.Context, string) error) error {
	st, err := openStore(globals.Config.Store, db)
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", err.Error())
	}
	defer func() { _ = st.Close() }()

	if err := op(st, context.Background(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return outputErrorCommon(globals, "NOT_FOUND", fmt.Sprintf("registration %s not found", id), "run 'kiosk tickets list' for ids")
		}
		return outputErrorCommon(globals, "STORE_FAILED", err.Error())
	}
	if !globals.Quiet {
		_ = writerFor(globals).WriteInfo(fmt.Sprintf("Registration %s %s", id, verb))
	}
	return nil
}
