package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kidzoona/kiosk/internal/config"
	"github.com/kidzoona/kiosk/internal/device"
	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/gateway"
)

// ChargeCmd runs one charge against the device from the terminal
type ChargeCmd struct {
	VisitFlags `embed:""`

	Device         string        `short:"d" help:"Serial device path (overrides serial.path)"`
	Baud           int           `help:"Serial baud rate (overrides serial.baud)"`
	Timeout        time.Duration `help:"Charge timeout (overrides payment.charge_timeout)"`
	ConnectTimeout time.Duration `default:"5s" help:"How long to wait for the device to attach"`
	Record         bool          `help:"Store a registration when the payment is confirmed"`
	DB             string        `name:"db" type:"path" help:"Registration database (overrides store.path)"`

	open device.Opener
}

// Run executes the charge command
func (c *ChargeCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()
	return c.run(ctx, globals)
}

func (c *ChargeCmd) run(ctx context.Context, globals *Globals) error {
	cfg := globals.Config
	if c.Device != "" {
		cfg.Serial.Path = c.Device
	}
	if c.Baud > 0 {
		cfg.Serial.Baud = c.Baud
	}
	timeout := cfg.Payment.ChargeTimeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	log, err := newLogger(globals, cfg.Log)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}
	defer func() { _ = log.Sync() }()

	// Price before touching the device so a bad request never opens the port
	if _, _, err := gateway.New(nil, pricingFrom(cfg.Payment)).Quote(c.request()); err != nil {
		return outputErrorCommon(globals, quoteErrorCode(err), err.Error())
	}

	settle, closeStore, err := c.settleFunc(cfg)
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", err.Error())
	}
	defer closeStore()

	open := c.open
	if open == nil {
		open = device.SerialOpener(cfg.Serial.Path, cfg.Serial.Baud)
	}
	core := newPaymentCore(cfg, open, log)

	runCtx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, task := range core.tasks() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = task(runCtx)
		}()
	}
	defer func() {
		stop()
		wg.Wait()
	}()

	if !waitConnected(ctx, core.link, c.ConnectTimeout) {
		return outputErrorCommon(globals, "DEVICE_UNAVAILABLE",
			fmt.Sprintf("device %s did not attach within %s", cfg.Serial.Path, c.ConnectTimeout),
			"check the cable and serial.path")
	}

	if !globals.Quiet {
		globals.Debug("charging via %s (timeout %s)", cfg.Serial.Path, timeout)
	}
	res, err := core.gateway.Charge(ctx, c.request(), timeout, settle)
	if err != nil {
		return outputErrorCommon(globals, "CHARGE_ABORTED", err.Error())
	}

	w := writerFor(globals)
	if err := w.WriteCharge(res.Outcome, res.Command); err != nil {
		return err
	}
	if res.SettleErr != nil {
		return outputErrorCommon(globals, "RECORD_FAILED", "payment received but not recorded: "+res.SettleErr.Error())
	}
	if res.Ticket > 0 {
		_ = w.WriteInfo(fmt.Sprintf("Ticket #%d", res.Ticket))
	}
	if !res.Outcome.Settleable() {
		return fmt.Errorf("charge %s", res.Outcome.Status)
	}
	return nil
}

// settleFunc records confirmed charges when --record is set
func (c *ChargeCmd) settleFunc(cfg *config.Config) (gateway.SettleFunc, func(), error) {
	if !c.Record {
		return nil, func() {}, nil
	}
	st, err := openStore(cfg.Store, c.DB)
	if err != nil {
		return nil, nil, err
	}
	req := c.request()
	settle := func(ctx context.Context, out domain.Outcome) (int, error) {
		reg := domain.Registration{
			ChildCount:     req.ChildCount,
			PlaytimeRate:   req.PlaytimeRate,
			Socks:          domain.Socks{KidsQty: req.KidsSockQty, AdultsQty: req.AdultSockQty},
			GrandTotal:     out.Expected,
			AmountPaid:     out.Paid,
			PaymentSession: out.SessionID,
		}
		reg.Socks.TotalPrice = out.Expected - req.PlaytimeRate*req.ChildCount
		if err := st.Create(ctx, &reg); err != nil {
			return 0, err
		}
		return reg.TicketNumber, nil
	}
	return settle, func() { _ = st.Close() }, nil
}

func waitConnected(ctx context.Context, link interface{ Connected() bool }, within time.Duration) bool {
	deadline := time.NewTimer(within)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()

	for !link.Connected() {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return false
		case <-tick.C:
		}
	}
	return true
}
