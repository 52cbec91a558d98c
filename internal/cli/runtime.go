package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kidzoona/kiosk/internal/config"
	"github.com/kidzoona/kiosk/internal/device"
	"github.com/kidzoona/kiosk/internal/domain"
	"github.com/kidzoona/kiosk/internal/gateway"
	"github.com/kidzoona/kiosk/internal/session"
	"github.com/kidzoona/kiosk/internal/store"
)

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func pricingFrom(cfg config.PaymentConfig) domain.Pricing {
	return domain.Pricing{
		SockPrice:      cfg.SockPrice,
		PulseUnitValue: cfg.PulseUnitValue,
		Rounding:       domain.RoundingPolicy(cfg.Rounding),
	}
}

func openStore(cfg config.StoreConfig, path string) (*store.Store, error) {
	if path == "" {
		path = cfg.Path
	}
	return store.Open(path, store.Config{BusyTimeout: cfg.BusyTimeout})
}

// paymentCore is the device link, session registry and gateway wired together
type paymentCore struct {
	link     *device.Link
	registry *session.Registry
	gateway  *gateway.Gateway
}

func newPaymentCore(cfg *config.Config, open device.Opener, log *zap.Logger) *paymentCore {
	link := device.New(open,
		device.WithLogger(log.Named("device")),
		device.WithBackoff(cfg.Serial.ReconnectMin, cfg.Serial.ReconnectMax),
		device.WithWriteTimeout(cfg.Serial.WriteTimeout),
	)
	reg := session.NewRegistry(link,
		session.WithLogger(log.Named("session")),
		session.WithMismatchPolicy(domain.MismatchPolicy(cfg.Payment.Mismatch)),
		session.WithExpireTick(cfg.Payment.ExpireTick),
	)
	gw := gateway.New(reg, pricingFrom(cfg.Payment), gateway.WithLogger(log.Named("gateway")))
	return &paymentCore{link: link, registry: reg, gateway: gw}
}

// tasks returns the long-running loops of the core
func (p *paymentCore) tasks() []func(context.Context) error {
	return []func(context.Context) error{
		p.link.Run,
		func(ctx context.Context) error { return p.registry.Consume(ctx, p.link) },
		p.registry.Run,
	}
}
