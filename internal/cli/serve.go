package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kidzoona/kiosk/internal/api"
	"github.com/kidzoona/kiosk/internal/device"
)

// ServeCmd runs the kiosk: device link, payment sessions and HTTP API
type ServeCmd struct {
	Addr      string `help:"Listen address (overrides http.addr)"`
	Device    string `short:"d" help:"Serial device path (overrides serial.path)"`
	Baud      int    `help:"Serial baud rate (overrides serial.baud)"`
	DB        string `name:"db" type:"path" help:"Registration database (overrides store.path)"`
	StaticDir string `type:"path" help:"Directory of front-end files to serve (overrides http.static_dir)"`
}

// apply folds flag overrides into the configuration
func (c *ServeCmd) apply(globals *Globals) {
	cfg := globals.Config
	if c.Addr != "" {
		cfg.HTTP.Addr = c.Addr
	}
	if c.Device != "" {
		cfg.Serial.Path = c.Device
	}
	if c.Baud > 0 {
		cfg.Serial.Baud = c.Baud
	}
	if c.DB != "" {
		cfg.Store.Path = c.DB
	}
	if c.StaticDir != "" {
		cfg.HTTP.StaticDir = c.StaticDir
	}
}

// Run executes the serve command
func (c *ServeCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	c.apply(globals)
	cfg := globals.Config
	if err := cfg.Validate(); err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}

	log, err := newLogger(globals, cfg.Log)
	if err != nil {
		return outputErrorCommon(globals, "INVALID_CONFIG", err.Error())
	}
	defer func() { _ = log.Sync() }()

	st, err := openStore(cfg.Store, "")
	if err != nil {
		return outputErrorCommon(globals, "STORE_UNAVAILABLE", err.Error(), "check store.path is writable")
	}
	defer func() { _ = st.Close() }()

	core := newPaymentCore(cfg, device.SerialOpener(cfg.Serial.Path, cfg.Serial.Baud), log)
	srv := api.New(api.Deps{
		Charger:       core.gateway,
		Status:        core.registry,
		Registrations: st,
		Link:          core.link,
	}, api.Config{
		ChargeTimeout: cfg.Payment.ChargeTimeout,
		RateLimit:     cfg.HTTP.RateLimit,
		StaticDir:     cfg.HTTP.StaticDir,
	}, log.Named("http"))

	return c.run(ctx, globals, core, srv, log)
}

func (c *ServeCmd) run(ctx context.Context, globals *Globals, core *paymentCore, srv *api.Server, log *zap.Logger) error {
	cfg := globals.Config
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range core.tasks() {
		g.Go(func() error { return task(gctx) })
	}
	g.Go(func() error { return srv.ListenAndServe(gctx, cfg.HTTP.Addr) })

	log.Info("kiosk started",
		zap.String("addr", cfg.HTTP.Addr),
		zap.String("device", cfg.Serial.Path),
		zap.Int("baud", cfg.Serial.Baud),
		zap.String("store", cfg.Store.Path))
	if !globals.Quiet {
		_ = writerFor(globals).WriteReady(cfg.HTTP.Addr, cfg.Serial.Path)
	}

	if err := g.Wait(); err != nil {
		return outputErrorCommon(globals, "SERVER_FAILED", fmt.Sprintf("server stopped: %s", err))
	}
	log.Info("kiosk stopped")
	return nil
}
