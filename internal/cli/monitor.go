package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/kidzoona/kiosk/internal/tui"
)

// MonitorCmd watches the payment status of a running server
type MonitorCmd struct {
	URL      string        `short:"u" help:"Server base URL (default: derived from http.addr)"`
	Interval time.Duration `short:"i" default:"500ms" help:"Polling interval"`
	Plain    bool          `help:"Print status lines instead of the interactive view"`
	Count    int           `short:"n" default:"0" help:"Stop after N samples in plain mode (0 = until interrupted)"`
}

// Run executes the monitor command
func (c *MonitorCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	base := c.URL
	if base == "" {
		base = baseURLFromAddr(globals.Config.HTTP.Addr)
	}
	client := tui.NewStatusClient(base)

	if c.Plain || globals.Format == "ndjson" || !stdoutIsTerminal(globals) {
		return c.stream(ctx, globals, client)
	}

	p := tea.NewProgram(tui.New(client, base, c.Interval), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// stream writes one status record per poll
func (c *MonitorCmd) stream(ctx context.Context, globals *Globals, fetch tui.Fetcher) error {
	w := writerFor(globals)
	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for n := 0; c.Count == 0 || n < c.Count; n++ {
		st, err := fetch.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return outputErrorCommon(globals, "SERVER_UNREACHABLE", err.Error(), "is 'kiosk serve' running?")
		}
		if err := w.WriteStatus(st, time.Now()); err != nil {
			return err
		}
		if c.Count > 0 && n+1 == c.Count {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// baseURLFromAddr turns a listen address into a URL a local client can dial
func baseURLFromAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func stdoutIsTerminal(globals *Globals) bool {
	f, ok := globals.Stdout.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
