// Package proxy manages the local dnsmasq instance that relays loopback
// port 53 to the container's published DNS port.
package proxy

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/command"
	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/dnsprobe"
)

const (
	probeInterval = time.Second
	probeTimeout  = time.Second
)

// ErrNotReady is returned when the proxy never answers within the bounded
// polling window. This is the dominant failure mode of an install.
var ErrNotReady = fmt.Errorf("proxy did not become ready")

// Controller configures and restarts dnsmasq and polls it for readiness.
type Controller struct {
	cfg    *config.Config
	runner command.Runner
	prober dnsprobe.Prober
	logger zerolog.Logger
}

func NewController(cfg *config.Config, runner command.Runner, prober dnsprobe.Prober, logger zerolog.Logger) *Controller {
	return &Controller{cfg: cfg, runner: runner, prober: prober, logger: logger}
}

// Configure writes the dnsmasq configuration from scratch. The installed
// package's config file is treated as disposable and overwritten on every
// install.
func (c *Controller) Configure() error {
	conf := fmt.Sprintf(`# Generated by piholeup. Manual edits are overwritten on install.
listen-address=%s
bind-interfaces
no-resolv
server=%s#%d
`, c.cfg.Proxy.ListenAddress, c.cfg.Proxy.ListenAddress, c.cfg.Pihole.DNSPort)

	if err := os.WriteFile(c.cfg.Proxy.ConfigPath, []byte(conf), 0o644); err != nil {
		return fmt.Errorf("write dnsmasq config: %w", err)
	}
	c.logger.Info().Str("path", c.cfg.Proxy.ConfigPath).Msg("Wrote dnsmasq configuration")
	return nil
}

// Start restarts the dnsmasq service and polls until it answers a test
// lookup on loopback. The poll is a flat bounded loop: ProbeRetries single
// lookups with a one second timeout, one second apart. Returns ErrNotReady
// when the budget is exhausted.
func (c *Controller) Start(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, "sudo", "brew", "services", "restart", "dnsmasq"); err != nil {
		return fmt.Errorf("restart dnsmasq: %w", err)
	}
	return c.AwaitReady(ctx)
}

// AwaitReady runs the readiness poll on its own, used when the verifier
// re-checks an already-restarted proxy.
func (c *Controller) AwaitReady(ctx context.Context) error {
	server := net.JoinHostPort(c.cfg.Proxy.ListenAddress, "53")
	retries := c.cfg.Proxy.ProbeRetries
	if retries <= 0 {
		retries = 1
	}

	for attempt := 1; attempt <= retries; attempt++ {
		res, err := c.prober.Lookup(ctx, c.cfg.Proxy.ProbeDomain, server, probeTimeout)
		if err == nil && len(res.Addresses) > 0 {
			c.logger.Info().Int("attempt", attempt).Msg("Proxy is answering queries")
			return nil
		}
		if err != nil {
			c.logger.Debug().Err(err).Int("attempt", attempt).Int("retries", retries).Msg("Proxy probe failed")
		}
		if attempt < retries {
			select {
			case <-time.After(probeInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrNotReady, retries)
}

// Stop stops the dnsmasq service. Best effort: a failure is logged and
// swallowed so teardown always proceeds.
func (c *Controller) Stop(ctx context.Context) {
	if _, err := c.runner.RunQuiet(ctx, "sudo", "brew", "services", "stop", "dnsmasq"); err != nil {
		c.logger.Warn().Err(err).Msg("Stopping dnsmasq failed (ignored)")
	}
}
