// Package netbind applies and reverts the host-wide network changes: the
// static hostname mapping and the active network service's DNS resolver.
// The orchestrator is the only caller; no other component mutates these.
package netbind

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/command"
	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/dnsbackup"
	"github.com/piholeup/piholeup/internal/dnsprobe"
)

// ErrNoDefaultRoute is returned when no default route exists; without one
// there is no active network service to rebind.
var ErrNoDefaultRoute = fmt.Errorf("no default route found")

// ErrPreflight is returned when the just-deployed container fails the
// reachability check that gates the DNS cutover.
var ErrPreflight = fmt.Errorf("pre-flight check failed")

// Binder manages the hosts mapping and the active service's DNS servers.
type Binder struct {
	cfg    *config.Config
	runner command.Runner
	prober dnsprobe.Prober
	logger zerolog.Logger
}

func NewBinder(cfg *config.Config, runner command.Runner, prober dnsprobe.Prober, logger zerolog.Logger) *Binder {
	return &Binder{cfg: cfg, runner: runner, prober: prober, logger: logger}
}

// FindActiveService resolves the interface carrying the default route to its
// human-readable network service name (for example "Wi-Fi").
func (b *Binder) FindActiveService(ctx context.Context) (string, error) {
	out, err := b.runner.Run(ctx, "route", "-n", "get", "default")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDefaultRoute, err)
	}

	var device string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "interface:") {
			device = strings.TrimSpace(strings.TrimPrefix(line, "interface:"))
			break
		}
	}
	if device == "" {
		return "", ErrNoDefaultRoute
	}

	ports, err := b.runner.Run(ctx, "networksetup", "-listallhardwareports")
	if err != nil {
		return "", fmt.Errorf("listing hardware ports: %w", err)
	}

	// Output comes in blocks of "Hardware Port: <service>" followed by
	// "Device: <dev>".
	var service string
	for _, line := range strings.Split(ports, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Hardware Port:") {
			service = strings.TrimSpace(strings.TrimPrefix(line, "Hardware Port:"))
		} else if strings.HasPrefix(line, "Device:") {
			if strings.TrimSpace(strings.TrimPrefix(line, "Device:")) == device && service != "" {
				b.logger.Debug().Str("device", device).Str("service", service).Msg("Resolved active network service")
				return service, nil
			}
		}
	}
	return "", fmt.Errorf("no network service found for interface %s", device)
}

// CurrentDNSServers reads the DNS servers configured on the named service.
// An empty slice means no custom DNS is set (automatic).
func (b *Binder) CurrentDNSServers(ctx context.Context, service string) ([]string, error) {
	out, err := b.runner.Run(ctx, "networksetup", "-getdnsservers", service)
	if err != nil {
		return nil, fmt.Errorf("reading DNS servers for %s: %w", service, err)
	}

	var servers []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// networksetup prints a sentence, not an address, when nothing is set.
		if net.ParseIP(line) == nil {
			return nil, nil
		}
		servers = append(servers, line)
	}
	return servers, nil
}

// Apply points the named service at loopback and ensures the hostname
// mapping exists. Safe to call repeatedly.
func (b *Binder) Apply(ctx context.Context, service string) error {
	if err := b.addHostsMapping(); err != nil {
		return err
	}
	if _, err := b.runner.Run(ctx, "networksetup", "-setdnsservers", service, b.cfg.Proxy.ListenAddress); err != nil {
		return fmt.Errorf("setting DNS servers for %s: %w", service, err)
	}
	b.logger.Info().Str("service", service).Msg("Host DNS now points at loopback")
	return nil
}

// Revert removes the hostname mapping and restores the DNS servers recorded
// in the backup. A nil backup restores nothing beyond the mapping; a backup
// with no servers sets the service back to automatic.
func (b *Binder) Revert(ctx context.Context, service string, backup *dnsbackup.Backup) error {
	if err := b.removeHostsMapping(); err != nil {
		return err
	}
	if backup == nil {
		return nil
	}

	args := []string{"-setdnsservers", service}
	if backup.Automatic() {
		args = append(args, "empty")
	} else {
		args = append(args, backup.Servers...)
	}
	if _, err := b.runner.Run(ctx, "networksetup", args...); err != nil {
		return fmt.Errorf("restoring DNS servers for %s: %w", service, err)
	}
	b.logger.Info().Str("service", service).Strs("servers", backup.Servers).Msg("Restored original DNS servers")
	return nil
}

// Preflight gates the DNS cutover during install: first general internet
// reachability, then a direct DNS query against the container's published
// address. Never called on teardown paths.
func (b *Binder) Preflight(ctx context.Context) error {
	if err := b.pingOnce(ctx, b.cfg.Verify.PingTarget); err != nil {
		return fmt.Errorf("%w: internet unreachable: %v", ErrPreflight, err)
	}

	server := net.JoinHostPort(b.cfg.Proxy.ListenAddress, fmt.Sprintf("%d", b.cfg.Pihole.DNSPort))
	res, err := b.prober.Lookup(ctx, b.cfg.Verify.TestDomain, server, 2*time.Second)
	if err != nil {
		return fmt.Errorf("%w: container not answering DNS at %s: %v", ErrPreflight, server, err)
	}
	if len(res.Addresses) == 0 {
		return fmt.Errorf("%w: container returned no answer for %s", ErrPreflight, b.cfg.Verify.TestDomain)
	}
	b.logger.Info().Str("server", server).Msg("Pre-flight check passed")
	return nil
}

func (b *Binder) pingOnce(ctx context.Context, target string) error {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return err
	}
	pinger.Count = 3
	pinger.Timeout = 5 * time.Second
	pinger.SetPrivileged(true)
	if err := pinger.RunWithContext(ctx); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("no ICMP reply from %s", target)
	}
	return nil
}
