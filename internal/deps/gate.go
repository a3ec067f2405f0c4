// Package deps verifies the external subsystems this tool orchestrates:
// Homebrew, the dnsmasq package, and a running Docker daemon.
package deps

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/command"
	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/notify"
)

// ErrDependency marks a fatal dependency failure: nothing on the host has
// been mutated yet when it is returned.
var ErrDependency = fmt.Errorf("dependency check failed")

// enginePinger is the slice of the Docker SDK the gate needs.
type enginePinger interface {
	Ping(ctx context.Context) (types.Ping, error)
}

// Prompter supplies the user's answer to a decision point. The interactive
// layer implements it; tests use a canned one.
type Prompter interface {
	Confirm(question string) bool
}

// Gate checks each dependency in order and acquires what it may. Safe to
// call again once everything is satisfied.
type Gate struct {
	cfg      *config.Config
	runner   command.Runner
	engine   enginePinger
	prompter Prompter
	notifier *notify.Watcher
	logger   zerolog.Logger
}

func NewGate(cfg *config.Config, runner command.Runner, engine enginePinger, prompter Prompter, notifier *notify.Watcher, logger zerolog.Logger) *Gate {
	return &Gate{cfg: cfg, runner: runner, engine: engine, prompter: prompter, notifier: notifier, logger: logger}
}

// Ensure verifies Homebrew, dnsmasq, and the Docker daemon, in that order.
// A no-op when all three are already satisfied.
func (g *Gate) Ensure(ctx context.Context) error {
	if err := g.ensureBrew(ctx); err != nil {
		return err
	}
	if err := g.ensureDnsmasq(ctx); err != nil {
		return err
	}
	return g.ensureDocker(ctx)
}

func (g *Gate) ensureBrew(ctx context.Context) error {
	if _, err := g.runner.Run(ctx, "brew", "--version"); err == nil {
		return nil
	}
	if !g.prompter.Confirm("Homebrew is not installed. Install it now?") {
		return fmt.Errorf("%w: Homebrew is required; install it from https://brew.sh and retry", ErrDependency)
	}

	stop := g.notifier.Watch(ctx, "Still installing Homebrew...")
	defer stop()
	if _, err := g.runner.Run(ctx, "/bin/bash", "-c",
		`/bin/bash -c "$(curl -fsSL https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh)"`); err != nil {
		return fmt.Errorf("%w: Homebrew install failed: %v", ErrDependency, err)
	}
	return nil
}

func (g *Gate) ensureDnsmasq(ctx context.Context) error {
	if _, err := g.runner.Run(ctx, "brew", "list", "dnsmasq"); err == nil {
		return nil
	}
	g.logger.Info().Msg("Installing dnsmasq")
	stop := g.notifier.Watch(ctx, "Still installing dnsmasq...")
	defer stop()
	if _, err := g.runner.Run(ctx, "brew", "install", "dnsmasq"); err != nil {
		return fmt.Errorf("%w: installing dnsmasq failed: %v", ErrDependency, err)
	}
	return nil
}

// ensureDocker pings the daemon; on failure it issues one start request and
// polls at fixed intervals up to a bounded deadline.
func (g *Gate) ensureDocker(ctx context.Context) error {
	if _, err := g.engine.Ping(ctx); err == nil {
		return nil
	}

	g.logger.Info().Msg("Docker daemon not responding, requesting start")
	if _, err := g.runner.RunQuiet(ctx, "open", "-a", "Docker"); err != nil {
		return fmt.Errorf("%w: Docker Desktop could not be launched; install it from https://docker.com and retry", ErrDependency)
	}

	wait := time.Duration(g.cfg.Deps.DockerWaitSeconds) * time.Second
	poll := time.Duration(g.cfg.Deps.DockerPollSeconds) * time.Second
	if poll <= 0 {
		poll = 8 * time.Second
	}
	attempts := int(wait / poll)
	if attempts < 1 {
		attempts = 1
	}

	stop := g.notifier.Watch(ctx, "Still waiting for the Docker daemon...")
	defer stop()

	for i := 0; i < attempts; i++ {
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			return ctx.Err()
		}
		if _, err := g.engine.Ping(ctx); err == nil {
			g.logger.Info().Msg("Docker daemon is up")
			return nil
		}
	}
	return fmt.Errorf("%w: Docker daemon did not come up within %s; start Docker Desktop manually and retry", ErrDependency, wait)
}
