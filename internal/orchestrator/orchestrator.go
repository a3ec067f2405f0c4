// Package orchestrator sequences the dependency gate, the container, the
// forwarding proxy, and the host network bindings into install, stop, and
// uninstall operations, with rollback on a failed install.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/container"
	"github.com/piholeup/piholeup/internal/dnsbackup"
)

// containerController is the container lifecycle surface the orchestrator
// drives. Implemented by container.Controller.
type containerController interface {
	FindArtifact(ctx context.Context) (*container.Artifact, error)
	Deploy(ctx context.Context) (*container.Artifact, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// proxyController is the forwarding-proxy surface. Implemented by
// proxy.Controller.
type proxyController interface {
	Configure() error
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// networkBinder is the host network surface. Implemented by netbind.Binder.
type networkBinder interface {
	FindActiveService(ctx context.Context) (string, error)
	CurrentDNSServers(ctx context.Context, service string) ([]string, error)
	Apply(ctx context.Context, service string) error
	Revert(ctx context.Context, service string, backup *dnsbackup.Backup) error
	Preflight(ctx context.Context) error
}

// backupStore persists the pre-install DNS configuration. Implemented by
// dnsbackup.Store.
type backupStore interface {
	Save(service string, servers []string) (*dnsbackup.Backup, error)
	Load() (*dnsbackup.Backup, error)
	Clear() error
}

// dependencyGate verifies external subsystems. Implemented by deps.Gate.
type dependencyGate interface {
	Ensure(ctx context.Context) error
}

// Prompter answers the orchestrator's decision points. The interactive layer
// supplies the real implementation.
type Prompter interface {
	Confirm(question string) bool
}

// InstallOutcome tells the caller what an install actually did.
type InstallOutcome int

const (
	// Installed means a fresh deployment completed and DNS now points at
	// loopback.
	Installed InstallOutcome = iota
	// AlreadyRunning means a healthy instance was found and left untouched.
	AlreadyRunning
)

// Orchestrator is the single-threaded lifecycle state machine. Exactly one
// instance is assumed to run on a host at a time.
type Orchestrator struct {
	cfg        *config.Config
	gate       dependencyGate
	containers containerController
	proxy      proxyController
	binder     networkBinder
	backups    backupStore
	prompter   Prompter
	logger     zerolog.Logger
}

func New(cfg *config.Config, gate dependencyGate, containers containerController, proxy proxyController, binder networkBinder, backups backupStore, prompter Prompter, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		gate:       gate,
		containers: containers,
		proxy:      proxy,
		binder:     binder,
		backups:    backups,
		prompter:   prompter,
		logger:     logger,
	}
}

// Install drives the host to Running. Idempotent: a healthy instance is
// never restarted. Any failure after the container is created rolls the
// container back and leaves the host's DNS resolver untouched, so the host
// is never pointed at a resolver that cannot answer.
func (o *Orchestrator) Install(ctx context.Context) (InstallOutcome, error) {
	if err := o.gate.Ensure(ctx); err != nil {
		return 0, err
	}

	state, err := o.DeriveState(ctx)
	if err != nil {
		return 0, err
	}

	switch state {
	case Running:
		o.logger.Info().Msg("Service already running, nothing to do")
		return AlreadyRunning, nil
	case StoppedArtifact:
		if !o.prompter.Confirm("A stopped container from a previous run exists. Replace it? (Pi-hole settings and blocklists are kept.)") {
			return 0, ErrAborted
		}
		// Deploy removes the stale artifact itself; the bind-mounted
		// volumes survive.
	}

	if err := o.ensureDirs(); err != nil {
		return 0, err
	}

	service, err := o.binder.FindActiveService(ctx)
	if err != nil {
		return 0, err
	}

	// The backup must exist before anything mutates host DNS; a crash after
	// this point can always be recovered from the file.
	servers, err := o.binder.CurrentDNSServers(ctx, service)
	if err != nil {
		return 0, err
	}
	if _, err := o.backups.Save(service, servers); err != nil {
		return 0, err
	}

	artifact, err := o.containers.Deploy(ctx)
	if err != nil {
		// Nothing network-visible changed yet; drop the unused backup.
		_ = o.backups.Clear()
		return 0, fmt.Errorf("%w: %v", ErrDeploy, err)
	}

	if err := o.proxy.Configure(); err != nil {
		return 0, o.rollback(ctx, artifact, err)
	}
	if err := o.proxy.Start(ctx); err != nil {
		return 0, o.rollback(ctx, artifact, err)
	}
	if err := o.binder.Preflight(ctx); err != nil {
		return 0, o.rollback(ctx, artifact, err)
	}

	// Point of commitment: only now is host DNS touched.
	if err := o.binder.Apply(ctx, service); err != nil {
		return 0, o.rollback(ctx, artifact, err)
	}

	o.logger.Info().Str("service", service).Msg("Install complete")
	return Installed, nil
}

// rollback removes the container created during this attempt and drops the
// backup: the DNS resolver setting was never altered, so there is nothing to
// restore. The original failure is returned, annotated with any rollback
// trouble.
func (o *Orchestrator) rollback(ctx context.Context, artifact *container.Artifact, cause error) error {
	o.logger.Warn().Err(cause).Msg("Install failed, rolling back")
	o.proxy.Stop(ctx)
	if err := o.containers.Stop(ctx, artifact.Name); err != nil {
		o.logger.Error().Err(err).Msg("Rollback: stopping container failed")
	}
	if err := o.containers.Remove(ctx, artifact.Name); err != nil {
		o.logger.Error().Err(err).Msg("Rollback: removing container failed")
		return fmt.Errorf("%v (rollback incomplete: container %s may remain)", cause, artifact.Name)
	}
	_ = o.backups.Clear()
	return cause
}

// Stop reverts the network bindings and stops the proxy and container. The
// artifact is retained so a later install can replace it. Every sub-step is
// best effort; failures are collected in the report, never fatal.
func (o *Orchestrator) Stop(ctx context.Context) (*TeardownReport, error) {
	return o.teardown(ctx, false)
}

// Uninstall performs stop semantics, then removes the container artifact and
// all persisted configuration, returning the host to exactly its pre-install
// state.
func (o *Orchestrator) Uninstall(ctx context.Context) (*TeardownReport, error) {
	return o.teardown(ctx, true)
}

func (o *Orchestrator) teardown(ctx context.Context, removeArtifacts bool) (*TeardownReport, error) {
	report := &TeardownReport{}

	backup, err := o.backups.Load()
	if err != nil {
		report.add("load DNS backup", err)
	}

	// Prefer the live default-route service; fall back to the recorded one
	// when the route lookup fails (for example on a disconnected machine).
	service, err := o.binder.FindActiveService(ctx)
	if err != nil {
		if backup != nil {
			service = backup.Service
		}
		report.add("find active network service", err)
	}

	if service != "" {
		revertErr := o.binder.Revert(ctx, service, backup)
		report.add("revert network bindings", revertErr)
		if revertErr == nil && backup != nil {
			report.add("remove DNS backup", o.backups.Clear())
		}
	}

	o.proxy.Stop(ctx)
	report.add("stop proxy", nil)

	artifact, err := o.containers.FindArtifact(ctx)
	if err != nil {
		report.add("query container", err)
	} else if artifact != nil {
		report.add("stop container", o.containers.Stop(ctx, artifact.Name))
		if removeArtifacts {
			report.add("remove container", o.containers.Remove(ctx, artifact.Name))
		}
	}

	if removeArtifacts {
		report.add("remove configuration directory", os.RemoveAll(o.cfg.ConfigDir))
	}

	if warning := report.Warning(); warning != "" {
		o.logger.Warn().Msg(warning)
	} else {
		o.logger.Info().Msg("Teardown complete")
	}
	return report, nil
}

func (o *Orchestrator) ensureDirs() error {
	for _, dir := range []string{o.cfg.ConfigDir, o.cfg.PiholeVolume(), o.cfg.DnsmasqVolume()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

// BackupExists reports whether a prior install left a DNS backup behind.
// Used by the status read path.
func (o *Orchestrator) BackupExists() (bool, error) {
	b, err := o.backups.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	return b != nil, nil
}
