package app

import (
	"context"
	"fmt"
	"time"

	dockerCli "github.com/docker/docker/client"
	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/command"
	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/container"
	"github.com/piholeup/piholeup/internal/deps"
	"github.com/piholeup/piholeup/internal/dnsbackup"
	"github.com/piholeup/piholeup/internal/dnsprobe"
	"github.com/piholeup/piholeup/internal/netbind"
	"github.com/piholeup/piholeup/internal/notify"
	"github.com/piholeup/piholeup/internal/orchestrator"
	"github.com/piholeup/piholeup/internal/proxy"
	"github.com/piholeup/piholeup/internal/verify"
)

// Prompter answers interactive decision points. The CLI layer provides the
// real one; a non-interactive caller can pass an always-yes or always-no
// implementation.
type Prompter = orchestrator.Prompter

// App wires every component together.
type App struct {
	dockerClient *dockerCli.Client
	orch         *orchestrator.Orchestrator
	verifier     *verify.Verifier
	logger       zerolog.Logger
}

// New creates the App by wiring up all dependencies.
func New(cfg *config.Config, prompter Prompter, logger zerolog.Logger) (*App, error) {
	docker, err := dockerCli.NewClientWithOpts(dockerCli.FromEnv, dockerCli.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	runner := command.NewRunner(logger, cfg.Logging.Debug)
	prober := dnsprobe.New()
	notifier := notify.NewWatcher(8*time.Second, logger)

	gate := deps.NewGate(cfg, runner, docker, prompter, notifier, logger)
	containers := container.NewController(docker, cfg, logger)
	proxyCtl := proxy.NewController(cfg, runner, prober, logger)
	binder := netbind.NewBinder(cfg, runner, prober, logger)
	backups := dnsbackup.NewStore(cfg.BackupPath(), logger)

	orch := orchestrator.New(cfg, gate, containers, proxyCtl, binder, backups, prompter, logger)
	verifier := verify.NewVerifier(cfg, prober, proxyCtl, logger)

	return &App{
		dockerClient: docker,
		orch:         orch,
		verifier:     verifier,
		logger:       logger,
	}, nil
}

// Install drives the host to Running.
func (a *App) Install(ctx context.Context) (orchestrator.InstallOutcome, error) {
	return a.orch.Install(ctx)
}

// Stop reverts network bindings and stops the proxy and container.
func (a *App) Stop(ctx context.Context) (*orchestrator.TeardownReport, error) {
	return a.orch.Stop(ctx)
}

// Uninstall removes the container, configuration, and backup entirely.
func (a *App) Uninstall(ctx context.Context) (*orchestrator.TeardownReport, error) {
	return a.orch.Uninstall(ctx)
}

// Verify runs the three-tier functional check.
func (a *App) Verify(ctx context.Context) *verify.Report {
	return a.verifier.Run(ctx)
}

// State returns the freshly derived service state.
func (a *App) State(ctx context.Context) (orchestrator.State, error) {
	return a.orch.DeriveState(ctx)
}

// BackupExists reports whether a DNS backup from a prior install is present.
func (a *App) BackupExists() (bool, error) {
	return a.orch.BackupExists()
}

func (a *App) Close() error {
	if a.dockerClient != nil {
		if err := a.dockerClient.Close(); err != nil {
			return fmt.Errorf("close docker client: %w", err)
		}
	}
	return nil
}
