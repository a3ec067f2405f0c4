package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/piholeup/piholeup/internal/app"
	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/logger"
	"github.com/piholeup/piholeup/internal/orchestrator"
)

type contextKey string

const appKey = contextKey("app")

var rootCmd = &cobra.Command{
	Use:   "piholeup",
	Short: "System-wide DNS ad blocking via Pi-hole and dnsmasq",
	Long: "piholeup installs, stops, and removes a Pi-hole container together with a local\n" +
		"dnsmasq forwarder, rewiring the host's DNS to loopback and restoring it on teardown.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(); err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		log := logger.New(&cfg.Logging)

		application, err := app.New(cfg, newStdinPrompter(), log)
		if err != nil {
			return err
		}
		cmd.SetContext(context.WithValue(cmd.Context(), appKey, application))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// No subcommand: interactive menu.
		return runMenu(cmd.Context(), appFrom(cmd))
	},
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start the ad-blocking service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context(), appFrom(cmd))
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the service and restore the original DNS configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStop(cmd.Context(), appFrom(cmd))
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the container, configuration, and DNS backup entirely",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUninstall(cmd.Context(), appFrom(cmd))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the three-tier functional check",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd.Context(), appFrom(cmd))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the derived service state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd.Context(), appFrom(cmd))
	},
}

func appFrom(cmd *cobra.Command) *app.App {
	return cmd.Context().Value(appKey).(*app.App)
}

func runInstall(ctx context.Context, application *app.App) error {
	outcome, err := application.Install(ctx)
	if err != nil {
		if errors.Is(err, orchestrator.ErrAborted) {
			fmt.Println("Install aborted.")
			return nil
		}
		return err
	}
	switch outcome {
	case orchestrator.AlreadyRunning:
		fmt.Println("Pi-hole is already running. Run 'piholeup verify' to check it.")
	default:
		fmt.Println("Pi-hole is installed and your DNS now goes through it.")
	}
	return nil
}

func runStop(ctx context.Context, application *app.App) error {
	report, err := application.Stop(ctx)
	if err != nil {
		return err
	}
	if warning := report.Warning(); warning != "" {
		fmt.Println("Stopped with warnings: " + warning)
	} else {
		fmt.Println("Stopped. Your original DNS configuration is restored.")
	}
	return nil
}

func runUninstall(ctx context.Context, application *app.App) error {
	report, err := application.Uninstall(ctx)
	if err != nil {
		return err
	}
	if warning := report.Warning(); warning != "" {
		fmt.Println("Uninstalled with warnings: " + warning)
	} else {
		fmt.Println("Uninstalled. The host is back to its pre-install state.")
	}
	return nil
}

func runVerify(ctx context.Context, application *app.App) error {
	report := application.Verify(ctx)
	for _, check := range report.Checks {
		line := fmt.Sprintf("  %-24s %s", check.Name, check.Status)
		if check.Detail != "" {
			line += " (" + check.Detail + ")"
		}
		fmt.Println(line)
	}
	if !report.Ok() {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func runStatus(ctx context.Context, application *app.App) error {
	state, err := application.State(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("service state: %s\n", state)

	backed, err := application.BackupExists()
	if err != nil {
		return err
	}
	if backed {
		fmt.Println("DNS backup:    present (host DNS was changed by an install)")
	} else {
		fmt.Println("DNS backup:    none")
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "echo every external command before execution")
	rootCmd.PersistentFlags().String("log-level", "INFO", "set log level (e.g. INFO, DEBUG, WARN)")
	viper.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(installCmd, stopCmd, uninstallCmd, verifyCmd, statusCmd)
}

// Execute runs the root command.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
