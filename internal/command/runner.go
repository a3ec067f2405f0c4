// Package command wraps external process invocation. Every call to brew,
// networksetup, route, or the hosts file helpers goes through a Runner so
// components stay testable and the debug flag can echo each invocation.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Runner executes an external command and returns its trimmed stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
	// RunQuiet executes a command whose failure the caller intends to
	// swallow; the error is still returned but logged at debug only.
	RunQuiet(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct {
	logger zerolog.Logger
	echo   bool
}

// NewRunner returns a Runner backed by os/exec. When echo is set, every
// command line is printed before execution.
func NewRunner(logger zerolog.Logger, echo bool) Runner {
	return &execRunner{logger: logger, echo: echo}
}

func (r *execRunner) run(ctx context.Context, quiet bool, name string, args ...string) (string, error) {
	cmdline := name + " " + strings.Join(args, " ")
	if r.echo {
		fmt.Println("+ " + cmdline)
	}
	r.logger.Debug().Str("cmd", cmdline).Msg("Executing external command")

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := strings.TrimSpace(stdout.String())
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		wrapped := fmt.Errorf("%s: %s", cmdline, msg)
		if quiet {
			r.logger.Debug().Err(wrapped).Msg("External command failed (ignored)")
		} else {
			r.logger.Debug().Err(wrapped).Msg("External command failed")
		}
		return out, wrapped
	}
	return out, nil
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(ctx, false, name, args...)
}

func (r *execRunner) RunQuiet(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(ctx, true, name, args...)
}
