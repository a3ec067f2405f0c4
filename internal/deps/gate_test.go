package deps

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/notify"
)

type fakeRunner struct {
	failing map[string]error
	calls   []string
}

func (r *fakeRunner) run(name string, args ...string) (string, error) {
	cmdline := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, cmdline)
	for prefix, err := range r.failing {
		if strings.HasPrefix(cmdline, prefix) {
			return "", err
		}
	}
	return "", nil
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

func (r *fakeRunner) RunQuiet(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

type fakeEngine struct {
	err   error
	pings int
}

func (e *fakeEngine) Ping(ctx context.Context) (types.Ping, error) {
	e.pings++
	return types.Ping{}, e.err
}

type cannedPrompter struct{ answer bool }

func (p cannedPrompter) Confirm(string) bool { return p.answer }

func newTestGate(runner *fakeRunner, engine *fakeEngine, answer bool) *Gate {
	cfg := &config.Config{
		Deps: config.DepsConfig{DockerWaitSeconds: 1, DockerPollSeconds: 1},
	}
	notifier := notify.NewWatcher(time.Minute, zerolog.Nop())
	return NewGate(cfg, runner, engine, cannedPrompter{answer}, notifier, zerolog.Nop())
}

func TestEnsureNoOpWhenAllSatisfied(t *testing.T) {
	runner := &fakeRunner{}
	engine := &fakeEngine{}
	gate := newTestGate(runner, engine, false)

	if err := gate.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "install") || strings.Contains(call, "open -a") {
			t.Errorf("unexpected acquisition call %q on a satisfied host", call)
		}
	}
	// Re-callable: a second pass is equally clean.
	if err := gate.Ensure(context.Background()); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}
}

func TestEnsureBrewDeclinedIsFatal(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{"brew --version": errors.New("command not found")}}
	gate := newTestGate(runner, &fakeEngine{}, false)

	err := gate.Ensure(context.Background())
	if !errors.Is(err, ErrDependency) {
		t.Fatalf("Ensure() error = %v, want ErrDependency", err)
	}
	for _, call := range runner.calls {
		if strings.Contains(call, "install.sh") {
			t.Error("Homebrew install attempted although the user declined")
		}
	}
}

func TestEnsureInstallsMissingDnsmasq(t *testing.T) {
	runner := &fakeRunner{failing: map[string]error{"brew list dnsmasq": errors.New("not installed")}}
	gate := newTestGate(runner, &fakeEngine{}, true)

	if err := gate.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	found := false
	for _, call := range runner.calls {
		if call == "brew install dnsmasq" {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want a dnsmasq install", runner.calls)
	}
}

func TestEnsureDockerTimeoutIsBounded(t *testing.T) {
	runner := &fakeRunner{}
	engine := &fakeEngine{err: errors.New("cannot connect to the Docker daemon")}
	gate := newTestGate(runner, engine, true)

	start := time.Now()
	err := gate.Ensure(context.Background())
	elapsed := time.Since(start)

	if !errors.Is(err, ErrDependency) {
		t.Fatalf("Ensure() error = %v, want ErrDependency", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("docker wait took %v, exceeds the configured 1s budget by too much", elapsed)
	}
	launched := false
	for _, call := range runner.calls {
		if call == "open -a Docker" {
			launched = true
		}
	}
	if !launched {
		t.Errorf("calls = %v, want a Docker start request", runner.calls)
	}
}
