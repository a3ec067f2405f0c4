package netbind

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/dnsbackup"
)

// spyRunner returns canned output per command prefix and records every call.
type spyRunner struct {
	responses map[string]string
	errors    map[string]error
	calls     []string
}

func (r *spyRunner) run(name string, args ...string) (string, error) {
	cmdline := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, cmdline)
	for prefix, err := range r.errors {
		if strings.HasPrefix(cmdline, prefix) {
			return "", err
		}
	}
	for prefix, out := range r.responses {
		if strings.HasPrefix(cmdline, prefix) {
			return out, nil
		}
	}
	return "", nil
}

func (r *spyRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

func (r *spyRunner) RunQuiet(ctx context.Context, name string, args ...string) (string, error) {
	return r.run(name, args...)
}

func newTestBinder(t *testing.T, runner *spyRunner) (*Binder, string) {
	t.Helper()
	hosts := filepath.Join(t.TempDir(), "hosts")
	if err := os.WriteFile(hosts, []byte("127.0.0.1 localhost\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		HostsFile: hosts,
		Pihole:    config.PiholeConfig{Hostname: "pi.hole", DNSPort: 5335},
		Proxy:     config.ProxyConfig{ListenAddress: "127.0.0.1"},
	}
	return NewBinder(cfg, runner, nil, zerolog.Nop()), hosts
}

func countMappingLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "127.0.0.1 pi.hole" {
			count++
		}
	}
	return count
}

func TestApplyIsIdempotentOnHostsFile(t *testing.T) {
	runner := &spyRunner{}
	binder, hosts := newTestBinder(t, runner)

	for i := 0; i < 3; i++ {
		if err := binder.Apply(context.Background(), "Wi-Fi"); err != nil {
			t.Fatalf("Apply() #%d error = %v", i+1, err)
		}
	}
	if n := countMappingLines(t, hosts); n != 1 {
		t.Errorf("hosts file has %d mapping lines after 3 applies, want 1", n)
	}
}

func TestApplySetsLoopbackDNS(t *testing.T) {
	runner := &spyRunner{}
	binder, _ := newTestBinder(t, runner)

	if err := binder.Apply(context.Background(), "Wi-Fi"); err != nil {
		t.Fatal(err)
	}
	want := "networksetup -setdnsservers Wi-Fi 127.0.0.1"
	found := false
	for _, call := range runner.calls {
		if call == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", runner.calls, want)
	}
}

func TestRevertOnAbsentMappingIsNoOp(t *testing.T) {
	runner := &spyRunner{}
	binder, hosts := newTestBinder(t, runner)

	before, _ := os.ReadFile(hosts)
	for i := 0; i < 2; i++ {
		if err := binder.Revert(context.Background(), "Wi-Fi", nil); err != nil {
			t.Fatalf("Revert() #%d error = %v", i+1, err)
		}
	}
	after, _ := os.ReadFile(hosts)
	if string(before) != string(after) {
		t.Errorf("hosts file changed by revert of an absent mapping:\n%s", string(after))
	}
}

func TestRevertRestoresRecordedServers(t *testing.T) {
	runner := &spyRunner{}
	binder, hosts := newTestBinder(t, runner)

	if err := binder.Apply(context.Background(), "Wi-Fi"); err != nil {
		t.Fatal(err)
	}
	backup := &dnsbackup.Backup{Service: "Wi-Fi", Servers: []string{"192.168.1.1", "8.8.8.8"}}
	if err := binder.Revert(context.Background(), "Wi-Fi", backup); err != nil {
		t.Fatal(err)
	}

	if n := countMappingLines(t, hosts); n != 0 {
		t.Errorf("mapping still present after revert (%d lines)", n)
	}
	want := "networksetup -setdnsservers Wi-Fi 192.168.1.1 8.8.8.8"
	if runner.calls[len(runner.calls)-1] != want {
		t.Errorf("last call = %q, want %q", runner.calls[len(runner.calls)-1], want)
	}
}

func TestRevertAutomaticSetsEmpty(t *testing.T) {
	runner := &spyRunner{}
	binder, _ := newTestBinder(t, runner)

	backup := &dnsbackup.Backup{Service: "Wi-Fi", Servers: nil}
	if err := binder.Revert(context.Background(), "Wi-Fi", backup); err != nil {
		t.Fatal(err)
	}
	want := "networksetup -setdnsservers Wi-Fi empty"
	if runner.calls[len(runner.calls)-1] != want {
		t.Errorf("last call = %q, want %q", runner.calls[len(runner.calls)-1], want)
	}
}

func TestFindActiveService(t *testing.T) {
	runner := &spyRunner{
		responses: map[string]string{
			"route -n get default": "   route to: default\n   interface: en0\n",
			"networksetup -listallhardwareports": "Hardware Port: Ethernet\nDevice: en1\n\n" +
				"Hardware Port: Wi-Fi\nDevice: en0\n",
		},
	}
	binder, _ := newTestBinder(t, runner)

	service, err := binder.FindActiveService(context.Background())
	if err != nil {
		t.Fatalf("FindActiveService() error = %v", err)
	}
	if service != "Wi-Fi" {
		t.Errorf("service = %q, want Wi-Fi", service)
	}
}

func TestFindActiveServiceNoDefaultRoute(t *testing.T) {
	runner := &spyRunner{
		errors: map[string]error{"route": fmt.Errorf("route: writing to routing socket: not in table")},
	}
	binder, _ := newTestBinder(t, runner)

	if _, err := binder.FindActiveService(context.Background()); err == nil {
		t.Fatal("FindActiveService() succeeded without a default route")
	}
}

func TestCurrentDNSServers(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []string
	}{
		{"two servers", "192.168.1.1\n8.8.8.8", []string{"192.168.1.1", "8.8.8.8"}},
		{"automatic", "There aren't any DNS Servers set on Wi-Fi.", nil},
		{"empty output", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &spyRunner{responses: map[string]string{"networksetup -getdnsservers": tt.output}}
			binder, _ := newTestBinder(t, runner)

			got, err := binder.CurrentDNSServers(context.Background(), "Wi-Fi")
			if err != nil {
				t.Fatalf("CurrentDNSServers() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("servers = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("servers = %v, want %v", got, tt.want)
				}
			}
		})
	}
}
