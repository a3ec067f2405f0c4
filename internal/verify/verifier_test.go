package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/piholeup/piholeup/internal/config"
	"github.com/piholeup/piholeup/internal/dnsprobe"
)

type fakeProber struct {
	results map[string]*dnsprobe.Result
	errs    map[string]error
	// failuresBeforeSuccess makes the first N lookups of a domain fail,
	// simulating a proxy that recovers after a restart.
	failuresBeforeSuccess map[string]int
	calls                 map[string]int
}

func (p *fakeProber) Lookup(ctx context.Context, domain, server string, timeout time.Duration) (*dnsprobe.Result, error) {
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[domain]++
	if n, ok := p.failuresBeforeSuccess[domain]; ok && p.calls[domain] <= n {
		return nil, errors.New("i/o timeout")
	}
	if err, ok := p.errs[domain]; ok {
		return nil, err
	}
	if res, ok := p.results[domain]; ok {
		return res, nil
	}
	return &dnsprobe.Result{Addresses: []string{"93.184.216.34"}}, nil
}

type fakeProxy struct {
	startCalls int
	startErr   error
}

func (p *fakeProxy) Start(ctx context.Context) error {
	p.startCalls++
	return p.startErr
}

func newTestVerifier(prober *fakeProber, proxy *fakeProxy, pingErr error) *Verifier {
	cfg := &config.Config{
		Proxy: config.ProxyConfig{ListenAddress: "127.0.0.1"},
		Verify: config.VerifyConfig{
			PingTarget: "1.1.1.1",
			TestDomain: "example.com",
			AdDomain:   "doubleclick.net",
		},
	}
	v := NewVerifier(cfg, prober, proxy, zerolog.Nop())
	v.ping = func(ctx context.Context, target string) error { return pingErr }
	return v
}

func statusOf(t *testing.T, report *Report, name string) Check {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q missing from report %+v", name, report)
	return Check{}
}

func TestAllTiersPassWhenBlocked(t *testing.T) {
	prober := &fakeProber{results: map[string]*dnsprobe.Result{
		"doubleclick.net": {Addresses: []string{"0.0.0.0"}},
	}}
	report := newTestVerifier(prober, &fakeProxy{}, nil).Run(context.Background())

	for _, name := range []string{"internet reachability", "proxy responsiveness", "ad blocking"} {
		if c := statusOf(t, report, name); c.Status != Passed {
			t.Errorf("%s = %v, want passed", name, c.Status)
		}
	}
	if !report.Ok() {
		t.Error("report not Ok although everything passed")
	}
}

func TestConnectivityFailureSkipsLaterTiers(t *testing.T) {
	prober := &fakeProber{}
	report := newTestVerifier(prober, &fakeProxy{}, errors.New("network unreachable")).Run(context.Background())

	if c := statusOf(t, report, "internet reachability"); c.Status != Failed {
		t.Errorf("reachability = %v, want failed", c.Status)
	}
	for _, name := range []string{"proxy responsiveness", "ad blocking"} {
		if c := statusOf(t, report, name); c.Status != Skipped {
			t.Errorf("%s = %v, want skipped after connectivity failure", name, c.Status)
		}
	}
	if len(prober.calls) != 0 {
		t.Errorf("DNS probes issued despite connectivity failure: %v", prober.calls)
	}
	if report.Ok() {
		t.Error("report Ok despite hard failure")
	}
}

func TestProxyTierRestartsOnce(t *testing.T) {
	prober := &fakeProber{failuresBeforeSuccess: map[string]int{"example.com": 1}}
	proxy := &fakeProxy{}
	report := newTestVerifier(prober, proxy, nil).Run(context.Background())

	if c := statusOf(t, report, "proxy responsiveness"); c.Status != Passed {
		t.Errorf("proxy tier = %v, want passed after restart", c.Status)
	}
	if proxy.startCalls != 1 {
		t.Errorf("proxy restarted %d times, want exactly 1", proxy.startCalls)
	}
}

func TestProxyTierFailsAfterRestartFails(t *testing.T) {
	prober := &fakeProber{errs: map[string]error{"example.com": errors.New("refused")}}
	proxy := &fakeProxy{startErr: errors.New("still not ready")}
	report := newTestVerifier(prober, proxy, nil).Run(context.Background())

	if c := statusOf(t, report, "proxy responsiveness"); c.Status != Failed {
		t.Errorf("proxy tier = %v, want failed", c.Status)
	}
	// The blocking tier still runs and reports independently.
	if c := statusOf(t, report, "ad blocking"); c.Status == Skipped {
		t.Error("ad blocking skipped; only a connectivity failure may skip it")
	}
}

func TestUnblockedAdDomainIsWarningNotError(t *testing.T) {
	prober := &fakeProber{results: map[string]*dnsprobe.Result{
		"doubleclick.net": {Addresses: []string{"142.250.80.78"}},
	}}
	report := newTestVerifier(prober, &fakeProxy{}, nil).Run(context.Background())

	if c := statusOf(t, report, "ad blocking"); c.Status != Warning {
		t.Errorf("ad blocking = %v, want warning for an unblocked resolution", c.Status)
	}
	if !report.Ok() {
		t.Error("a stale blocklist warning must not fail verification")
	}
}
