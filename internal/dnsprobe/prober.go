// Package dnsprobe issues single DNS lookups with an explicit timeout against
// an explicit server. It backs both readiness polling and verification.
package dnsprobe

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Result is the outcome of a single probe.
type Result struct {
	// Addresses holds the A records of the answer, in answer order.
	Addresses []string
	// Rcode is the DNS response code (dns.RcodeSuccess, dns.RcodeNameError, ...).
	Rcode int
}

// Blocked reports whether the answer looks like an ad-blocker verdict:
// either an explicit NXDOMAIN or a null-route address.
func (r *Result) Blocked() bool {
	if r.Rcode == dns.RcodeNameError {
		return true
	}
	for _, addr := range r.Addresses {
		if addr == "0.0.0.0" || addr == "::" {
			return true
		}
	}
	// An answer with no A records at all is the classic Pi-hole "blocked"
	// shape for NODATA-style responses.
	return r.Rcode == dns.RcodeSuccess && len(r.Addresses) == 0
}

// Prober resolves one domain against one server.
type Prober interface {
	Lookup(ctx context.Context, domain, server string, timeout time.Duration) (*Result, error)
}

type miekgProber struct{}

// New returns a Prober backed by miekg/dns.
func New() Prober {
	return &miekgProber{}
}

func (p *miekgProber) Lookup(ctx context.Context, domain, server string, timeout time.Duration) (*Result, error) {
	client := &dns.Client{Timeout: timeout}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(domain), dns.TypeA)
	m.RecursionDesired = true

	host, _, err := net.SplitHostPort(server)
	if err != nil {
		server = net.JoinHostPort(server, "53")
	} else if host == "" {
		return nil, fmt.Errorf("invalid DNS server address %q", server)
	}

	resp, _, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("query %s @%s: %w", domain, server, err)
	}

	res := &Result{Rcode: resp.Rcode}
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			res.Addresses = append(res.Addresses, a.A.String())
		}
	}
	return res, nil
}
