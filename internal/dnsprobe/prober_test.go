package dnsprobe

import (
	"testing"

	"github.com/miekg/dns"
)

func TestResultBlocked(t *testing.T) {
	tests := []struct {
		name string
		res  Result
		want bool
	}{
		{"nxdomain", Result{Rcode: dns.RcodeNameError}, true},
		{"null route v4", Result{Rcode: dns.RcodeSuccess, Addresses: []string{"0.0.0.0"}}, true},
		{"null route v6", Result{Rcode: dns.RcodeSuccess, Addresses: []string{"::"}}, true},
		{"empty answer", Result{Rcode: dns.RcodeSuccess}, true},
		{"normal answer", Result{Rcode: dns.RcodeSuccess, Addresses: []string{"142.250.80.78"}}, false},
		{"servfail with answer", Result{Rcode: dns.RcodeServerFailure, Addresses: []string{"1.2.3.4"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.res.Blocked(); got != tt.want {
				t.Errorf("Blocked() = %v, want %v", got, tt.want)
			}
		})
	}
}
