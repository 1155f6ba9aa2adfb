package safety

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

// fakeResolver maps hostnames to fixed addresses per family.
type fakeResolver struct {
	v4 map[string][]string
	v6 map[string][]string
}

func (f *fakeResolver) LookupIP(_ context.Context, network, host string) ([]net.IP, error) {
	var lits []string
	switch network {
	case "ip4":
		lits = f.v4[host]
	case "ip6":
		lits = f.v6[host]
	}
	if len(lits) == 0 {
		return nil, fmt.Errorf("no %s records for %s", network, host)
	}
	ips := make([]net.IP, 0, len(lits))
	for _, l := range lits {
		ips = append(ips, net.ParseIP(l))
	}
	return ips, nil
}

func newTestValidator(production bool, allowed []string, r IPResolver) *URLValidator {
	v := NewURLValidator(production, allowed)
	if r != nil {
		v.SetResolver(r)
	}
	return v
}

func TestValidateSchemes(t *testing.T) {
	v := newTestValidator(false, nil, &fakeResolver{v4: map[string][]string{"example.com": {"93.184.216.34"}}})
	ctx := context.Background()

	if err := v.Validate(ctx, "https://example.com/hook"); err != nil {
		t.Fatalf("https should pass: %v", err)
	}
	if err := v.Validate(ctx, "http://example.com/hook"); err != nil {
		t.Fatalf("http should pass outside production: %v", err)
	}
	for _, raw := range []string{"ftp://example.com/x", "file:///etc/passwd", "gopher://example.com"} {
		if err := v.Validate(ctx, raw); !errors.Is(err, ErrSchemeNotAllowed) {
			t.Errorf("Validate(%q) = %v, want ErrSchemeNotAllowed", raw, err)
		}
	}
}

func TestValidateProductionRequiresHTTPS(t *testing.T) {
	v := newTestValidator(true, nil, &fakeResolver{v4: map[string][]string{"example.com": {"93.184.216.34"}}})
	if err := v.Validate(context.Background(), "http://example.com/hook"); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Fatalf("http in production = %v, want ErrSchemeNotAllowed", err)
	}
	if err := v.Validate(context.Background(), "https://example.com/hook"); err != nil {
		t.Fatalf("https in production should pass: %v", err)
	}
}

func TestValidateBlockedHostnames(t *testing.T) {
	v := newTestValidator(false, nil, nil)
	ctx := context.Background()
	hosts := []string{
		"localhost",
		"metadata.google.internal",
		"metadata.goog",
		"kubernetes.default",
		"kubernetes.default.svc",
		"foo.localhost",
		"printer.local",
		"vault.internal",
		"api.cluster.local",
		"db.prod.svc",
	}
	for _, h := range hosts {
		if err := v.Validate(ctx, "https://"+h+"/hook"); !errors.Is(err, ErrHostnameBlocked) {
			t.Errorf("Validate(%s) = %v, want ErrHostnameBlocked", h, err)
		}
	}
}

func TestValidateLiteralIPs(t *testing.T) {
	v := newTestValidator(false, nil, nil)
	ctx := context.Background()

	blocked := []string{
		"127.0.0.1", "127.255.255.254",
		"10.0.0.1", "10.255.0.1",
		"172.16.0.1", "172.31.255.1",
		"192.168.1.1",
		"169.254.169.254", // cloud metadata
		"0.0.0.0", "0.1.2.3",
		"100.64.0.1", "100.127.0.1",
		"192.0.0.1", "192.0.2.1", "198.51.100.7", "203.0.113.9",
		"224.0.0.1", "239.1.2.3",
		"240.0.0.1", "255.255.255.255",
	}
	for _, ip := range blocked {
		if err := v.Validate(ctx, "https://"+ip+"/hook"); !errors.Is(err, ErrIPBlocked) {
			t.Errorf("Validate(%s) = %v, want ErrIPBlocked", ip, err)
		}
	}

	blockedV6Lits := []string{
		"::1", "::",
		"fe80::1",
		"fc00::1", "fd12:3456::1",
		"ff02::1",
		"2001:db8::1",
		"100::1",
		"64:ff9b::a00:1", // NAT64 embedding 10.0.0.1
		"::ffff:127.0.0.1",
		"::ffff:192.168.0.1",
		"::ffff:169.254.169.254",
	}
	for _, ip := range blockedV6Lits {
		if err := v.Validate(ctx, "https://["+ip+"]/hook"); !errors.Is(err, ErrIPBlocked) {
			t.Errorf("Validate([%s]) = %v, want ErrIPBlocked", ip, err)
		}
	}

	for _, ip := range []string{"93.184.216.34", "8.8.8.8", "1.1.1.1"} {
		if err := v.Validate(ctx, "https://"+ip+"/hook"); err != nil {
			t.Errorf("Validate(%s) = %v, want nil", ip, err)
		}
	}
	if err := v.Validate(ctx, "https://[2606:4700::6810:84e5]/hook"); err != nil {
		t.Errorf("public v6 literal rejected: %v", err)
	}
}

func TestValidateResolvedAddresses(t *testing.T) {
	r := &fakeResolver{
		v4: map[string][]string{
			"safe.example.com":  {"93.184.216.34"},
			"evil.example.com":  {"169.254.169.254"},
			"mixed.example.com": {"93.184.216.34", "10.0.0.5"},
		},
		v6: map[string][]string{
			"v6only.example.com": {"2606:4700::6810:84e5"},
			"mapped.example.com": {"::ffff:192.168.1.10"},
		},
	}
	v := newTestValidator(false, nil, r)
	ctx := context.Background()

	if err := v.Validate(ctx, "https://safe.example.com/hook"); err != nil {
		t.Fatalf("safe host rejected: %v", err)
	}
	// One family failing is fine as long as the other resolves.
	if err := v.Validate(ctx, "https://v6only.example.com/hook"); err != nil {
		t.Fatalf("v6-only host rejected: %v", err)
	}
	if err := v.Validate(ctx, "https://evil.example.com/hook"); !errors.Is(err, ErrIPBlocked) {
		t.Errorf("metadata-resolving host = %v, want ErrIPBlocked", err)
	}
	// A single blocked address among several taints the whole host.
	if err := v.Validate(ctx, "https://mixed.example.com/hook"); !errors.Is(err, ErrIPBlocked) {
		t.Errorf("mixed host = %v, want ErrIPBlocked", err)
	}
	// IPv4-mapped v6 answers are unmapped before the table check.
	if err := v.Validate(ctx, "https://mapped.example.com/hook"); !errors.Is(err, ErrIPBlocked) {
		t.Errorf("mapped host = %v, want ErrIPBlocked", err)
	}
	if err := v.Validate(ctx, "https://unknown.example.com/hook"); !errors.Is(err, ErrDNSFailure) {
		t.Errorf("unresolvable host = %v, want ErrDNSFailure", err)
	}
}

func TestValidateAllowlist(t *testing.T) {
	r := &fakeResolver{v4: map[string][]string{
		"hooks.example.com":       {"93.184.216.34"},
		"api.hooks.example.com":   {"93.184.216.34"},
		"evilhooks.example.co":    {"93.184.216.34"},
		"hooks.example.com.evil.": {"93.184.216.34"},
	}}
	v := newTestValidator(false, []string{"hooks.example.com"}, r)
	ctx := context.Background()

	if err := v.Validate(ctx, "https://hooks.example.com/h"); err != nil {
		t.Fatalf("listed domain rejected: %v", err)
	}
	if err := v.Validate(ctx, "https://api.hooks.example.com/h"); err != nil {
		t.Fatalf("subdomain of listed domain rejected: %v", err)
	}
	if err := v.Validate(ctx, "https://evilhooks.example.co/h"); !errors.Is(err, ErrHostnameBlocked) {
		t.Errorf("off-list domain = %v, want ErrHostnameBlocked", err)
	}
}

func TestAllowlistCoversIPLiterals(t *testing.T) {
	v := newTestValidator(false, []string{"hooks.example.com"}, &fakeResolver{})
	ctx := context.Background()

	// A public IP literal must not sidestep a configured allowlist, even
	// though it would pass the block tables on its own.
	if err := v.Validate(ctx, "https://93.184.216.34/hook"); !errors.Is(err, ErrHostnameBlocked) {
		t.Fatalf("unlisted IP literal = %v, want ErrHostnameBlocked", err)
	}
	if err := v.Validate(ctx, "https://[2606:2800:220:1::1]/hook"); !errors.Is(err, ErrHostnameBlocked) {
		t.Errorf("unlisted v6 literal = %v, want ErrHostnameBlocked", err)
	}

	// A literal that is itself listed still passes.
	v.SetAllowedDomains([]string{"93.184.216.34"})
	if err := v.Validate(ctx, "https://93.184.216.34/hook"); err != nil {
		t.Errorf("listed IP literal rejected: %v", err)
	}

	// With no allowlist configured, public literals stay valid.
	v.SetAllowedDomains(nil)
	if err := v.Validate(ctx, "https://93.184.216.34/hook"); err != nil {
		t.Errorf("public literal without allowlist rejected: %v", err)
	}
}

func TestSetAllowedDomainsHotSwap(t *testing.T) {
	r := &fakeResolver{v4: map[string][]string{"b.example.com": {"93.184.216.34"}}}
	v := newTestValidator(false, []string{"a.example.com"}, r)
	ctx := context.Background()

	if err := v.Validate(ctx, "https://b.example.com/h"); !errors.Is(err, ErrHostnameBlocked) {
		t.Fatalf("pre-swap = %v, want ErrHostnameBlocked", err)
	}
	v.SetAllowedDomains([]string{"b.example.com"})
	if err := v.Validate(ctx, "https://b.example.com/h"); err != nil {
		t.Fatalf("post-swap = %v, want nil", err)
	}
}

func TestAddrBlocked(t *testing.T) {
	if !AddrBlocked("127.0.0.1") || !AddrBlocked("::1") || !AddrBlocked("::ffff:10.0.0.1") {
		t.Error("known-internal literals must be blocked")
	}
	if AddrBlocked("93.184.216.34") {
		t.Error("public literal must not be blocked")
	}
}
