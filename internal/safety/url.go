package safety

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"sync"
)

// blockedHostnames are internal/metadata names rejected exactly or as a
// *.suffix match, before any DNS resolution happens.
var blockedHostnames = map[string]bool{
	"localhost":                true,
	"metadata.google.internal": true,
	"metadata.goog":            true,
	"kubernetes.default":       true,
	"kubernetes.default.svc":   true,
}

var blockedHostSuffixes = []string{
	".localhost",
	".local",
	".internal",
	".svc",
	".cluster.local",
}

// blockedV4 covers loopback, RFC 1918, link-local, CGNAT, documentation,
// multicast, reserved and broadcast space.
var blockedV4 = mustPrefixes(
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"192.0.0.0/24",
	"192.0.2.0/24",
	"198.51.100.0/24",
	"203.0.113.0/24",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"255.255.255.255/32",
)

var blockedV6 = mustPrefixes(
	"::1/128",
	"::/128",
	"fe80::/10",
	"fc00::/7",
	"fd00::/8",
	"ff00::/8",
	"2001:db8::/32",
	"100::/64",
	"64:ff9b::/96",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		out = append(out, netip.MustParsePrefix(c))
	}
	return out
}

// IPResolver resolves a hostname to addresses of one family ("ip4"/"ip6").
// *net.Resolver satisfies it; tests inject a fake.
type IPResolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// URLValidator vets webhook target URLs before registration and again
// immediately before every send. The domain allowlist is hot-reloadable.
type URLValidator struct {
	resolver   IPResolver
	production bool

	mu      sync.RWMutex
	allowed []string // lowercase domains; empty = any (subject to blocklists)
}

// NewURLValidator creates a validator. production enforces https-only
// schemes. allowedDomains may be empty.
func NewURLValidator(production bool, allowedDomains []string) *URLValidator {
	v := &URLValidator{
		resolver:   net.DefaultResolver,
		production: production,
	}
	v.SetAllowedDomains(allowedDomains)
	return v
}

// SetResolver overrides the DNS resolver (tests).
func (v *URLValidator) SetResolver(r IPResolver) {
	v.resolver = r
}

// SetAllowedDomains replaces the domain allowlist. Called by the config
// watcher on reload.
func (v *URLValidator) SetAllowedDomains(domains []string) {
	cleaned := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			cleaned = append(cleaned, d)
		}
	}
	v.mu.Lock()
	v.allowed = cleaned
	v.mu.Unlock()
}

// Validate parses and vets rawURL:
//  1. scheme must be http/https (https only in production);
//  2. the hostname must not match the internal-name blocklist;
//  3. a literal IP hostname is tested directly against the block tables;
//  4. if an allowlist is configured the hostname must be a listed domain or
//     a subdomain of one;
//  5. the hostname is resolved over both families and every resolved
//     address is tested against the block tables.
func (v *URLValidator) Validate(ctx context.Context, rawURL string) error {
	_, _, err := v.validateAndResolve(ctx, rawURL)
	return err
}

// ResolvePinned validates rawURL and additionally returns the parsed URL and
// the first safe resolved address, for connection pinning by the sender.
func (v *URLValidator) ResolvePinned(ctx context.Context, rawURL string) (*url.URL, netip.Addr, error) {
	return v.validateAndResolve(ctx, rawURL)
}

func (v *URLValidator) validateAndResolve(ctx context.Context, rawURL string) (*url.URL, netip.Addr, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, netip.Addr{}, fmt.Errorf("%w: %v", ErrSchemeNotAllowed, err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if v.production {
			return nil, netip.Addr{}, fmt.Errorf("%w: https required in production", ErrSchemeNotAllowed)
		}
	default:
		return nil, netip.Addr{}, fmt.Errorf("%w: %q", ErrSchemeNotAllowed, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, netip.Addr{}, fmt.Errorf("%w: missing hostname", ErrHostnameBlocked)
	}

	if blockedHostnames[host] {
		return nil, netip.Addr{}, fmt.Errorf("%w: %s (SSRF)", ErrHostnameBlocked, host)
	}
	for _, suffix := range blockedHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return nil, netip.Addr{}, fmt.Errorf("%w: %s (SSRF)", ErrHostnameBlocked, host)
		}
	}

	// The allowlist gates every hostname, IP literals included; otherwise a
	// literal for an unlisted host would slip past a configured allowlist.
	if !v.hostAllowed(host) {
		return nil, netip.Addr{}, fmt.Errorf("%w: %s is not an allowed domain", ErrHostnameBlocked, host)
	}

	// Literal IP hostname: test directly, no DNS involved. u.Hostname()
	// already strips IPv6 brackets.
	if addr, err := netip.ParseAddr(host); err == nil {
		if err := checkAddr(addr); err != nil {
			return nil, netip.Addr{}, err
		}
		return u, addr, nil
	}

	// Resolve both families; tolerate each family failing on its own.
	v4, err4 := v.resolver.LookupIP(ctx, "ip4", host)
	v6, err6 := v.resolver.LookupIP(ctx, "ip6", host)
	if len(v4) == 0 && len(v6) == 0 {
		return nil, netip.Addr{}, fmt.Errorf("%w: %s (%v, %v)", ErrDNSFailure, host, err4, err6)
	}

	var pinned netip.Addr
	for _, ip := range append(v4, v6...) {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if err := checkAddr(addr); err != nil {
			return nil, netip.Addr{}, fmt.Errorf("%s: %w", host, err)
		}
		if !pinned.IsValid() {
			pinned = addr.Unmap()
		}
	}
	if !pinned.IsValid() {
		return nil, netip.Addr{}, fmt.Errorf("%w: %s", ErrDNSFailure, host)
	}
	return u, pinned, nil
}

func (v *URLValidator) hostAllowed(host string) bool {
	v.mu.RLock()
	allowed := v.allowed
	v.mu.RUnlock()

	if len(allowed) == 0 {
		return true
	}
	for _, d := range allowed {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// checkAddr tests one address against the block tables. IPv4-mapped IPv6
// (::ffff:a.b.c.d) is unmapped and re-tested as IPv4.
func checkAddr(addr netip.Addr) error {
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	table := blockedV6
	if addr.Is4() {
		table = blockedV4
	}
	for _, p := range table {
		if p.Contains(addr) {
			return fmt.Errorf("%w: %s", ErrIPBlocked, addr)
		}
	}
	return nil
}

// AddrBlocked reports whether a single address literal is in the block
// tables. Exposed for the signature/SSRF property tests.
func AddrBlocked(literal string) bool {
	addr, err := netip.ParseAddr(literal)
	if err != nil {
		return false
	}
	return checkAddr(addr) != nil
}
