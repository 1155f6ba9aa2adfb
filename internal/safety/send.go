package safety

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"time"

	"golang.org/x/time/rate"
)

const maxResponseBytes = 64 * 1024

// Response is the outcome of a secure send. Body is capped at 64 KiB; the
// dispatcher truncates further for storage.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// Sender performs outbound HTTP with DNS-rebinding protection: the URL is
// re-validated immediately before the request and the connection is pinned
// to the first safe resolved address, so the address checked is the address
// dialed. Redirects are never followed.
type Sender struct {
	validator *URLValidator
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter // paces all outbound sends from this process
}

// NewSender creates a sender. timeout bounds each request; rps/burst pace
// outbound sends (rps <= 0 disables pacing).
func NewSender(validator *URLValidator, timeout time.Duration, userAgent string, rps float64, burst int) *Sender {
	var limiter *rate.Limiter
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Sender{
		validator: validator,
		timeout:   timeout,
		userAgent: userAgent,
		limiter:   limiter,
	}
}

// Send re-validates url, pins the connection and performs the request.
// A 3xx response fails with ErrRedirectBlocked carrying the target location.
func (s *Sender) Send(ctx context.Context, method, rawURL string, headers map[string]string, body []byte) (*Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// Anti-TOCTOU: validate now, not at registration time only.
	u, pinned, err := s.validator.ResolvePinned(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Host = u.Host // original hostname on the wire
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Transport: pinnedTransport(u.Hostname(), pinned),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("request timed out after %s: %w", s.timeout, context.DeadlineExceeded)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil, fmt.Errorf("%w: %d -> %s", ErrRedirectBlocked, resp.StatusCode, resp.Header.Get("Location"))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       data,
		Header:     resp.Header,
	}, nil
}

// pinnedTransport dials the already-validated address regardless of what the
// hostname resolves to at connect time, closing the rebinding window. TLS
// still verifies against the original hostname because the request URL is
// unchanged.
func pinnedTransport(host string, pinned netip.Addr) *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, net.JoinHostPort(pinned.String(), port))
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}
