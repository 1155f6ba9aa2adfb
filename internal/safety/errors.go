// Package safety is the validation perimeter in front of the tool surface
// and the outbound callback pipeline: webhook URL vetting (SSRF), cron
// expression whitelisting, payload sanitization and HMAC request signing.
package safety

import "errors"

// URL validation failures. All of them surface to callers as a rejected URL;
// the distinct values exist for tests and logs.
var (
	ErrSchemeNotAllowed = errors.New("url scheme not allowed")
	ErrHostnameBlocked  = errors.New("hostname is blocked")
	ErrDNSFailure       = errors.New("hostname did not resolve")
	ErrIPBlocked        = errors.New("resolves to a blocked address")
	ErrRedirectBlocked  = errors.New("redirect responses are not followed")
)

// Cron whitelist failures.
var (
	ErrInvalidChars  = errors.New("cron contains invalid characters")
	ErrInvalidShape  = errors.New("cron must have exactly 5 fields")
	ErrFieldTooLong  = errors.New("cron field too long")
	ErrTooFrequent   = errors.New("cron would fire too frequently")
	ErrTooManyValues = errors.New("cron minute list has too many values")
)

// Payload failures.
var (
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrPayloadInvalid  = errors.New("payload is not JSON-serializable")
)

// Signature verification failures.
var (
	ErrBadTimestamp = errors.New("unparseable signature timestamp")
	ErrStaleRequest = errors.New("request too old")
	ErrBadSignature = errors.New("signature mismatch")
)
