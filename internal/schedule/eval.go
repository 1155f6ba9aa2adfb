// Package schedule evaluates one-shot fire times and 5-field cron
// expressions. The worker calls NextAfter after every recurring fire and the
// scheduling tools call it once at registration, so the whole system depends
// on this being deterministic modulo wall clock.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPastTime means an absolute one-shot timestamp is strictly in the past.
	ErrPastTime = errors.New("fire time is in the past")

	// ErrBadTime means the at/in input could not be parsed.
	ErrBadTime = errors.New("unparseable fire time")

	// ErrBadCron means the expression is not a valid 5-field cron.
	ErrBadCron = errors.New("invalid cron expression")

	// ErrBadTimezone means the IANA timezone name is unknown.
	ErrBadTimezone = errors.New("unknown timezone")

	// ErrNoUpcoming means the expression has no match within one year,
	// which guards against infeasible inputs.
	ErrNoUpcoming = errors.New("cron expression has no upcoming match within one year")
)

// relativeRe matches relative durations of the form <integer><unit>.
var relativeRe = regexp.MustCompile(`^(\d+)(ms|s|m|h|d|w)$`)

var relativeUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// ParseFireAt resolves a one-shot fire time from either an absolute RFC 3339
// timestamp (at) or a relative duration string (in). Exactly one of the two
// must be non-empty. Absolute timestamps strictly before now fail.
func ParseFireAt(at, in string, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != "":
		return time.Time{}, fmt.Errorf("%w: provide either at or in, not both", ErrBadTime)
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q is not RFC 3339", ErrBadTime, at)
		}
		if t.Before(now) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrPastTime, t.Format(time.RFC3339))
		}
		return t.UTC(), nil
	case in != "":
		m := relativeRe.FindStringSubmatch(in)
		if m == nil {
			return time.Time{}, fmt.Errorf("%w: %q is not <integer><ms|s|m|h|d|w>", ErrBadTime, in)
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("%w: bad duration count %q", ErrBadTime, m[1])
		}
		return now.Add(time.Duration(n) * relativeUnits[m[2]]).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: one of at or in is required", ErrBadTime)
	}
}

// Evaluator computes cron fire times in an IANA timezone. Validated
// expressions are cached so the hot path (one gronx parse per recurring
// fire) stays cheap.
type Evaluator struct {
	gx    *gronx.Gronx
	valid *lru.Cache[string, bool]
}

const validationCacheSize = 256

// NewEvaluator creates an evaluator with a warm validation cache.
func NewEvaluator() *Evaluator {
	cache, _ := lru.New[string, bool](validationCacheSize)
	return &Evaluator{gx: gronx.New(), valid: cache}
}

// Validate checks that expr is a parseable 5-field cron expression.
// This is syntax only; the safety layer applies its own whitelist first.
func (e *Evaluator) Validate(expr string) error {
	if ok, hit := e.valid.Get(expr); hit {
		if !ok {
			return fmt.Errorf("%w: %s", ErrBadCron, expr)
		}
		return nil
	}
	ok := e.gx.IsValid(expr)
	e.valid.Add(expr, ok)
	if !ok {
		return fmt.Errorf("%w: %s", ErrBadCron, expr)
	}
	return nil
}

// NextAfter returns the smallest instant strictly greater than t matching
// expr in timezone tz (default UTC). Expressions with no match within one
// year fail with ErrNoUpcoming.
func (e *Evaluator) NextAfter(expr, tz string, t time.Time) (time.Time, error) {
	if err := e.Validate(expr); err != nil {
		return time.Time{}, err
	}
	loc, err := loadLocation(tz)
	if err != nil {
		return time.Time{}, err
	}

	next, err := gronx.NextTickAfter(expr, t.In(loc), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoUpcoming, expr)
	}
	if next.After(t.AddDate(1, 0, 0)) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoUpcoming, expr)
	}
	return next.UTC(), nil
}

// Upcoming returns the next n matches of expr in tz after now.
func (e *Evaluator) Upcoming(expr, tz string, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	t := time.Now()
	for range n {
		next, err := e.NextAfter(expr, tz, t)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
		t = next
	}
	return out, nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadTimezone, tz)
	}
	return loc, nil
}
