package safety

import (
	"fmt"
	"strings"
)

const (
	maxCronFieldBytes   = 20
	maxMinuteListValues = 30
)

// cronWhitelist is the exact byte class allowed in a cron expression.
// Anything else (shell metacharacters, newlines, unicode) is rejected before
// the expression gets anywhere near a parser.
func cronByteAllowed(b byte) bool {
	switch {
	case b >= '0' && b <= '9':
		return true
	case b == ' ' || b == '\t':
		return true
	case b == ',' || b == '-' || b == '*' || b == '/':
		return true
	case b == 'L' || b == 'W' || b == '#' || b == '?':
		return true
	}
	return false
}

// ValidateCron applies the injection/DoS whitelist to a 5-field cron
// expression. Syntax validation (does it actually parse) is the evaluator's
// job; this guards shape and frequency.
func ValidateCron(expr string) error {
	for i := 0; i < len(expr); i++ {
		if !cronByteAllowed(expr[i]) {
			return fmt.Errorf("%w: byte %q at offset %d", ErrInvalidChars, expr[i], i)
		}
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("%w: got %d", ErrInvalidShape, len(fields))
	}
	for i, f := range fields {
		if len(f) > maxCronFieldBytes {
			return fmt.Errorf("%w: field %d is %d bytes (max %d)", ErrFieldTooLong, i+1, len(f), maxCronFieldBytes)
		}
	}

	minute := fields[0]
	if minute == "*" || minute == "*/1" {
		return fmt.Errorf("%w: minute field %q fires every minute", ErrTooFrequent, minute)
	}
	if strings.Count(minute, ",")+1 > maxMinuteListValues {
		return fmt.Errorf("%w: %d values (max %d)", ErrTooManyValues, strings.Count(minute, ",")+1, maxMinuteListValues)
	}
	return nil
}
