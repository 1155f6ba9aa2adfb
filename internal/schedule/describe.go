package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Describe renders a best-effort human string for a cron expression.
// Unrecognized shapes fall back to the raw expression.
func Describe(expr string) string {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return expr
	}
	min, hour, dom, month, dow := fields[0], fields[1], fields[2], fields[3], fields[4]

	switch {
	case dom == "*" && month == "*" && dow == "*":
		if h, m, ok := clockTime(hour, min); ok {
			return fmt.Sprintf("daily at %02d:%02d", h, m)
		}
		if hour == "*" {
			if n, ok := stepOf(min); ok {
				return fmt.Sprintf("every %d minutes", n)
			}
		}
		if m, err := strconv.Atoi(min); err == nil && m >= 0 && m < 60 {
			if n, ok := stepOf(hour); ok {
				return fmt.Sprintf("every %d hours at minute %d", n, m)
			}
			if hour == "*" {
				return fmt.Sprintf("hourly at minute %d", m)
			}
		}
	case dom == "*" && month == "*" && dow != "*":
		if h, m, ok := clockTime(hour, min); ok {
			if name, ok := weekdayName(dow); ok {
				return fmt.Sprintf("every %s at %02d:%02d", name, h, m)
			}
		}
	case month == "*" && dow == "*":
		if h, m, ok := clockTime(hour, min); ok {
			if d, err := strconv.Atoi(dom); err == nil && d >= 1 && d <= 31 {
				return fmt.Sprintf("monthly on day %d at %02d:%02d", d, h, m)
			}
		}
	}
	return expr
}

func clockTime(hour, min string) (int, int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(min)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

func stepOf(field string) (int, bool) {
	rest, ok := strings.CutPrefix(field, "*/")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

var weekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func weekdayName(dow string) (string, bool) {
	n, err := strconv.Atoi(dow)
	if err != nil {
		return "", false
	}
	if n == 7 {
		n = 0
	}
	if n < 0 || n > 6 {
		return "", false
	}
	return weekdayNames[n], true
}
