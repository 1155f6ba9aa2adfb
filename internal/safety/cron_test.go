package safety

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateCronAccepts(t *testing.T) {
	good := []string{
		"*/5 * * * *",
		"0 9 * * 1-5",
		"30 14 1 * *",
		"0,15,30,45 * * * *",
		"0 0 L * *",
		"0 12 * * 1#2",
		"15 10 ? * *",
	}
	for _, expr := range good {
		if err := ValidateCron(expr); err != nil {
			t.Errorf("ValidateCron(%q) = %v, want nil", expr, err)
		}
	}
}

func TestValidateCronRejectsInjection(t *testing.T) {
	bad := []string{
		"5 * * * *; rm -rf /",
		"5 * * * * && curl evil",
		"5 * * * *\n@reboot",
		"5 * * * $(id)",
		"5 * * * *`",
		"５ * * * *", // full-width digit
	}
	for _, expr := range bad {
		if err := ValidateCron(expr); !errors.Is(err, ErrInvalidChars) {
			t.Errorf("ValidateCron(%q) = %v, want ErrInvalidChars", expr, err)
		}
	}
}

func TestValidateCronShape(t *testing.T) {
	if err := ValidateCron("* * * *"); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("4 fields = %v, want ErrInvalidShape", err)
	}
	if err := ValidateCron("0 * * * * *"); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("6 fields = %v, want ErrInvalidShape", err)
	}
	long := strings.Repeat("1,", 10) + "1" // 21 bytes
	if err := ValidateCron(long + " * * * *"); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("oversized field = %v, want ErrFieldTooLong", err)
	}
}

func TestValidateCronFrequency(t *testing.T) {
	if err := ValidateCron("* * * * *"); !errors.Is(err, ErrTooFrequent) {
		t.Errorf("every minute = %v, want ErrTooFrequent", err)
	}
	if err := ValidateCron("*/1 * * * *"); !errors.Is(err, ErrTooFrequent) {
		t.Errorf("*/1 = %v, want ErrTooFrequent", err)
	}

	vals := make([]string, 31)
	for i := range vals {
		vals[i] = "1"
	}
	expr := strings.Join(vals, ",") + " * * * *"
	// 31 comma values trips the field length cap first; either way it fails.
	if err := ValidateCron(expr); err == nil {
		t.Error("31 minute values should be rejected")
	}
}
