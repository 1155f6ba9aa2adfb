package safety

import (
	"context"
	"errors"
	"testing"
	"time"
)

// The sender re-validates the URL immediately before dialing, so a target
// that is (or became) unsafe never gets a connection.
func TestSendRefusesBlockedTargets(t *testing.T) {
	v := NewURLValidator(false, nil)
	s := NewSender(v, 5*time.Second, "test-agent", 0, 0)
	ctx := context.Background()

	if _, err := s.Send(ctx, "POST", "http://169.254.169.254/latest/meta-data/", nil, nil); !errors.Is(err, ErrIPBlocked) {
		t.Errorf("metadata endpoint = %v, want ErrIPBlocked", err)
	}
	if _, err := s.Send(ctx, "POST", "http://localhost:8080/hook", nil, nil); !errors.Is(err, ErrHostnameBlocked) {
		t.Errorf("localhost = %v, want ErrHostnameBlocked", err)
	}
	if _, err := s.Send(ctx, "POST", "ftp://example.com/x", nil, nil); !errors.Is(err, ErrSchemeNotAllowed) {
		t.Errorf("ftp = %v, want ErrSchemeNotAllowed", err)
	}
}

func TestSendRevalidatesAfterAllowlistChange(t *testing.T) {
	v := NewURLValidator(false, []string{"allowed.example.com"})
	v.SetResolver(&fakeResolver{v4: map[string][]string{"other.example.com": {"93.184.216.34"}}})
	s := NewSender(v, time.Second, "test-agent", 0, 0)

	_, err := s.Send(context.Background(), "POST", "https://other.example.com/h", nil, nil)
	if !errors.Is(err, ErrHostnameBlocked) {
		t.Fatalf("off-allowlist target = %v, want ErrHostnameBlocked", err)
	}
}
