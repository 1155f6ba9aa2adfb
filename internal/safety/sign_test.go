package safety

import (
	"errors"
	"testing"
	"time"
)

func TestSignDeterministic(t *testing.T) {
	s := NewSigner("secret")
	payload := []byte(`{"task_id":"abc"}`)
	ts := "2026-08-24T12:00:00Z"

	sig1 := s.Sign(payload, ts)
	sig2 := s.Sign(payload, ts)
	if sig1 != sig2 {
		t.Fatalf("signature not deterministic: %s vs %s", sig1, sig2)
	}
	if len(sig1) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(sig1))
	}

	if s.Sign(payload, "2026-08-24T12:00:01Z") == sig1 {
		t.Error("different timestamp must change signature")
	}
	if s.Sign([]byte(`{"task_id":"abd"}`), ts) == sig1 {
		t.Error("different payload must change signature")
	}
	if NewSigner("other").Sign(payload, ts) == sig1 {
		t.Error("different secret must change signature")
	}
}

func TestVerify(t *testing.T) {
	s := NewSigner("secret")
	payload := []byte(`{"n":1}`)
	ts := time.Now().UTC().Format(time.RFC3339)
	sig := s.Sign(payload, ts)

	if err := s.Verify(payload, sig, ts, DefaultMaxSkew); err != nil {
		t.Fatalf("fresh valid signature rejected: %v", err)
	}

	if err := s.Verify(payload, sig, "yesterday", DefaultMaxSkew); !errors.Is(err, ErrBadTimestamp) {
		t.Errorf("bad timestamp = %v, want ErrBadTimestamp", err)
	}

	old := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)
	if err := s.Verify(payload, s.Sign(payload, old), old, DefaultMaxSkew); !errors.Is(err, ErrStaleRequest) {
		t.Errorf("stale request = %v, want ErrStaleRequest", err)
	}

	future := time.Now().Add(10 * time.Minute).UTC().Format(time.RFC3339)
	if err := s.Verify(payload, s.Sign(payload, future), future, DefaultMaxSkew); !errors.Is(err, ErrStaleRequest) {
		t.Errorf("future-dated request = %v, want ErrStaleRequest", err)
	}

	if err := s.Verify(payload, "deadbeef", ts, DefaultMaxSkew); !errors.Is(err, ErrBadSignature) {
		t.Errorf("short signature = %v, want ErrBadSignature", err)
	}
	if err := s.Verify(payload, "zz"+sig[2:], ts, DefaultMaxSkew); !errors.Is(err, ErrBadSignature) {
		t.Errorf("non-hex signature = %v, want ErrBadSignature", err)
	}
	if err := s.Verify([]byte(`{"n":2}`), sig, ts, DefaultMaxSkew); !errors.Is(err, ErrBadSignature) {
		t.Errorf("tampered payload = %v, want ErrBadSignature", err)
	}
}
