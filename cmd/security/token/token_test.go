package token

import (
	"strings"
	"testing"
)

func TestHasher_ZeroValueIsSHA256(t *testing.T) {
	t.Parallel()

	var h Hasher
	got := h.Hex("refresh")
	if got != HashSHA256Hex("refresh") {
		t.Fatalf("zero Hasher should use SHA-256")
	}
	if len(got) != 64 || h.HMAC() {
		t.Fatalf("unexpected digest %q hmac=%v", got, h.HMAC())
	}
}

func TestHasher_HMAC(t *testing.T) {
	t.Parallel()

	key := []byte(strings.Repeat("k", 32))
	h := NewHasher(key)
	if !h.HMAC() {
		t.Fatalf("expected HMAC mode")
	}
	got := h.Hex("refresh")
	if got == HashSHA256Hex("refresh") {
		t.Fatalf("HMAC digest must differ from plain SHA-256")
	}
	if got != HashHMACSHA256Hex("refresh", key) {
		t.Fatalf("digest mismatch")
	}

	// The hasher keeps its own copy of the key.
	key[0] = 'x'
	if h.Hex("refresh") != got {
		t.Fatalf("hasher must not alias caller key")
	}
}

func TestNewHasherFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	h, err := NewHasherFromEnv(false)
	if err != nil || h.HMAC() {
		t.Fatalf("expected SHA fallback, got hmac=%v err=%v", h.HMAC(), err)
	}
	if _, err := NewHasherFromEnv(true); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := NewHasherFromEnv(true); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}
	h, err = NewHasherFromEnv(false)
	if err != nil || !h.HMAC() {
		t.Fatalf("short key is accepted when HMAC is not required")
	}

	t.Setenv(HMACEnvKey, "  "+strings.Repeat("s", 40)+"  ")
	h, err = NewHasherFromEnv(true)
	if err != nil || !h.HMAC() {
		t.Fatalf("expected HMAC mode, got err=%v", err)
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := HashSHA256Hex("a")
	if !Equal(a, a) {
		t.Fatalf("expected equal")
	}
	if Equal(a, HashSHA256Hex("b")) {
		t.Fatalf("expected not equal")
	}
	if Equal("abc", "abc") {
		t.Fatalf("short digests must never match")
	}
}
