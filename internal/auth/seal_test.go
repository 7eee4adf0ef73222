package auth

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewSealer_RejectsShortSecret(t *testing.T) {
	if _, err := NewSealer("short"); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestSealer(t *testing.T) {
	s, err := NewSealer(testSecret)
	if err != nil {
		t.Fatalf("NewSealer returned error: %v", err)
	}
	plaintext := []byte(`{"access_token":"abc"}`)

	sealed, err := s.Seal(plaintext, []byte("session-1"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatal("sealed data contains the plaintext")
	}

	opened, err := s.Open(sealed, []byte("session-1"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("Open = %q, want %q", opened, plaintext)
	}

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff

	other, err := NewSealer(strings.Repeat("x", 32))
	if err != nil {
		t.Fatalf("NewSealer returned error: %v", err)
	}

	failures := []struct {
		name   string
		sealer *Sealer
		data   []byte
		ad     string
	}{
		{name: "tampered ciphertext", sealer: s, data: tampered, ad: "session-1"},
		{name: "wrong session binding", sealer: s, data: sealed, ad: "session-2"},
		{name: "different secret", sealer: other, data: sealed, ad: "session-1"},
		{name: "truncated", sealer: s, data: sealed[:10], ad: "session-1"},
	}
	for _, f := range failures {
		t.Run(f.name, func(t *testing.T) {
			if _, err := f.sealer.Open(f.data, []byte(f.ad)); !errors.Is(err, ErrSealedDataInvalid) {
				t.Fatalf("expected ErrSealedDataInvalid, got %v", err)
			}
		})
	}
}
