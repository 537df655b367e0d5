package secret

import (
	"errors"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBox_SealOpen(t *testing.T) {
	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box: %v", err)
	}

	sealed, err := box.Seal("ya29.access-token")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "access-token") {
		t.Fatalf("value not sealed: %q", sealed)
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened != "ya29.access-token" {
		t.Fatalf("unexpected plaintext: %q", opened)
	}
}

func TestBox_WrongKeyFails(t *testing.T) {
	box, _ := NewBox(testKey)
	sealed, _ := box.Seal("refresh")

	other, _ := NewBox(strings.Repeat("ab", 32))
	if _, err := other.Open(sealed); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}

	noKey, _ := NewBox("")
	if _, err := noKey.Open(sealed); !errors.Is(err, ErrSealedNoKey) {
		t.Fatalf("expected ErrSealedNoKey, got %v", err)
	}
}

func TestBox_PassthroughWithoutKey(t *testing.T) {
	box, err := NewBox("")
	if err != nil {
		t.Fatalf("new box: %v", err)
	}
	sealed, _ := box.Seal("plain")
	if sealed != "plain" {
		t.Fatalf("expected passthrough, got %q", sealed)
	}

	keyed, _ := NewBox(testKey)
	opened, err := keyed.Open("legacy-plaintext")
	if err != nil || opened != "legacy-plaintext" {
		t.Fatalf("expected legacy value to pass through, got %q, %v", opened, err)
	}
}

func TestNewBox_RejectsBadKey(t *testing.T) {
	if _, err := NewBox("abcd"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}
