package password

import (
	"errors"
	"strings"
	"testing"
)

func fastParams() Params {
	return Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16}
}

func TestHashAndVerify(t *testing.T) {
	h, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}

	encoded, err := h.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", encoded)
	}

	ok, err := h.Verify("correct-horse", encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, got ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("battery-staple", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}

func TestVerifyUsesStoredParameters(t *testing.T) {
	weak, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	encoded, err := weak.Hash("correct-horse")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	strong := fastParams()
	strong.Time = 2
	h, err := NewHasher(strong)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if ok, err := h.Verify("correct-horse", encoded); err != nil || !ok {
		t.Fatalf("expected old hash to verify, got ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	h, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	if _, err := h.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h, err := NewHasher(fastParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$aGFzaA",
	} {
		if _, err := h.Verify("correct-horse", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("expected ErrMalformedHash for %q, got %v", encoded, err)
		}
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	p := fastParams()
	p.Memory = 1024
	if _, err := NewHasher(p); err == nil {
		t.Fatal("expected weak memory to be rejected")
	}
}
