package auth

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("segretissima")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("segretissima", hash)
	if err != nil || !ok {
		t.Errorf("correct password should verify, got ok=%v err=%v", ok, err)
	}

	ok, err = VerifyPassword("sbagliata", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if ok {
		t.Error("wrong password must not verify")
	}
}

func TestHashesAreSalted(t *testing.T) {
	h1, _ := HashPassword("stessa")
	h2, _ := HashPassword("stessa")
	if h1 == h2 {
		t.Error("two hashes of the same password must differ by salt")
	}
}

func TestVerifyPasswordBadFormat(t *testing.T) {
	if _, err := VerifyPassword("x", "not-a-hash"); err == nil {
		t.Error("malformed hash must be an error")
	}
	if _, err := VerifyPassword("x", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"); err == nil {
		t.Error("non-argon2id hash must be rejected")
	}
}

func TestSecureCompare(t *testing.T) {
	if !SecureCompare("abc", "abc") {
		t.Error("equal strings should compare true")
	}
	if SecureCompare("abc", "abd") || SecureCompare("abc", "abcd") {
		t.Error("unequal strings should compare false")
	}
}
