// Package auth tests cover password hashing/verification.
package auth

import "testing"

// TestHashAndVerifyPassword validates positive and negative password checks.
func TestHashAndVerifyPassword(t *testing.T) {
	h, err := HashPassword("secret", DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword("secret", h)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatalf("expected password to verify")
	}

	ok, err = VerifyPassword("wrong", h)
	if err != nil {
		t.Fatalf("VerifyPassword(wrong): %v", err)
	}
	if ok {
		t.Fatalf("expected wrong password to fail")
	}
}

// TestVerifyAcceptsLegacyRows covers digest and plaintext rows written
// by the old server.
func TestVerifyAcceptsLegacyRows(t *testing.T) {
	if !Verify("secret", LegacyDigest("secret")) {
		t.Fatalf("expected legacy digest row to verify")
	}
	if Verify("wrong", LegacyDigest("secret")) {
		t.Fatalf("expected wrong password against digest row to fail")
	}
	if !Verify("secret", "secret") {
		t.Fatalf("expected legacy plaintext row to verify")
	}
	if Verify("", "") {
		t.Fatalf("expected empty credentials to fail")
	}
}

// TestVerifyPrefersArgon2 keeps PHC rows on the modern path.
func TestVerifyPrefersArgon2(t *testing.T) {
	h, err := HashPassword("pw", DefaultArgon2Params())
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !Verify("pw", h) {
		t.Fatalf("expected argon2 row to verify")
	}
	if Verify("pw2", h) {
		t.Fatalf("expected wrong password to fail")
	}
}
