package auth

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 10)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("hash must not equal the plain text password")
	}

	if err := VerifyPassword("correct horse battery staple", hash); err != nil {
		t.Errorf("VerifyPassword rejected the correct password: %v", err)
	}
	if err := VerifyPassword("wrong password", hash); err == nil {
		t.Error("VerifyPassword accepted a wrong password")
	}
}

func TestHashPasswordOutOfRangeCost(t *testing.T) {
	// Invalid cost falls back to the default instead of erroring.
	hash, err := HashPassword("some password", 99)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := VerifyPassword("some password", hash); err != nil {
		t.Errorf("VerifyPassword failed: %v", err)
	}
}
