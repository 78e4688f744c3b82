package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}

	manager, err := NewManager(base64.StdEncoding.EncodeToString(key))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ciphertext, err := manager.Encrypt("secret")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	plaintext, err := manager.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("failed to decrypt: %v", err)
	}

	if plaintext != "secret" {
		t.Fatalf("expected plaintext to match, got %s", plaintext)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	m1, err := NewManager("first secret")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}
	m2, err := NewManager("second secret")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	ciphertext, err := m1.Encrypt("credential")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	if _, err := m2.Decrypt(ciphertext); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestNonceVariesPerEncryption(t *testing.T) {
	manager, err := NewManager("some passphrase")
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	a, err := manager.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	b, err := manager.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Fatal("expected distinct ciphertexts for repeated encryption")
	}
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	if _, err := NewManager(""); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
