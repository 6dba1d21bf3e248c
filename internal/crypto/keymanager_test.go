package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	secret := "an arbitrary-length shared secret, not a 32-byte key"
	blob, err := EncryptSecret(secret, "pa55word")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}

	got, err := DecryptSecret(blob, "pa55word")
	if err != nil {
		t.Fatalf("DecryptSecret: %v", err)
	}
	if got != secret {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestDecryptSecretWrongPassword(t *testing.T) {
	blob, err := EncryptSecret("s3cret", "right")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}

	if _, err := DecryptSecret(blob, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestEncryptSecretRejectsEmptyInputs(t *testing.T) {
	if _, err := EncryptSecret("", "pw"); err == nil {
		t.Error("expected error for empty secret")
	}
	if _, err := EncryptSecret("secret", ""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestLoadSecretPrefersRaw(t *testing.T) {
	got, err := LoadSecret(SecretConfig{RawSecret: "raw-wins", EncryptedSecretPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "raw-wins" {
		t.Errorf("expected raw secret, got %q", got)
	}
}

func TestLoadSecretFromEncryptedFile(t *testing.T) {
	blob, err := EncryptSecret("file-secret", "pw")
	if err != nil {
		t.Fatalf("EncryptSecret: %v", err)
	}
	path := filepath.Join(t.TempDir(), "odds.enc")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadSecret(SecretConfig{EncryptedSecretPath: path, SecretPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadSecret: %v", err)
	}
	if got != "file-secret" {
		t.Errorf("expected file-secret, got %q", got)
	}
}

func TestLoadSecretNoSource(t *testing.T) {
	_, err := LoadSecret(SecretConfig{})
	if err == nil || !strings.Contains(err.Error(), "no secret source configured") {
		t.Fatalf("expected no-source error, got: %v", err)
	}
}
