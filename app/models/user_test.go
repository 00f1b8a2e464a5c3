package models

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	u := &User{}
	key, err := u.GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() = %v", err)
	}
	if !strings.HasPrefix(key, "cfx_") {
		t.Fatalf("key %q missing prefix", key)
	}
	if u.APIKeyHash != HashAPIKey(key) {
		t.Fatal("stored hash does not match generated key")
	}
	if u.APIKeyHash == key {
		t.Fatal("plaintext key persisted as hash")
	}

	second, err := u.GenerateAPIKey()
	if err != nil {
		t.Fatalf("second GenerateAPIKey() = %v", err)
	}
	if second == key {
		t.Fatal("generated keys are not unique")
	}
}

func TestHashAPIKeyIsStable(t *testing.T) {
	if HashAPIKey("cfx_abc") != HashAPIKey("cfx_abc") {
		t.Fatal("hash not deterministic")
	}
	if HashAPIKey("cfx_abc") == HashAPIKey("cfx_abd") {
		t.Fatal("distinct keys collide")
	}
	if len(HashAPIKey("cfx_abc")) != 64 {
		t.Fatal("hash is not a sha256 hex digest")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	u := &User{}
	if err := u.SetPassword("correct horse"); err != nil {
		t.Fatalf("SetPassword() = %v", err)
	}
	if !u.CheckPassword("correct horse") {
		t.Fatal("correct password rejected")
	}
	if u.CheckPassword("wrong horse") {
		t.Fatal("wrong password accepted")
	}
}

func TestCreateUserValidation(t *testing.T) {
	u, err := CreateUser("alice", "alice@example.com", "secret-password")
	if err != nil {
		t.Fatalf("CreateUser() = %v", err)
	}
	if u.Role != ROLE_USER || u.Status != STATUS_INACTIVE {
		t.Fatalf("defaults = %q/%q", u.Role, u.Status)
	}
	if u.IsActive() {
		t.Fatal("new user reported active before activation")
	}

	if _, err := CreateUser("al", "not-an-email", "secret-password"); err == nil {
		t.Fatal("invalid user accepted")
	}
}
