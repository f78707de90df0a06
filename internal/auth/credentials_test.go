package auth

import (
	"strings"
	"testing"
)

func TestHashCredential_roundTrip(t *testing.T) {
	hash, err := HashCredential("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("unexpected hash format: %q", hash)
	}

	ok, err := VerifyCredential("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !ok {
		t.Error("correct password should verify")
	}

	ok, err = VerifyCredential("wrong password", hash)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if ok {
		t.Error("wrong password should not verify")
	}
}

func TestHashCredential_saltsDiffer(t *testing.T) {
	h1, err := HashCredential("pw")
	if err != nil {
		t.Fatal(err)
	}
	h2, err := HashCredential("pw")
	if err != nil {
		t.Fatal(err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password should use different salts")
	}
}

func TestVerifyCredential_malformedHash(t *testing.T) {
	if _, err := VerifyCredential("pw", "not-a-hash"); err == nil {
		t.Error("malformed hash should return an error")
	}
}
