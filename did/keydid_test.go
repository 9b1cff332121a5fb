package did

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
)

func TestKeyDIDRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	didID, err := KeyDID(pub)
	if err != nil {
		t.Fatalf("KeyDID failed: %v", err)
	}
	if !strings.HasPrefix(didID, "did:key:z") {
		t.Fatalf("did = %q, want did:key:z prefix", didID)
	}
	parsed, err := ParseKeyDID(didID)
	if err != nil {
		t.Fatalf("ParseKeyDID failed: %v", err)
	}
	if !bytes.Equal(parsed, pub) {
		t.Fatal("parsed key differs from original")
	}
}

func TestParseKeyDIDRejects(t *testing.T) {
	for _, didID := range []string{
		"did:web:example.com",
		"did:key:",
		"did:key:zInvalid!",
	} {
		if _, err := ParseKeyDID(didID); err == nil {
			t.Fatalf("ParseKeyDID(%q) succeeded, want error", didID)
		}
	}
}

func TestKeyRegistry(t *testing.T) {
	ctx := context.Background()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	didID, err := KeyDID(pub)
	if err != nil {
		t.Fatalf("KeyDID failed: %v", err)
	}

	var reg KeyRegistry
	id, err := reg.GetIssuerIdentity(ctx, didID)
	if err != nil {
		t.Fatalf("GetIssuerIdentity failed: %v", err)
	}
	if id == nil || id.Status != StatusVerified || !bytes.Equal(id.PublicKey, pub) {
		t.Fatalf("identity = %+v, want verified with embedded key", id)
	}

	other, err := reg.GetIssuerIdentity(ctx, "did:web:example.com")
	if err != nil || other != nil {
		t.Fatalf("non did:key resolution = (%+v, %v), want (nil, nil)", other, err)
	}
	ok, err := reg.IsAccountAuthorized(ctx, didID, "acct", "net")
	if err != nil || ok {
		t.Fatalf("IsAccountAuthorized = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := reg.GetDecryptedSigningKey(ctx, didID); err == nil {
		t.Fatal("GetDecryptedSigningKey succeeded, want error")
	}
}
