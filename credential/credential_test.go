package credential

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"fides.dev/dpp/did"
	"fides.dev/dpp/did/didtest"
)

const issuerDID = "did:web:acme.example"

func newTestClaims(t *testing.T) *Claims {
	t.Helper()
	subject := json.RawMessage(`{"productId":"GTIN-8003579000120","productName":"Espresso Machine"}`)
	claims, err := NewClaims(Issuer{ID: issuerDID, Name: "ACME"}, "GTIN-8003579000120", subject, nil, nil, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewClaims: %v", err)
	}
	return claims
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	token, err := Issue(newTestClaims(t), priv)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token has %d segments", strings.Count(token, ".")+1)
	}

	d, err := Decode(token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Claims.Issuer != issuerDID {
		t.Fatalf("iss = %q", d.Claims.Issuer)
	}
	if d.Claims.VC == nil || d.Claims.VC.Issuer.Name != "ACME" {
		t.Fatalf("vc = %+v", d.Claims.VC)
	}
	if d.Claims.VC.IssuanceDate != "2026-03-01T10:00:00Z" {
		t.Fatalf("issuanceDate = %q", d.Claims.VC.IssuanceDate)
	}
	if !strings.HasPrefix(d.Claims.ID, "urn:uuid:") {
		t.Fatalf("jti = %q", d.Claims.ID)
	}

	if err := CheckSignature(token, pub); err != nil {
		t.Fatalf("CheckSignature: %v", err)
	}

	otherPub, _, _ := ed25519.GenerateKey(nil)
	if err := CheckSignature(token, otherPub); err == nil {
		t.Fatal("CheckSignature accepted wrong key")
	}
}

func TestDecodeUnsigned(t *testing.T) {
	unsigned, err := Build(newTestClaims(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, token := range []string{unsigned.SigningInput, unsigned.SigningInput + "."} {
		d, err := Decode(token)
		if err != nil {
			t.Fatalf("Decode(%q...): %v", token[:20], err)
		}
		if d.Signature != nil {
			t.Fatal("unsigned token decoded with a signature")
		}
		if d.SigningInput != unsigned.SigningInput {
			t.Fatal("signing input not preserved")
		}
	}

	if _, err := Decode("only-one-segment"); !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("Decode garbage: %v, want ErrMalformedToken", err)
	}
}

func TestAttachMatchesSign(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	unsigned, err := Build(newTestClaims(t))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	sig := ed25519.Sign(priv, []byte(unsigned.SigningInput))
	attached, err := Attach(unsigned.SigningInput, sig)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	signed, err := SignEdDSA(unsigned.SigningInput, priv)
	if err != nil {
		t.Fatalf("SignEdDSA: %v", err)
	}
	if attached != signed {
		t.Fatal("externally attached signature differs from direct signing")
	}
}

func TestVerify(t *testing.T) {
	pub, priv, _ := ed25519.GenerateKey(nil)
	registry := didtest.New()
	registry.AddIdentity(&did.Identity{DID: issuerDID, Status: did.StatusVerified, PublicKey: pub})

	token, err := Issue(newTestClaims(t), priv)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	t.Run("verified", func(t *testing.T) {
		result, err := Verify(context.Background(), token, registry)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if !result.Verified || result.Pending {
			t.Fatalf("result = %+v", result)
		}
		if result.Issuer != issuerDID || result.IssuanceDate == "" {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("unregistered issuer", func(t *testing.T) {
		result, err := Verify(context.Background(), token, didtest.New())
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if result.Verified || len(result.Errors) == 0 {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("not published is pending", func(t *testing.T) {
		pending := didtest.New()
		pending.MarkNotPublished(issuerDID)
		result, err := Verify(context.Background(), token, pending)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if result.Verified || !result.Pending {
			t.Fatalf("result = %+v", result)
		}
		if len(result.Errors) != 0 || len(result.Warnings) == 0 {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, _ := Build(newTestClaims(t))
		result, err := Verify(context.Background(), unsigned.SigningInput, registry)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if result.Verified || len(result.Errors) == 0 {
			t.Fatalf("result = %+v", result)
		}
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(token, ".")
		forged, _ := Build(newTestClaims(t))
		tampered := strings.Split(forged.SigningInput, ".")[0] + "." + strings.Split(forged.SigningInput, ".")[1] + "." + parts[2]
		result, err := Verify(context.Background(), tampered, registry)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if result.Verified {
			t.Fatal("tampered token verified")
		}
	})
}

const productSchema = `{
  "type": "object",
  "required": ["productId", "productName"],
  "properties": {
    "productId": {"type": "string", "minLength": 1},
    "productName": {"type": "string", "minLength": 1}
  }
}`

func TestSchemaValidator(t *testing.T) {
	schemas := map[string][]byte{"schema-1": []byte(productSchema)}
	v := NewSchemaValidator(func(_ context.Context, id string) ([]byte, error) {
		raw, ok := schemas[id]
		if !ok {
			return nil, errors.New("no such schema")
		}
		return raw, nil
	})
	ctx := context.Background()

	valid, violations, err := v.Validate(ctx, "schema-1", json.RawMessage(`{"productId":"GTIN-1","productName":"Widget"}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !valid || len(violations) != 0 {
		t.Fatalf("valid document rejected: %v", violations)
	}

	valid, violations, err = v.Validate(ctx, "schema-1", json.RawMessage(`{"productId":"GTIN-1"}`))
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid || len(violations) == 0 {
		t.Fatal("invalid document accepted")
	}

	if _, _, err := v.Validate(ctx, "missing", json.RawMessage(`{}`)); err == nil {
		t.Fatal("missing schema did not error")
	}

	// A changed schema under the same id is recompiled, keyed by content.
	schemas["schema-1"] = []byte(`{"type":"object","required":["extra"]}`)
	valid, _, err = v.Validate(ctx, "schema-1", json.RawMessage(`{"productId":"GTIN-1","productName":"Widget"}`))
	if err != nil {
		t.Fatalf("Validate after schema change: %v", err)
	}
	if valid {
		t.Fatal("stale compiled schema reused after upstream change")
	}
}
