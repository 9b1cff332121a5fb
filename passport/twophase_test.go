package passport

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"fides.dev/dpp/did"
	"fides.dev/dpp/hashutil"
)

func TestPrepareFinalize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := itemInput()
	input.IssuerDID = ""
	input.IssuerPublicKey = f.pub

	prepared, err := f.service.Prepare(ctx, input)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if prepared.SessionID == "" || prepared.SigningInput == "" {
		t.Fatalf("prepared = %+v", prepared)
	}
	if prepared.Document.AnnexIII == nil || prepared.Document.AnnexIII.Restricted == nil {
		t.Fatal("restricted section not built at prepare")
	}

	signature := ed25519.Sign(f.priv, []byte(prepared.SigningInput))
	finalized, err := f.service.Finalize(ctx, prepared.SessionID, signature, testAccount)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if finalized.Registration.DatasetURI == "" {
		t.Fatal("no registration parameters")
	}
	if finalized.Registration.PayloadHash != hashutil.Digest([]byte(finalized.Token)) {
		t.Fatal("payload hash does not cover the uploaded credential")
	}
	if finalized.Registration.SubjectIDHash == nil {
		t.Fatal("subject hash missing for Item granularity")
	}
	if finalized.VerificationLink == "" {
		t.Fatal("verification link not returned at finalize")
	}

	// The caller submits the registration itself in this flow.
	receipt, err := f.ledger.RegisterPassport(ctx, finalized.Registration, finalized.Account)
	if err != nil {
		t.Fatalf("RegisterPassport: %v", err)
	}
	report, err := f.service.Verify(ctx, receipt.TokenID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid {
		t.Fatalf("report = %+v", report)
	}
}

func TestFinalizeSingleConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := itemInput()
	input.IssuerDID = ""
	input.IssuerPublicKey = f.pub

	prepared, err := f.service.Prepare(ctx, input)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	signature := ed25519.Sign(f.priv, []byte(prepared.SigningInput))

	if _, err := f.service.Finalize(ctx, prepared.SessionID, signature, testAccount); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := f.service.Finalize(ctx, prepared.SessionID, signature, testAccount); RuleID(err) != RuleSessionGone {
		t.Fatalf("second finalize: %v", err)
	}
}

func TestFinalizeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prepare := func(t *testing.T) *Prepared {
		input := itemInput()
		input.IssuerDID = ""
		input.IssuerPublicKey = f.pub
		prepared, err := f.service.Prepare(ctx, input)
		if err != nil {
			t.Fatalf("Prepare: %v", err)
		}
		return prepared
	}

	t.Run("unknown session", func(t *testing.T) {
		if _, err := f.service.Finalize(ctx, "no-such-session", []byte("sig"), testAccount); RuleID(err) != RuleSessionGone {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("account mismatch", func(t *testing.T) {
		prepared := prepare(t)
		signature := ed25519.Sign(f.priv, []byte(prepared.SigningInput))
		if _, err := f.service.Finalize(ctx, prepared.SessionID, signature, otherAcct); RuleID(err) != RuleAccountMismatch {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("missing signature", func(t *testing.T) {
		prepared := prepare(t)
		if _, err := f.service.Finalize(ctx, prepared.SessionID, nil, testAccount); RuleID(err) != RuleNoSignature {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("wrong key signature", func(t *testing.T) {
		prepared := prepare(t)
		_, wrongKey, _ := ed25519.GenerateKey(nil)
		signature := ed25519.Sign(wrongKey, []byte(prepared.SigningInput))
		if _, err := f.service.Finalize(ctx, prepared.SessionID, signature, testAccount); RuleID(err) != RuleBadSignature {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestFinalizeManagedIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const managedDID = "did:web:managed.example"
	pub, priv, _ := ed25519.GenerateKey(nil)
	f.dids.AddIdentity(&did.Identity{DID: managedDID, Name: "Managed Co", Status: did.StatusVerified, Managed: true, PublicKey: pub})
	f.dids.Authorize(managedDID, testAccount, testNetwork)
	f.dids.SetSigningKey(managedDID, priv.Seed())

	input := itemInput()
	input.IssuerDID = managedDID

	prepared, err := f.service.Prepare(ctx, input)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	// No caller signature: the server re-signs with the managed key.
	finalized, err := f.service.Finalize(ctx, prepared.SessionID, nil, testAccount)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	receipt, err := f.ledger.RegisterPassport(ctx, finalized.Registration, finalized.Account)
	if err != nil {
		t.Fatalf("RegisterPassport: %v", err)
	}
	report, err := f.service.Verify(ctx, receipt.TokenID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.SignatureVerified {
		t.Fatalf("managed re-sign did not verify: %+v", report)
	}
}

func TestFinalizeExpiredSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.service.now = func() time.Time { return now }

	input := itemInput()
	input.IssuerDID = ""
	input.IssuerPublicKey = f.pub

	prepared, err := f.service.Prepare(ctx, input)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	now = now.Add(DefaultSessionTTL + time.Second)
	signature := ed25519.Sign(f.priv, []byte(prepared.SigningInput))
	if _, err := f.service.Finalize(ctx, prepared.SessionID, signature, testAccount); RuleID(err) != RuleSessionGone {
		t.Fatalf("expired session: %v", err)
	}
}
