package ledgertest

import (
	"context"
	"errors"
	"testing"

	"fides.dev/dpp/hashutil"
	"fides.dev/dpp/ledger"
	"fides.dev/dpp/subjectid"
)

const (
	issuer   = "0xaabbccddeeff00112233445566778899aabbccdd"
	stranger = "0x1111111111111111111111111111111111111111"
)

func register(t *testing.T, l *Ledger, subjectHash *[32]byte) *ledger.RegisterReceipt {
	t.Helper()
	receipt, err := l.RegisterPassport(context.Background(), ledger.Registration{
		DatasetURI:    "dpp://dataset/bafytest",
		PayloadHash:   hashutil.Digest([]byte("payload")),
		DatasetType:   "dpp",
		Granularity:   subjectid.Item,
		SubjectIDHash: subjectHash,
	}, issuer)
	if err != nil {
		t.Fatalf("RegisterPassport: %v", err)
	}
	return receipt
}

func TestRegisterAndRead(t *testing.T) {
	l := New()
	ctx := context.Background()

	r1 := register(t, l, nil)
	r2 := register(t, l, nil)
	if r1.TokenID != 1 || r2.TokenID != 2 {
		t.Fatalf("token ids = %d, %d, want 1, 2", r1.TokenID, r2.TokenID)
	}

	anchor, err := l.ReadPassport(ctx, r1.TokenID)
	if err != nil {
		t.Fatalf("ReadPassport: %v", err)
	}
	if anchor.Version != 1 || anchor.Status != ledger.StatusActive {
		t.Fatalf("anchor = version %d status %q", anchor.Version, anchor.Status)
	}
	if anchor.IssuerAccount != issuer {
		t.Fatalf("issuer = %q", anchor.IssuerAccount)
	}

	if _, err := l.ReadPassport(ctx, 99); !errors.Is(err, ledger.ErrTokenNotFound) {
		t.Fatalf("ReadPassport(99): %v, want ErrTokenNotFound", err)
	}

	if err := l.WaitForTransaction(ctx, r1.TxHash); err != nil {
		t.Fatalf("WaitForTransaction: %v", err)
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	l := New()
	_, err := l.RegisterPassport(context.Background(), ledger.Registration{DatasetType: "dpp"}, issuer)
	if !errors.Is(err, ledger.ErrInvalidInput) {
		t.Fatalf("RegisterPassport: %v, want ErrInvalidInput", err)
	}
}

func TestUpdateDataset(t *testing.T) {
	l := New()
	ctx := context.Background()
	r := register(t, l, nil)

	newHash := hashutil.Digest([]byte("payload v2"))
	if _, err := l.UpdateDataset(ctx, r.TokenID, "dpp://dataset/bafyv2", newHash, "dpp", nil, issuer); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}

	anchor, err := l.ReadPassport(ctx, r.TokenID)
	if err != nil {
		t.Fatalf("ReadPassport: %v", err)
	}
	if anchor.Version != 2 {
		t.Fatalf("version = %d, want 2", anchor.Version)
	}
	if anchor.DatasetURI != "dpp://dataset/bafyv2" || anchor.PayloadHash != newHash {
		t.Fatal("anchor not updated")
	}

	history, err := l.GetVersionHistory(ctx, r.TokenID)
	if err != nil {
		t.Fatalf("GetVersionHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Version != 1 || history[1].Version != 2 {
		t.Fatalf("history versions = %d, %d", history[0].Version, history[1].Version)
	}
	if history[1].UpdatedBy != issuer {
		t.Fatalf("UpdatedBy = %q", history[1].UpdatedBy)
	}
}

func TestUpdateAuthorization(t *testing.T) {
	l := New()
	ctx := context.Background()
	r := register(t, l, nil)

	hash := hashutil.Digest([]byte("x"))
	if _, err := l.UpdateDataset(ctx, r.TokenID, "dpp://dataset/x", hash, "dpp", nil, stranger); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("UpdateDataset by stranger: %v, want ErrUnauthorized", err)
	}
	if _, err := l.UpdateDataset(ctx, 99, "dpp://dataset/x", hash, "dpp", nil, issuer); !errors.Is(err, ledger.ErrTokenNotFound) {
		t.Fatalf("UpdateDataset(99): %v, want ErrTokenNotFound", err)
	}
}

func TestRevoke(t *testing.T) {
	l := New()
	ctx := context.Background()
	r := register(t, l, nil)

	if _, err := l.RevokePassport(ctx, r.TokenID, "recall", stranger); !errors.Is(err, ledger.ErrUnauthorized) {
		t.Fatalf("RevokePassport by stranger: %v, want ErrUnauthorized", err)
	}
	if _, err := l.RevokePassport(ctx, r.TokenID, "recall", issuer); err != nil {
		t.Fatalf("RevokePassport: %v", err)
	}

	anchor, _ := l.ReadPassport(ctx, r.TokenID)
	if anchor.Status != ledger.StatusRevoked {
		t.Fatalf("status = %q, want Revoked", anchor.Status)
	}

	if _, err := l.RevokePassport(ctx, r.TokenID, "again", issuer); !errors.Is(err, ledger.ErrAlreadyRevoked) {
		t.Fatalf("second revoke: %v, want ErrAlreadyRevoked", err)
	}

	hash := hashutil.Digest([]byte("x"))
	if _, err := l.UpdateDataset(ctx, r.TokenID, "dpp://dataset/x", hash, "dpp", nil, issuer); !errors.Is(err, ledger.ErrRevoked) {
		t.Fatalf("update after revoke: %v, want ErrRevoked", err)
	}
}

func TestSubjectIndex(t *testing.T) {
	l := New()
	ctx := context.Background()

	oldHash := subjectid.Hash("GTIN-1#serial-1")
	newHash := subjectid.Hash("GTIN-1#serial-2")

	r := register(t, l, &oldHash)

	id, ok, err := l.FindTokenBySubjectID(ctx, oldHash)
	if err != nil || !ok || id != r.TokenID {
		t.Fatalf("FindTokenBySubjectID = (%d, %v, %v)", id, ok, err)
	}

	// Updating with a new subject hash relinks the index.
	payload := hashutil.Digest([]byte("v2"))
	if _, err := l.UpdateDataset(ctx, r.TokenID, "dpp://dataset/v2", payload, "dpp", &newHash, issuer); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	if _, ok, _ := l.FindTokenBySubjectID(ctx, oldHash); ok {
		t.Fatal("old subject hash still resolves")
	}
	if id, ok, _ := l.FindTokenBySubjectID(ctx, newHash); !ok || id != r.TokenID {
		t.Fatalf("new subject hash resolves to (%d, %v)", id, ok)
	}

	// Updating with no subject hash unlinks entirely.
	if _, err := l.UpdateDataset(ctx, r.TokenID, "dpp://dataset/v3", payload, "dpp", nil, issuer); err != nil {
		t.Fatalf("UpdateDataset: %v", err)
	}
	if _, ok, _ := l.FindTokenBySubjectID(ctx, newHash); ok {
		t.Fatal("unlinked subject hash still resolves")
	}
}
