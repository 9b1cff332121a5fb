package statuslist

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"fides.dev/dpp/storage"
	"fides.dev/dpp/storage/testkit"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	ds := storage.NewDataset(testkit.NewMemCAS(), "https://gw.example/ipfs/{cid}")
	return NewManager(NewMemStore(), ds)
}

func TestBitStringRoundTrip(t *testing.T) {
	bits := NewBitString()
	for _, i := range []int{0, 7, 8, 4095, Capacity - 1} {
		if err := bits.Set(i, true); err != nil {
			t.Fatalf("Set(%d) failed: %v", i, err)
		}
	}

	encoded, err := bits.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := DecodeBitString(encoded)
	if err != nil {
		t.Fatalf("DecodeBitString failed: %v", err)
	}
	for _, i := range []int{0, 7, 8, 4095, Capacity - 1} {
		if v, _ := decoded.Get(i); !v {
			t.Fatalf("bit %d lost in round trip", i)
		}
	}
	if v, _ := decoded.Get(1); v {
		t.Fatalf("unset bit reported as set")
	}

	if err := bits.Set(Capacity, true); err != ErrIndexOutOfRange {
		t.Fatalf("Set out of range: got %v", err)
	}
}

func TestAssignIndexSequentialAndIdempotent(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	e0, err := m.AssignIndex(ctx, "did:web:issuer.example", "cred-a")
	if err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}
	if e0.StatusListIndex != "0" {
		t.Fatalf("first index = %s, want 0", e0.StatusListIndex)
	}

	e1, err := m.AssignIndex(ctx, "did:web:issuer.example", "cred-b")
	if err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}
	if e1.StatusListIndex != "1" {
		t.Fatalf("second index = %s, want 1", e1.StatusListIndex)
	}
	if e1.ListCredential != e0.ListCredential {
		t.Fatalf("second allocation republished the list")
	}

	// Assigning twice for the same credential must not allocate two indices.
	again, err := m.AssignIndex(ctx, "did:web:issuer.example", "cred-a")
	if err != nil {
		t.Fatalf("repeat AssignIndex failed: %v", err)
	}
	if again.StatusListIndex != "0" {
		t.Fatalf("repeat assignment changed index: %s", again.StatusListIndex)
	}
}

func TestAssignIndexRefusesMappingWithoutList(t *testing.T) {
	ds := storage.NewDataset(testkit.NewMemCAS(), "https://gw.example/ipfs/{cid}")
	store := NewMemStore()
	if err := store.Put(Mapping{Issuer: "did:web:issuer.example", CredentialID: "cred-a", Index: 0}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	m := NewManager(store, ds)

	// The mapping exists but the issuer never published a list. Returning an
	// entry with an empty list location would produce an unverifiable
	// credentialStatus claim.
	if _, err := m.AssignIndex(context.Background(), "did:web:issuer.example", "cred-a"); err == nil {
		t.Fatalf("AssignIndex returned an entry despite a missing published list")
	}
}

func TestIssuersHaveIndependentIndexSpaces(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if _, err := m.AssignIndex(ctx, "did:web:a.example", "cred-a"); err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}
	e, err := m.AssignIndex(ctx, "did:web:b.example", "cred-b")
	if err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}
	if e.StatusListIndex != "0" {
		t.Fatalf("new issuer did not start at index 0: %s", e.StatusListIndex)
	}
}

func TestRevokeAndCheckStatus(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	issuer := "did:web:issuer.example"

	if _, err := m.AssignIndex(ctx, issuer, "cred-a"); err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}

	revoked, err := m.CheckStatus(ctx, "cred-a")
	if err != nil || revoked {
		t.Fatalf("fresh credential reported revoked (err=%v)", err)
	}

	if err := m.Revoke(ctx, issuer, "cred-a"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}
	revoked, err = m.CheckStatus(ctx, "cred-a")
	if err != nil || !revoked {
		t.Fatalf("revoked credential reported valid (err=%v)", err)
	}

	// Idempotent re-revocation.
	addrBefore, _, _ := m.store.CurrentList(issuer)
	if err := m.Revoke(ctx, issuer, "cred-a"); err != nil {
		t.Fatalf("re-revocation must be a no-op, got %v", err)
	}
	addrAfter, _, _ := m.store.CurrentList(issuer)
	if addrBefore != addrAfter {
		t.Fatalf("re-revocation republished the list")
	}
}

func TestRevokeErrors(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	if err := m.Revoke(ctx, "did:web:issuer.example", "ghost"); err != ErrNoMapping {
		t.Fatalf("missing mapping: got %v want ErrNoMapping", err)
	}

	if _, err := m.AssignIndex(ctx, "did:web:issuer.example", "cred-a"); err != nil {
		t.Fatalf("AssignIndex failed: %v", err)
	}
	if err := m.Revoke(ctx, "did:web:other.example", "cred-a"); err != ErrIssuerMismatch {
		t.Fatalf("cross-issuer revocation: got %v want ErrIssuerMismatch", err)
	}
}

func TestCheckStatusUnknownCredential(t *testing.T) {
	m := newManager(t)
	revoked, err := m.CheckStatus(context.Background(), "never-issued")
	if err != nil {
		t.Fatalf("CheckStatus failed: %v", err)
	}
	if revoked {
		t.Fatalf("credential without mapping must not be revoked")
	}
}

func TestConcurrentRevocationsLoseNothing(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	issuer := "did:web:issuer.example"

	creds := []string{"c0", "c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	for _, c := range creds {
		if _, err := m.AssignIndex(ctx, issuer, c); err != nil {
			t.Fatalf("AssignIndex(%s) failed: %v", c, err)
		}
	}

	var wg sync.WaitGroup
	for _, c := range creds {
		wg.Add(1)
		go func(c string) {
			defer wg.Done()
			if err := m.Revoke(ctx, issuer, c); err != nil {
				t.Errorf("Revoke(%s) failed: %v", c, err)
			}
		}(c)
	}
	wg.Wait()

	for _, c := range creds {
		revoked, err := m.CheckStatus(ctx, c)
		if err != nil || !revoked {
			t.Fatalf("lost revocation for %s (err=%v)", c, err)
		}
	}
}

func TestFileStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	fs, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := fs.Put(Mapping{Issuer: "did:web:a", CredentialID: "c1", Index: 0}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := fs.SetCurrentList("did:web:a", "bafkreigh"); err != nil {
		t.Fatalf("SetCurrentList failed: %v", err)
	}

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	m, ok, err := reopened.ByCredential("c1")
	if err != nil || !ok || m.Index != 0 {
		t.Fatalf("mapping lost across reopen (ok=%v err=%v)", ok, err)
	}
	addr, ok, err := reopened.CurrentList("did:web:a")
	if err != nil || !ok || addr != "bafkreigh" {
		t.Fatalf("current pointer lost across reopen (addr=%q ok=%v err=%v)", addr, ok, err)
	}
}
