package registry

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryResolve(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()

	p, err := r.ResolveProduct(ctx, "GTIN-8003579000120")
	if err != nil || p != nil {
		t.Fatalf("unknown product = (%v, %v), want (nil, nil)", p, err)
	}

	r.AddProduct(Product{ID: "GTIN-8003579000120", Name: "Espresso Machine", OwnerDID: "did:web:acme.example"})
	p, err = r.ResolveProduct(ctx, "GTIN-8003579000120")
	if err != nil {
		t.Fatalf("ResolveProduct: %v", err)
	}
	if p == nil || p.Name != "Espresso Machine" {
		t.Fatalf("ResolveProduct = %+v", p)
	}
}

func TestMemoryIndex(t *testing.T) {
	r := NewMemory()
	ctx := context.Background()

	entry := IndexEntry{TokenID: 7, ProductID: "GTIN-1", IssuerDID: "did:web:acme.example"}
	if err := r.IndexPassport(ctx, entry); err != nil {
		t.Fatalf("IndexPassport: %v", err)
	}
	// Re-indexing the same token is a no-op.
	if err := r.IndexPassport(ctx, entry); err != nil {
		t.Fatalf("IndexPassport again: %v", err)
	}

	ids, err := r.GetDppsForProduct(ctx, "GTIN-1")
	if err != nil {
		t.Fatalf("GetDppsForProduct: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("GetDppsForProduct = %v, want [7]", ids)
	}

	ids, err = r.GetDppsForEntity(ctx, "did:web:acme.example")
	if err != nil {
		t.Fatalf("GetDppsForEntity: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("GetDppsForEntity = %v, want [7]", ids)
	}
}

func TestMemoryFailing(t *testing.T) {
	r := NewMemory()
	r.SetFailing(true)

	if _, err := r.ResolveProduct(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("ResolveProduct while failing: %v, want ErrUnavailable", err)
	}
	if err := r.IndexPassport(context.Background(), IndexEntry{TokenID: 1}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("IndexPassport while failing: %v, want ErrUnavailable", err)
	}
}
