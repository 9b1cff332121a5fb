// Package registry defines the optional product and entity registry
// ("anagrafica") consumed during resolution and indexing.
//
// The registry is a best-effort collaborator. Callers treat a missing or
// failing registry as "no data": resolution falls through to other sources
// and indexing is skipped with a warning, never blocking the primary flow.
package registry

import (
	"context"
	"errors"
)

// ErrUnavailable marks the registry itself as unreachable, as opposed to an
// identifier that is simply unknown.
var ErrUnavailable = errors.New("registry: unavailable")

// Product is a registered product and its known passport tokens.
type Product struct {
	ID       string
	Name     string
	OwnerDID string
}

// Entity is a registered economic operator.
type Entity struct {
	DID  string
	Name string
}

// IndexEntry associates a passport token with its product and issuer so
// later lookups can resolve identifiers without touching the ledger.
type IndexEntry struct {
	TokenID   uint64
	ProductID string
	IssuerDID string
}

// Anagrafica is the registry collaborator interface. Implementations return
// (nil, nil) for unknown identifiers; errors mean the registry itself is
// unavailable.
type Anagrafica interface {
	ResolveProduct(ctx context.Context, productID string) (*Product, error)
	GetDppsForProduct(ctx context.Context, productID string) ([]uint64, error)
	ResolveEntity(ctx context.Context, did string) (*Entity, error)
	GetDppsForEntity(ctx context.Context, did string) ([]uint64, error)
	// IndexPassport records a newly anchored passport. Best effort: failures
	// are reported but must not be treated as fatal by callers.
	IndexPassport(ctx context.Context, entry IndexEntry) error
}
