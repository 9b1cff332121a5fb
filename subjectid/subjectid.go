// Package subjectid derives privacy-preserving subject identifiers for
// passports.
//
// A passport is about a product class, a batch, or an individual item. The
// canonical subject identifier is a deterministic string over those inputs;
// only its SHA-256 digest is ever anchored on the ledger, so the identifier
// itself never leaves the issuing system.
package subjectid

import (
	"crypto/sha256"
	"fmt"

	"github.com/multiformats/go-multibase"
)

// Granularity is the identity scope of a passport.
type Granularity string

const (
	ProductClass Granularity = "ProductClass"
	Batch        Granularity = "Batch"
	Item         Granularity = "Item"
)

// ParseGranularity maps common spellings to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch s {
	case "ProductClass", "productClass", "product-class", "model":
		return ProductClass, nil
	case "Batch", "batch", "lot":
		return Batch, nil
	case "Item", "item", "serialized":
		return Item, nil
	default:
		return "", fmt.Errorf("subjectid: unknown granularity %q", s)
	}
}

// CanonicalID returns the canonical subject identifier for the given inputs.
//
// ProductClass passports are identified by the product ID alone; Batch and
// Item passports append the discriminating field after a "#" separator.
// The second return is false when a required discriminator is absent. That is
// not an error: ProductClass-only passports are legal, and callers anchor
// without a subject hash in that case.
func CanonicalID(productID string, g Granularity, batchNumber, serialNumber string) (string, bool) {
	if productID == "" {
		return "", false
	}
	switch g {
	case ProductClass:
		return productID, true
	case Batch:
		if batchNumber == "" {
			return "", false
		}
		return productID + "#" + batchNumber, true
	case Item:
		if serialNumber == "" {
			return "", false
		}
		return productID + "#" + serialNumber, true
	default:
		return "", false
	}
}

// Hash returns the SHA-256 digest of a canonical subject identifier.
// This digest is the only on-ledger trace of the subject's identity.
func Hash(canonicalID string) [32]byte {
	return sha256.Sum256([]byte(canonicalID))
}

// HashFor combines CanonicalID and Hash. The second return is false when no
// canonical identifier exists for the inputs.
func HashFor(productID string, g Granularity, batchNumber, serialNumber string) ([32]byte, bool) {
	id, ok := CanonicalID(productID, g, batchNumber, serialNumber)
	if !ok {
		return [32]byte{}, false
	}
	return Hash(id), true
}

// HashURN returns a URN form of a subject hash using multibase base58btc,
// suitable for privacy-preserving lookups and link anchors.
func HashURN(hash [32]byte) string {
	enc, err := multibase.Encode(multibase.Base58BTC, hash[:])
	if err != nil {
		// Base58BTC is always registered; unreachable in practice.
		return ""
	}
	return "urn:fides:subject:" + enc
}
