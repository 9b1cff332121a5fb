// Package did defines the identity-registry collaborator consumed by the
// passport lifecycle: issuer identity lookup, account authorization and
// managed signing-key access.
package did

import (
	"context"
	"errors"
)

// Status of an issuer identity's verification.
type Status string

const (
	StatusVerified Status = "VERIFIED"
	StatusPending  Status = "PENDING"
	StatusFailed   Status = "FAILED"
	StatusUnknown  Status = "UNKNOWN"
)

// ErrNotPublished indicates a DID whose hosting is not yet reachable.
// Verification treats this as a pending condition, not a failure: the payload
// hash can still be checked even though the signature cannot.
var ErrNotPublished = errors.New("did: document not yet published")

// Identity describes a registered issuer.
type Identity struct {
	DID     string
	Name    string
	Status  Status
	// Managed reports whether the signing key is held server-side and must be
	// decrypted per signing call.
	Managed bool
	// PublicKey is the raw ed25519 public key, when known.
	PublicKey []byte
}

// Registry is the DID collaborator interface.
type Registry interface {
	// GetIssuerIdentity returns the identity for a DID, or nil when the DID
	// is not registered.
	GetIssuerIdentity(ctx context.Context, didID string) (*Identity, error)
	// IsAccountAuthorized reports whether account may anchor passports for
	// the DID on the given network.
	IsAccountAuthorized(ctx context.Context, didID, account, network string) (bool, error)
	// GetDecryptedSigningKey returns the decrypted private key material for a
	// server-managed identity. It must be called only for identities with
	// Managed set.
	GetDecryptedSigningKey(ctx context.Context, didID string) ([]byte, error)
}
