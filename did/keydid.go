package did

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
)

// ed25519 multicodec prefix (0xed as a varint).
var ed25519Codec = []byte{0xED, 0x01}

// KeyDID derives the did:key form of an ed25519 public key. It is the issuer
// identifier for the locally-derived identity path, where no registered DID
// exists.
func KeyDID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("did: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	encoded, err := multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519Codec...), pub...))
	if err != nil {
		return "", fmt.Errorf("did: encode key: %w", err)
	}
	return "did:key:" + encoded, nil
}

// ParseKeyDID extracts the ed25519 public key embedded in a did:key
// identifier.
func ParseKeyDID(didID string) (ed25519.PublicKey, error) {
	encoded, ok := strings.CutPrefix(didID, "did:key:")
	if !ok {
		return nil, fmt.Errorf("did: %q is not a did:key identifier", didID)
	}
	_, raw, err := multibase.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("did: decode %q: %w", didID, err)
	}
	if !bytes.HasPrefix(raw, ed25519Codec) {
		return nil, fmt.Errorf("did: %q does not carry an ed25519 key", didID)
	}
	pub := raw[len(ed25519Codec):]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("did: key in %q must be %d bytes, got %d", didID, ed25519.PublicKeySize, len(pub))
	}
	return ed25519.PublicKey(pub), nil
}

// KeyRegistry resolves did:key identities without any backing service. A
// did:key is self-certifying, so the identity is always treated as verified
// and carries the embedded public key. DIDs of any other method resolve as
// unregistered.
//
// Account authorization is not a did:key concept; IsAccountAuthorized always
// reports false, which keeps this registry on the key-based issuing path.
type KeyRegistry struct{}

func (KeyRegistry) GetIssuerIdentity(_ context.Context, didID string) (*Identity, error) {
	pub, err := ParseKeyDID(didID)
	if err != nil {
		return nil, nil
	}
	return &Identity{
		DID:       didID,
		Status:    StatusVerified,
		PublicKey: pub,
	}, nil
}

func (KeyRegistry) IsAccountAuthorized(context.Context, string, string, string) (bool, error) {
	return false, nil
}

func (KeyRegistry) GetDecryptedSigningKey(_ context.Context, didID string) ([]byte, error) {
	return nil, fmt.Errorf("did: %q has no managed signing key", didID)
}
