package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// Anchoring signatures cover a digest of the anchored payload, not the raw
// bytes; the ledger tooling expects base64.

func digestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("keys: unsupported hash algorithm: %q", hashAlg)
	}
}

// SignAnchorEd25519 returns a base64 ed25519 signature over
// sha256(payload), for anchor attestations.
func SignAnchorEd25519(payload []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(payload)
	sig := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// SignAnchorDilithium3 returns a base64 dilithium3 signature over
// hash(payload), for the forward-looking post-quantum anchoring path.
// hashAlg must be one of: sha256, sha512, sha3-256.
func SignAnchorDilithium3(payload []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", fmt.Errorf("keys: missing private key")
	}
	digest, err := digestFor(hashAlg, payload)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// AttestationKeyDilithium3 derives a stored identity's post-quantum
// attestation keypair from its root seed. Derivation is deterministic, so
// only the ed25519 root seed is ever written to disk.
func (s *Store) AttestationKeyDilithium3(name string) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	if err := CheckName(name); err != nil {
		return nil, nil, err
	}
	rootSeed, err := s.loadSeed(s.rootPath(name))
	if err != nil {
		return nil, nil, err
	}
	seed, err := DeriveRoleSeed(rootSeed, "dilithium3-attestation")
	if err != nil {
		return nil, nil, err
	}
	shake := sha3.NewShake256()
	_, _ = shake.Write(seed)
	return GenerateDilithium3Keypair(shake)
}
