package credential

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

var (
	ErrMalformedToken = errors.New("credential: malformed token")
	ErrNotSigned      = errors.New("credential: token carries no signature")
)

var rawURL = base64.RawURLEncoding

// Unsigned is a built but not yet signed credential. SigningInput is the
// exact byte string to sign: base64url(header) "." base64url(payload).
type Unsigned struct {
	Claims       *Claims
	SigningInput string
}

// Build serializes claims into the EdDSA signing input. The header is fixed
// to {alg: EdDSA, typ: JWT}.
func Build(claims *Claims) (*Unsigned, error) {
	header := map[string]string{"alg": string(jose.EdDSA), "typ": "JWT"}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("credential: marshal header: %w", err)
	}
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("credential: marshal claims: %w", err)
	}
	input := rawURL.EncodeToString(headerJSON) + "." + rawURL.EncodeToString(payloadJSON)
	return &Unsigned{Claims: claims, SigningInput: input}, nil
}

// Attach appends an externally produced signature to a signing input,
// yielding the compact serialization.
func Attach(signingInput string, signature []byte) (string, error) {
	if strings.Count(signingInput, ".") != 1 {
		return "", ErrMalformedToken
	}
	if len(signature) == 0 {
		return "", fmt.Errorf("credential: empty signature")
	}
	return signingInput + "." + rawURL.EncodeToString(signature), nil
}

// SignEdDSA signs the input with an ed25519 key and returns the compact
// serialization. Used by the single-phase flow and the managed-key re-sign
// path.
func SignEdDSA(signingInput string, key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("credential: ed25519 private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	return Attach(signingInput, ed25519.Sign(key, []byte(signingInput)))
}

// Issue builds and signs claims in one step.
func Issue(claims *Claims, key ed25519.PrivateKey) (string, error) {
	unsigned, err := Build(claims)
	if err != nil {
		return "", err
	}
	return SignEdDSA(unsigned.SigningInput, key)
}

// Decoded is a parsed token. Signature is nil for unsigned input.
type Decoded struct {
	Claims       *Claims
	SigningInput string
	Signature    []byte
}

// Decode parses a compact token without verifying anything. It accepts both
// signed (three segments) and unsigned (two segments, or three with an empty
// third) tokens.
func Decode(token string) (*Decoded, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, ErrMalformedToken
	}

	headerJSON, err := rawURL.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrMalformedToken, err)
	}

	payloadJSON, err := rawURL.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}
	claims := &Claims{Claims: &jwt.Claims{}}
	if err := json.Unmarshal(payloadJSON, claims); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedToken, err)
	}

	d := &Decoded{
		Claims:       claims,
		SigningInput: parts[0] + "." + parts[1],
	}
	if len(parts) == 3 && parts[2] != "" {
		sig, err := rawURL.DecodeString(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: signature: %v", ErrMalformedToken, err)
		}
		d.Signature = sig
	}
	return d, nil
}

// CheckSignature verifies the token's signature against an ed25519 public
// key using the JOSE layer.
func CheckSignature(token string, pub ed25519.PublicKey) error {
	d, err := Decode(token)
	if err != nil {
		return err
	}
	if d.Signature == nil {
		return ErrNotSigned
	}
	jws, err := jose.ParseSigned(token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if _, err := jws.Verify(pub); err != nil {
		return fmt.Errorf("credential: signature verification failed: %w", err)
	}
	return nil
}
