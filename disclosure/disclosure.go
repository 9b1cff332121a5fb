// Package disclosure implements the selective-disclosure codec for passport
// documents.
//
// A document's regulated fields are split into a public section, embedded in
// cleartext, and a restricted section, embedded as an authenticated-encryption
// envelope. The symmetric verification key is generated once per passport
// creation and communicated out-of-band through a verification link; holding
// the link, not any server-side state, is what grants access to the restricted
// section.
package disclosure

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// AlgC20P identifies the ChaCha20-Poly1305 AEAD used for restricted sections.
const AlgC20P = "C20P"

// KeySize is the verification key length in bytes.
const KeySize = chacha20poly1305.KeySize

var (
	ErrWrongKeySize  = errors.New("disclosure: verification key must be 32 bytes")
	ErrBadEnvelope   = errors.New("disclosure: malformed envelope")
	ErrDecryptFailed = errors.New("disclosure: decryption failed")
)

// Envelope is the opaque ciphertext form of a restricted section.
//
// IV, Ciphertext and Tag are base64url (unpadded). The Poly1305 tag is kept as
// a separate field so tampering with either part fails closed on open.
type Envelope struct {
	Alg        string `json:"alg"`
	IV         string `json:"iv"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// Classifier reports whether a field belongs to the restricted section.
type Classifier func(field string) bool

// Split partitions fields into a public and a restricted section.
// Fields the classifier marks restricted never appear in the public section.
func Split(fields map[string]any, restricted Classifier) (public, regulated map[string]any) {
	public = make(map[string]any, len(fields))
	regulated = make(map[string]any)
	for k, v := range fields {
		if restricted != nil && restricted(k) {
			regulated[k] = v
			continue
		}
		public[k] = v
	}
	return public, regulated
}

// PrefixClassifier marks fields carrying any of the given prefixes restricted.
func PrefixClassifier(prefixes ...string) Classifier {
	sorted := append([]string(nil), prefixes...)
	sort.Strings(sorted)
	return func(field string) bool {
		for _, p := range sorted {
			if strings.HasPrefix(field, p) {
				return true
			}
		}
		return false
	}
}

// NewKey generates a fresh random verification key.
// Keys are never derived from long-lived secrets and never persisted
// server-side in cleartext.
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("disclosure: key generation: %w", err)
	}
	return key, nil
}

// Encrypt seals the restricted section under key with a fresh random nonce.
func Encrypt(restricted map[string]any, key []byte) (*Envelope, error) {
	if len(key) != KeySize {
		return nil, ErrWrongKeySize
	}
	plaintext, err := json.Marshal(restricted)
	if err != nil {
		return nil, fmt.Errorf("disclosure: encode restricted section: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("disclosure: nonce generation: %w", err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - aead.Overhead()

	b64 := base64.RawURLEncoding
	return &Envelope{
		Alg:        AlgC20P,
		IV:         b64.EncodeToString(nonce),
		Ciphertext: b64.EncodeToString(sealed[:tagStart]),
		Tag:        b64.EncodeToString(sealed[tagStart:]),
	}, nil
}

// Decrypt opens an envelope with key.
//
// Decryption fails closed: a wrong key, a tampered ciphertext or tag, or a
// malformed envelope yields an error and never partial plaintext.
func Decrypt(env *Envelope, key []byte) (map[string]any, error) {
	if len(key) != KeySize {
		return nil, ErrWrongKeySize
	}
	if env == nil || env.Alg != AlgC20P {
		return nil, ErrBadEnvelope
	}

	b64 := base64.RawURLEncoding
	nonce, err := b64.DecodeString(env.IV)
	if err != nil {
		return nil, ErrBadEnvelope
	}
	ciphertext, err := b64.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrBadEnvelope
	}
	tag, err := b64.DecodeString(env.Tag)
	if err != nil {
		return nil, ErrBadEnvelope
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() || len(tag) != aead.Overhead() {
		return nil, ErrBadEnvelope
	}

	plaintext, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	var restricted map[string]any
	if err := json.Unmarshal(plaintext, &restricted); err != nil {
		return nil, fmt.Errorf("disclosure: decode restricted section: %w", err)
	}
	return restricted, nil
}

// EncodeKey renders a verification key in the base64url form embedded in
// verification links.
func EncodeKey(key []byte) string {
	return base64.RawURLEncoding.EncodeToString(key)
}

// DecodeKey parses a key from its verification-link form.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("disclosure: invalid key encoding: %w", err)
	}
	if len(key) != KeySize {
		return nil, ErrWrongKeySize
	}
	return key, nil
}

// VerificationLink renders the out-of-band link template with the encoded key.
// The template must contain the "{key}" placeholder.
func VerificationLink(template string, key []byte) (string, error) {
	if !strings.Contains(template, "{key}") {
		return "", errors.New("disclosure: link template missing {key} placeholder")
	}
	return strings.ReplaceAll(template, "{key}", EncodeKey(key)), nil
}
