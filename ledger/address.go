package ledger

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// Account addresses reach the lifecycle in two encodings: 0x-prefixed hex
// (the EVM-style form the wallet tooling emits) and SS58 (base58 with a
// network prefix and a 2-byte checksum, the substrate form the chain records).
// Comparison must not depend on which encoding a collaborator happened to
// use, so both are reduced to one canonical form first.
//
// Conversion rules:
//   - Hex input: optional "0x", case-insensitive, 40 hex chars (20-byte
//     account) or 64 hex chars (32-byte account). Canonical form is the
//     lowercase hex of the raw bytes, without "0x".
//   - SS58 input: base58 body is prefix byte || account bytes || 2-byte
//     checksum. The prefix and checksum are stripped; the account bytes are
//     hex-encoded as above. Checksum verification is left to the chain
//     client; normalization only needs the account bytes.
//   - A 32-byte account whose trailing 12 bytes are all 0xEE is a padded
//     20-byte account (the runtime's address-mapping convention) and is
//     truncated to its 20-byte form.

// NormalizeAccount reduces an account address to its canonical lowercase-hex
// form. It returns an error for inputs in neither encoding.
func NormalizeAccount(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("ledger: empty account address")
	}

	if raw, ok := decodeHexAccount(addr); ok {
		return hex.EncodeToString(unpad(raw)), nil
	}

	body, err := base58.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("ledger: account %q is neither hex nor SS58", addr)
	}
	// prefix byte + account bytes + 2-byte checksum
	if len(body) != 1+20+2 && len(body) != 1+32+2 {
		return "", fmt.Errorf("ledger: SS58 body has unexpected length %d", len(body))
	}
	account := body[1 : len(body)-2]
	return hex.EncodeToString(unpad(account)), nil
}

// SameAccount reports whether two addresses identify the same account,
// regardless of encoding. Unparseable addresses never match.
func SameAccount(a, b string) bool {
	na, err := NormalizeAccount(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeAccount(b)
	if err != nil {
		return false
	}
	return na == nb
}

func decodeHexAccount(addr string) ([]byte, bool) {
	s := strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X")
	if len(s) != 40 && len(s) != 64 {
		return nil, false
	}
	raw, err := hex.DecodeString(strings.ToLower(s))
	if err != nil {
		return nil, false
	}
	return raw, true
}

func unpad(account []byte) []byte {
	if len(account) != 32 {
		return account
	}
	for _, b := range account[20:] {
		if b != 0xEE {
			return account
		}
	}
	return account[:20]
}
