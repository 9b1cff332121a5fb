package ledger

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
)

func hexOf(b []byte) string { return hex.EncodeToString(b) }

func ss58For(t *testing.T, prefix byte, account []byte) string {
	t.Helper()
	body := append([]byte{prefix}, account...)
	body = append(body, 0xAB, 0xCD) // checksum bytes, not verified here
	return base58.Encode(body)
}

func TestNormalizeAccountHex(t *testing.T) {
	const canonical = "aabbccddeeff00112233445566778899aabbccdd"

	for _, in := range []string{
		canonical,
		"0x" + canonical,
		"0X" + strings.ToUpper(canonical),
	} {
		got, err := NormalizeAccount(in)
		if err != nil {
			t.Fatalf("NormalizeAccount(%q): %v", in, err)
		}
		if got != canonical {
			t.Fatalf("NormalizeAccount(%q) = %q, want %q", in, got, canonical)
		}
	}
}

func TestNormalizeAccountPadded32(t *testing.T) {
	account := bytes.Repeat([]byte{0x11}, 20)
	padded := append(append([]byte{}, account...), bytes.Repeat([]byte{0xEE}, 12)...)

	got, err := NormalizeAccount("0x" + hexOf(padded))
	if err != nil {
		t.Fatalf("NormalizeAccount: %v", err)
	}
	if got != hexOf(account) {
		t.Fatalf("padded account not truncated: got %q", got)
	}

	// A genuine 32-byte account stays 32 bytes.
	full := bytes.Repeat([]byte{0x22}, 32)
	got, err = NormalizeAccount(hexOf(full))
	if err != nil {
		t.Fatalf("NormalizeAccount: %v", err)
	}
	if got != hexOf(full) {
		t.Fatalf("32-byte account truncated: got %q", got)
	}
}

func TestNormalizeAccountSS58(t *testing.T) {
	account := bytes.Repeat([]byte{0x33}, 32)
	addr := ss58For(t, 42, account)

	got, err := NormalizeAccount(addr)
	if err != nil {
		t.Fatalf("NormalizeAccount(%q): %v", addr, err)
	}
	if got != hexOf(account) {
		t.Fatalf("NormalizeAccount(%q) = %q, want %q", addr, got, hexOf(account))
	}
}

func TestNormalizeAccountRejects(t *testing.T) {
	for _, in := range []string{"", "0x1234", "not an address!!", "0xzz" + strings.Repeat("0", 38)} {
		if _, err := NormalizeAccount(in); err == nil {
			t.Fatalf("NormalizeAccount(%q): expected error", in)
		}
	}
}

func TestSameAccountAcrossEncodings(t *testing.T) {
	account := bytes.Repeat([]byte{0x44}, 20)
	padded := append(append([]byte{}, account...), bytes.Repeat([]byte{0xEE}, 12)...)

	hexAddr := "0x" + hexOf(account)
	ss58Addr := ss58For(t, 42, padded)

	if !SameAccount(hexAddr, ss58Addr) {
		t.Fatalf("SameAccount(%q, %q) = false", hexAddr, ss58Addr)
	}
	other := "0x" + hexOf(bytes.Repeat([]byte{0x55}, 20))
	if SameAccount(hexAddr, other) {
		t.Fatal("SameAccount matched different accounts")
	}
	if SameAccount(hexAddr, "garbage") {
		t.Fatal("SameAccount matched an unparseable address")
	}
}
