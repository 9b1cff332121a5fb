package hashutil

import (
	"strings"
	"testing"
)

func TestDigestDeterministic(t *testing.T) {
	a := Digest([]byte("passport payload"))
	b := Digest([]byte("passport payload"))
	if a != b {
		t.Fatalf("same bytes produced different digests")
	}
}

func TestDigestDistinguishesBytes(t *testing.T) {
	a := Digest([]byte("passport payload"))
	b := Digest([]byte("passport payload."))
	if a == b {
		t.Fatalf("different bytes produced identical digests")
	}
}

func TestDigestHexKnownVector(t *testing.T) {
	// sha256("") from FIPS 180-4.
	got := DigestHex(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("DigestHex(nil) = %s, want %s", got, want)
	}
}

func TestCIDv1RawSHA256(t *testing.T) {
	s := CIDv1RawSHA256([]byte("hello"))
	if !strings.HasPrefix(s, "bafkrei") {
		t.Fatalf("unexpected CID prefix: %s", s)
	}

	id, err := CIDv1RawSHA256CID([]byte("hello"))
	if err != nil {
		t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
	}
	if id.String() != s {
		t.Fatalf("string and cid forms disagree: %s vs %s", s, id)
	}
	if !id.Defined() {
		t.Fatalf("returned CID is undefined")
	}
}
