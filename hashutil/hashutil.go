// Package hashutil provides the content-hashing primitives shared by the
// passport lifecycle: SHA-256 payload digests and CIDv1 content addresses.
package hashutil

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// Digest returns the SHA-256 digest of data.
//
// This is the payload hash anchored on the ledger: identical bytes always
// produce identical digests, and the digest recomputed on retrieval must match
// the one recorded at upload.
func Digest(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// DigestHex returns the lowercase hex encoding of Digest(data).
func DigestHex(data []byte) string {
	sum := Digest(data)
	return hex.EncodeToString(sum[:])
}

// CIDv1RawSHA256 returns a CIDv1 string using the "raw" multicodec
// and a sha2-256 multihash.
func CIDv1RawSHA256(data []byte) string {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum only errors for invalid inputs; with SHA2_256 and -1 length,
		// this should be unreachable.
		return ""
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}

// CIDv1RawSHA256CID returns a CIDv1 (raw + sha2-256) derived from data.
func CIDv1RawSHA256CID(data []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}
