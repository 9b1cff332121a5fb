package storage

import (
	"context"
	"strings"

	"github.com/ipfs/go-cid"

	"fides.dev/dpp/hashutil"
)

// UploadResult describes a stored dataset.
type UploadResult struct {
	ContentAddress string
	ContentHash    string // lowercase hex sha256 of the stored bytes
	GatewayURL     string
	Size           int
}

// RetrieveResult carries retrieved dataset bytes and their recomputed hash.
type RetrieveResult struct {
	Data        []byte
	ContentHash string
}

// Dataset adapts a CAS into the dataset-storage surface the passport
// lifecycle consumes: text upload and retrieval plus gateway URL rendering.
//
// The CAS contract guarantees the invariant callers rely on: the hash
// reported at upload equals the hash recomputed at retrieval, independent of
// backend.
type Dataset struct {
	cas CAS

	// gatewayTemplate renders dereferenceable URLs; "{cid}" is replaced by
	// the content address.
	gatewayTemplate string
}

// NewDataset wraps cas. gatewayTemplate may be empty, in which case
// GatewayURL returns a dpp scheme URI.
func NewDataset(cas CAS, gatewayTemplate string) *Dataset {
	return &Dataset{cas: cas, gatewayTemplate: gatewayTemplate}
}

// UploadText stores text and returns its content address, hash and gateway URL.
func (d *Dataset) UploadText(ctx context.Context, text string) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := []byte(text)
	id, err := d.cas.Put(data)
	if err != nil {
		return nil, err
	}
	return &UploadResult{
		ContentAddress: id.String(),
		ContentHash:    hashutil.DigestHex(data),
		GatewayURL:     d.GatewayURL(id.String()),
		Size:           len(data),
	}, nil
}

// RetrieveText fetches the bytes stored under contentAddress.
// A malformed address maps to ErrInvalidCID; an absent object to ErrNotFound.
func (d *Dataset) RetrieveText(ctx context.Context, contentAddress string) (*RetrieveResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := cid.Decode(strings.TrimSpace(contentAddress))
	if err != nil {
		return nil, ErrInvalidCID
	}
	data, err := d.cas.Get(id)
	if err != nil {
		return nil, err
	}
	return &RetrieveResult{Data: data, ContentHash: hashutil.DigestHex(data)}, nil
}

// CAS exposes the underlying store, for block-level consumers like bundle
// export.
func (d *Dataset) CAS() CAS { return d.cas }

// GatewayURL renders a dereferenceable URL for a content address.
func (d *Dataset) GatewayURL(contentAddress string) string {
	if d.gatewayTemplate == "" {
		return "dpp://dataset/" + contentAddress
	}
	return strings.ReplaceAll(d.gatewayTemplate, "{cid}", contentAddress)
}
