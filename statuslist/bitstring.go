// Package statuslist implements the issuer-scoped revocation bitstring:
// index assignment, bit flips and re-publication of the encoded list as a
// content-addressed document.
package statuslist

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Capacity is the fixed number of entries per issuer list.
const Capacity = 131072

var (
	ErrIndexOutOfRange = errors.New("statuslist: index out of range")
	ErrExhausted       = errors.New("statuslist: list exhausted")
)

// BitString is a fixed-capacity revocation bitstring. Bit i is 1 when the
// credential holding index i is revoked.
type BitString struct {
	bits []byte
}

// NewBitString returns an all-zero list of Capacity bits.
func NewBitString() *BitString {
	return &BitString{bits: make([]byte, Capacity/8)}
}

func (b *BitString) Get(index int) (bool, error) {
	if index < 0 || index >= Capacity {
		return false, ErrIndexOutOfRange
	}
	return b.bits[index/8]&(1<<(uint(index)%8)) != 0, nil
}

func (b *BitString) Set(index int, value bool) error {
	if index < 0 || index >= Capacity {
		return ErrIndexOutOfRange
	}
	mask := byte(1 << (uint(index) % 8))
	if value {
		b.bits[index/8] |= mask
	} else {
		b.bits[index/8] &^= mask
	}
	return nil
}

// Encode returns the gzip-compressed, base64url form of the bitstring.
func (b *BitString) Encode() (string, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b.bits); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBitString parses the encoded form produced by Encode.
func DecodeBitString(encoded string) (*BitString, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("statuslist: invalid base64: %w", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("statuslist: invalid gzip: %w", err)
	}
	defer zr.Close()

	bits, err := io.ReadAll(io.LimitReader(zr, Capacity/8+1))
	if err != nil {
		return nil, fmt.Errorf("statuslist: decompress: %w", err)
	}
	if len(bits) != Capacity/8 {
		return nil, fmt.Errorf("statuslist: decoded length %d, want %d", len(bits), Capacity/8)
	}
	return &BitString{bits: bits}, nil
}

// Document is the published JSON form of an issuer's list.
type Document struct {
	Type        string `json:"type"`
	Purpose     string `json:"statusPurpose"`
	Issuer      string `json:"issuer"`
	EncodedList string `json:"encodedList"`
}

const (
	documentType   = "BitstringStatusList"
	purposeRevoked = "revocation"
)

// MarshalDocument renders the published list document for an issuer.
func MarshalDocument(issuer string, b *BitString) ([]byte, error) {
	encoded, err := b.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(Document{
		Type:        documentType,
		Purpose:     purposeRevoked,
		Issuer:      issuer,
		EncodedList: encoded,
	})
}

// UnmarshalDocument parses a published list document and decodes its bitstring.
func UnmarshalDocument(data []byte) (*Document, *BitString, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("statuslist: invalid document: %w", err)
	}
	if doc.Type != documentType {
		return nil, nil, fmt.Errorf("statuslist: unexpected document type %q", doc.Type)
	}
	bits, err := DecodeBitString(doc.EncodedList)
	if err != nil {
		return nil, nil, err
	}
	return &doc, bits, nil
}
