// Package ledger defines the chain collaborator that anchors passports:
// registration, reads, dataset updates, revocation and the privacy-preserving
// subject-hash lookup.
//
// The consensus layer itself is out of scope; this package specifies the
// operations the lifecycle consumes, the anchor record those operations
// maintain, and account-address normalization across the two encodings the
// chain tooling emits.
package ledger

import (
	"context"
	"errors"

	"fides.dev/dpp/subjectid"
)

// Status is the technical status of an anchor (not a product lifecycle stage).
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusActive    Status = "Active"
	StatusSuspended Status = "Suspended"
	StatusRevoked   Status = "Revoked"
	StatusArchived  Status = "Archived"
)

var (
	ErrTokenNotFound  = errors.New("ledger: token not found")
	ErrUnauthorized   = errors.New("ledger: caller is not the issuer")
	ErrAlreadyRevoked = errors.New("ledger: passport already revoked")
	ErrRevoked        = errors.New("ledger: passport is revoked")
	ErrInvalidInput   = errors.New("ledger: invalid input")
)

// Anchor is the ledger-resident record proving a passport version exists.
//
// Granularity is immutable after creation. The anchor is mutated only by the
// ledger in response to accepted transactions; the lifecycle never mutates it
// directly, only submits intents.
type Anchor struct {
	TokenID       uint64
	IssuerAccount string
	DatasetURI    string
	PayloadHash   [32]byte
	DatasetType   string
	Granularity   subjectid.Granularity
	SubjectIDHash *[32]byte
	Version       uint32
	Status        Status
	CreatedAt     uint64
	UpdatedAt     uint64
}

// VersionEntry is one immutable, append-only history record. Every update
// creates a new entry, preserving the complete audit trail.
type VersionEntry struct {
	Version     uint32
	DatasetURI  string
	PayloadHash [32]byte
	DatasetType string
	UpdatedAt   uint64
	UpdatedBy   string
}

// Registration carries the fields of a register intent.
type Registration struct {
	DatasetURI    string
	PayloadHash   [32]byte
	DatasetType   string
	Granularity   subjectid.Granularity
	SubjectIDHash *[32]byte
}

// RegisterReceipt reports an accepted registration.
type RegisterReceipt struct {
	TokenID     uint64
	TxHash      string
	BlockNumber uint64
}

// TxReceipt reports an accepted mutation.
type TxReceipt struct {
	TxHash      string
	BlockNumber uint64
}

// Ledger is the chain collaborator interface. All calls are boundable by the
// caller-supplied context.
type Ledger interface {
	// RegisterPassport submits a registration from account and returns the
	// assigned token.
	RegisterPassport(ctx context.Context, reg Registration, account string) (*RegisterReceipt, error)
	// ReadPassport returns the current anchor for a token.
	ReadPassport(ctx context.Context, tokenID uint64) (*Anchor, error)
	// UpdateDataset submits a dataset replacement for a token. Granularity is
	// never part of an update; it is immutable on the anchor.
	UpdateDataset(ctx context.Context, tokenID uint64, datasetURI string, payloadHash [32]byte, datasetType string, subjectIDHash *[32]byte, account string) (*TxReceipt, error)
	// RevokePassport marks the anchor revoked. Revocation is terminal.
	RevokePassport(ctx context.Context, tokenID uint64, reason string, account string) (*TxReceipt, error)
	// WaitForTransaction blocks until the transaction is finalized or ctx ends.
	WaitForTransaction(ctx context.Context, txHash string) error
	// FindTokenBySubjectID returns the token anchored for a subject hash, or
	// (0, false) when none exists.
	FindTokenBySubjectID(ctx context.Context, subjectIDHash [32]byte) (uint64, bool, error)
	// GetVersionHistory returns the append-only version entries for a token,
	// oldest first.
	GetVersionHistory(ctx context.Context, tokenID uint64) ([]VersionEntry, error)
}
