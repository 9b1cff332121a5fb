// Package ledgertest provides an in-memory Ledger with the anchor contract's
// semantics, for tests and offline development.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"fides.dev/dpp/ledger"
)

// Ledger is an in-memory ledger.Ledger. Token IDs start at 1. Block numbers
// advance by one per accepted transaction.
type Ledger struct {
	mu       sync.Mutex
	nextID   uint64
	block    uint64
	anchors  map[uint64]*ledger.Anchor
	history  map[uint64][]ledger.VersionEntry
	bySub    map[[32]byte]uint64
	finished map[string]bool
}

func New() *Ledger {
	return &Ledger{
		nextID:   1,
		anchors:  make(map[uint64]*ledger.Anchor),
		history:  make(map[uint64][]ledger.VersionEntry),
		bySub:    make(map[[32]byte]uint64),
		finished: make(map[string]bool),
	}
}

func (l *Ledger) RegisterPassport(_ context.Context, reg ledger.Registration, account string) (*ledger.RegisterReceipt, error) {
	if reg.DatasetURI == "" || reg.DatasetType == "" || account == "" {
		return nil, ledger.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.block++
	id := l.nextID
	l.nextID++

	anchor := &ledger.Anchor{
		TokenID:       id,
		IssuerAccount: account,
		DatasetURI:    reg.DatasetURI,
		PayloadHash:   reg.PayloadHash,
		DatasetType:   reg.DatasetType,
		Granularity:   reg.Granularity,
		SubjectIDHash: reg.SubjectIDHash,
		Version:       1,
		Status:        ledger.StatusActive,
		CreatedAt:     l.block,
		UpdatedAt:     l.block,
	}
	l.anchors[id] = anchor
	l.history[id] = []ledger.VersionEntry{{
		Version:     1,
		DatasetURI:  reg.DatasetURI,
		PayloadHash: reg.PayloadHash,
		DatasetType: reg.DatasetType,
		UpdatedAt:   l.block,
		UpdatedBy:   account,
	}}
	if reg.SubjectIDHash != nil {
		l.bySub[*reg.SubjectIDHash] = id
	}

	tx := l.txHash("register", id)
	l.finished[tx] = true
	return &ledger.RegisterReceipt{TokenID: id, TxHash: tx, BlockNumber: l.block}, nil
}

func (l *Ledger) ReadPassport(_ context.Context, tokenID uint64) (*ledger.Anchor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	anchor, ok := l.anchors[tokenID]
	if !ok {
		return nil, ledger.ErrTokenNotFound
	}
	cp := *anchor
	return &cp, nil
}

func (l *Ledger) UpdateDataset(_ context.Context, tokenID uint64, datasetURI string, payloadHash [32]byte, datasetType string, subjectIDHash *[32]byte, account string) (*ledger.TxReceipt, error) {
	if datasetURI == "" || datasetType == "" {
		return nil, ledger.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	anchor, ok := l.anchors[tokenID]
	if !ok {
		return nil, ledger.ErrTokenNotFound
	}
	if !ledger.SameAccount(anchor.IssuerAccount, account) {
		return nil, ledger.ErrUnauthorized
	}
	if anchor.Status == ledger.StatusRevoked {
		return nil, ledger.ErrRevoked
	}

	l.block++

	// Maintain the subject reverse index: unlink the old hash, link the new.
	if anchor.SubjectIDHash != nil {
		if existing, ok := l.bySub[*anchor.SubjectIDHash]; ok && existing == tokenID {
			delete(l.bySub, *anchor.SubjectIDHash)
		}
	}
	if subjectIDHash != nil {
		l.bySub[*subjectIDHash] = tokenID
	}

	anchor.DatasetURI = datasetURI
	anchor.PayloadHash = payloadHash
	anchor.DatasetType = datasetType
	anchor.SubjectIDHash = subjectIDHash
	anchor.Version++
	anchor.UpdatedAt = l.block

	l.history[tokenID] = append(l.history[tokenID], ledger.VersionEntry{
		Version:     anchor.Version,
		DatasetURI:  datasetURI,
		PayloadHash: payloadHash,
		DatasetType: datasetType,
		UpdatedAt:   l.block,
		UpdatedBy:   account,
	})

	tx := l.txHash("update", tokenID)
	l.finished[tx] = true
	return &ledger.TxReceipt{TxHash: tx, BlockNumber: l.block}, nil
}

func (l *Ledger) RevokePassport(_ context.Context, tokenID uint64, reason string, account string) (*ledger.TxReceipt, error) {
	_ = reason

	l.mu.Lock()
	defer l.mu.Unlock()

	anchor, ok := l.anchors[tokenID]
	if !ok {
		return nil, ledger.ErrTokenNotFound
	}
	if !ledger.SameAccount(anchor.IssuerAccount, account) {
		return nil, ledger.ErrUnauthorized
	}
	if anchor.Status == ledger.StatusRevoked {
		return nil, ledger.ErrAlreadyRevoked
	}

	l.block++
	anchor.Status = ledger.StatusRevoked
	anchor.UpdatedAt = l.block

	tx := l.txHash("revoke", tokenID)
	l.finished[tx] = true
	return &ledger.TxReceipt{TxHash: tx, BlockNumber: l.block}, nil
}

func (l *Ledger) WaitForTransaction(ctx context.Context, txHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.finished[txHash] {
		return fmt.Errorf("ledgertest: unknown transaction %q", txHash)
	}
	return nil
}

func (l *Ledger) FindTokenBySubjectID(_ context.Context, subjectIDHash [32]byte) (uint64, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.bySub[subjectIDHash]
	return id, ok, nil
}

func (l *Ledger) GetVersionHistory(_ context.Context, tokenID uint64) ([]ledger.VersionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.history[tokenID]
	if !ok {
		return nil, ledger.ErrTokenNotFound
	}
	return append([]ledger.VersionEntry(nil), h...), nil
}

func (l *Ledger) txHash(op string, tokenID uint64) string {
	return fmt.Sprintf("0x%s-%d-%d", op, tokenID, l.block)
}
