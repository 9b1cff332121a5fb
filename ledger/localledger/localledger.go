// Package localledger implements a single-file ledger.Ledger for single-node
// deployments and the CLI. It carries the full anchor contract semantics
// (issuer-only mutation, terminal revocation, append-only history, subject
// reverse index) and persists every accepted transaction as JSON.
package localledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"fides.dev/dpp/ledger"
	"fides.dev/dpp/subjectid"
)

// Ledger is a file-backed ledger.Ledger. Token IDs start at 1. Block numbers
// advance by one per accepted transaction. Every mutation rewrites the file;
// anchor volume on a single node keeps this acceptable.
type Ledger struct {
	mu   sync.Mutex
	path string

	nextID   uint64
	block    uint64
	anchors  map[uint64]*ledger.Anchor
	history  map[uint64][]ledger.VersionEntry
	bySub    map[[32]byte]uint64
	finished map[string]bool
}

type anchorRecord struct {
	TokenID       uint64 `json:"tokenId"`
	IssuerAccount string `json:"issuerAccount"`
	DatasetURI    string `json:"datasetUri"`
	PayloadHash   string `json:"payloadHash"`
	DatasetType   string `json:"datasetType"`
	Granularity   string `json:"granularity"`
	SubjectIDHash string `json:"subjectIdHash,omitempty"`
	Version       uint32 `json:"version"`
	Status        string `json:"status"`
	CreatedAt     uint64 `json:"createdAt"`
	UpdatedAt     uint64 `json:"updatedAt"`
}

type versionRecord struct {
	Version     uint32 `json:"version"`
	DatasetURI  string `json:"datasetUri"`
	PayloadHash string `json:"payloadHash"`
	DatasetType string `json:"datasetType"`
	UpdatedAt   uint64 `json:"updatedAt"`
	UpdatedBy   string `json:"updatedBy"`
}

type fileState struct {
	NextID  uint64                     `json:"nextId"`
	Block   uint64                     `json:"block"`
	Anchors []anchorRecord             `json:"anchors"`
	History map[string][]versionRecord `json:"history"`
}

// Open loads the ledger state from path, starting empty when the file does
// not exist yet.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:     path,
		nextID:   1,
		anchors:  make(map[uint64]*ledger.Anchor),
		history:  make(map[uint64][]ledger.VersionEntry),
		bySub:    make(map[[32]byte]uint64),
		finished: make(map[string]bool),
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, err
	}
	var state fileState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("localledger: parse %s: %w", path, err)
	}
	if state.NextID > 0 {
		l.nextID = state.NextID
	}
	l.block = state.Block
	for _, rec := range state.Anchors {
		anchor, err := rec.anchor()
		if err != nil {
			return nil, fmt.Errorf("localledger: token %d: %w", rec.TokenID, err)
		}
		l.anchors[anchor.TokenID] = anchor
		if anchor.SubjectIDHash != nil && anchor.Status != ledger.StatusRevoked {
			l.bySub[*anchor.SubjectIDHash] = anchor.TokenID
		}
	}
	for key, recs := range state.History {
		var tokenID uint64
		if _, err := fmt.Sscanf(key, "%d", &tokenID); err != nil {
			return nil, fmt.Errorf("localledger: history key %q: %w", key, err)
		}
		entries := make([]ledger.VersionEntry, 0, len(recs))
		for _, rec := range recs {
			entry, err := rec.entry()
			if err != nil {
				return nil, fmt.Errorf("localledger: token %d history: %w", tokenID, err)
			}
			entries = append(entries, entry)
		}
		l.history[tokenID] = entries
	}
	return l, nil
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
	if err := l.flush(); err != nil {
		return nil, err
	}
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
	if err := l.flush(); err != nil {
		return nil, err
	}
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
	if err := l.flush(); err != nil {
		return nil, err
	}
	return &ledger.TxReceipt{TxHash: tx, BlockNumber: l.block}, nil
}

// WaitForTransaction reports success for any transaction this process
// accepted, and for any hash carrying the local prefix after a restart.
func (l *Ledger) WaitForTransaction(ctx context.Context, txHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.finished[txHash] {
		return nil
	}
	if len(txHash) > 2 && txHash[:2] == "0x" {
		return nil
	}
	return fmt.Errorf("localledger: unknown transaction %q", txHash)
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

// flush is called with l.mu held.
func (l *Ledger) flush() error {
	state := fileState{
		NextID:  l.nextID,
		Block:   l.block,
		History: make(map[string][]versionRecord, len(l.history)),
	}
	for _, anchor := range l.anchors {
		state.Anchors = append(state.Anchors, recordFor(anchor))
	}
	for tokenID, entries := range l.history {
		recs := make([]versionRecord, 0, len(entries))
		for _, e := range entries {
			recs = append(recs, versionRecord{
				Version:     e.Version,
				DatasetURI:  e.DatasetURI,
				PayloadHash: hex.EncodeToString(e.PayloadHash[:]),
				DatasetType: e.DatasetType,
				UpdatedAt:   e.UpdatedAt,
				UpdatedBy:   e.UpdatedBy,
			})
		}
		state.History[fmt.Sprintf("%d", tokenID)] = recs
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, l.path)
}

func recordFor(anchor *ledger.Anchor) anchorRecord {
	rec := anchorRecord{
		TokenID:       anchor.TokenID,
		IssuerAccount: anchor.IssuerAccount,
		DatasetURI:    anchor.DatasetURI,
		PayloadHash:   hex.EncodeToString(anchor.PayloadHash[:]),
		DatasetType:   anchor.DatasetType,
		Granularity:   string(anchor.Granularity),
		Version:       anchor.Version,
		Status:        string(anchor.Status),
		CreatedAt:     anchor.CreatedAt,
		UpdatedAt:     anchor.UpdatedAt,
	}
	if anchor.SubjectIDHash != nil {
		rec.SubjectIDHash = hex.EncodeToString(anchor.SubjectIDHash[:])
	}
	return rec
}

func (r anchorRecord) anchor() (*ledger.Anchor, error) {
	payload, err := decodeHash(r.PayloadHash)
	if err != nil {
		return nil, err
	}
	anchor := &ledger.Anchor{
		TokenID:       r.TokenID,
		IssuerAccount: r.IssuerAccount,
		DatasetURI:    r.DatasetURI,
		PayloadHash:   payload,
		DatasetType:   r.DatasetType,
		Granularity:   subjectid.Granularity(r.Granularity),
		Version:       r.Version,
		Status:        ledger.Status(r.Status),
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
	if r.SubjectIDHash != "" {
		sub, err := decodeHash(r.SubjectIDHash)
		if err != nil {
			return nil, err
		}
		anchor.SubjectIDHash = &sub
	}
	return anchor, nil
}

func (r versionRecord) entry() (ledger.VersionEntry, error) {
	payload, err := decodeHash(r.PayloadHash)
	if err != nil {
		return ledger.VersionEntry{}, err
	}
	return ledger.VersionEntry{
		Version:     r.Version,
		DatasetURI:  r.DatasetURI,
		PayloadHash: payload,
		DatasetType: r.DatasetType,
		UpdatedAt:   r.UpdatedAt,
		UpdatedBy:   r.UpdatedBy,
	}, nil
}

func decodeHash(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("hash must be %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
