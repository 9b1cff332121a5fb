package statuslist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bluele/gcache"

	"fides.dev/dpp/storage"
)

var (
	ErrNoMapping      = errors.New("statuslist: no mapping for credential")
	ErrIssuerMismatch = errors.New("statuslist: mapping belongs to a different issuer")
)

// Entry is the status descriptor embedded in an issued credential's
// credentialStatus claim.
type Entry struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	StatusPurpose   string `json:"statusPurpose"`
	StatusListIndex string `json:"statusListIndex"`
	ListCredential  string `json:"statusListCredential"`
}

const entryType = "BitstringStatusListEntry"

// Manager assigns revocation indices and flips bits per issuer.
//
// The load-modify-publish cycle on an issuer's list is a critical section:
// two concurrent revocations racing on it can lose one bit flip. The manager
// serializes all mutations per issuer with a dedicated mutex.
type Manager struct {
	store   MappingStore
	dataset *storage.Dataset

	// Decoded lists keyed by content address. Addresses are content-derived,
	// so cached entries can never go stale.
	lists gcache.Cache

	mu      sync.Mutex
	issuers map[string]*sync.Mutex
}

// NewManager builds a Manager over a mapping store and a dataset store.
func NewManager(store MappingStore, dataset *storage.Dataset) *Manager {
	return &Manager{
		store:   store,
		dataset: dataset,
		lists:   gcache.New(32).LRU().Build(),
		issuers: make(map[string]*sync.Mutex),
	}
}

func (m *Manager) issuerLock(issuer string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.issuers[issuer]
	if !ok {
		l = &sync.Mutex{}
		m.issuers[issuer] = l
	}
	return l
}

// AssignIndex allocates the lowest unused index for (issuer, credentialID).
//
// Assignment is at-most-once per credential: a repeated call returns the
// existing index without allocating a second one. The issuer's initial
// all-zero list is published only on the first allocation; later allocations
// reuse the current content address. A full list is a hard failure.
func (m *Manager) AssignIndex(ctx context.Context, issuer, credentialID string) (*Entry, error) {
	if issuer == "" || credentialID == "" {
		return nil, errors.New("statuslist: issuer and credential id are required")
	}

	lock := m.issuerLock(issuer)
	lock.Lock()
	defer lock.Unlock()

	if existing, ok, err := m.store.ByCredential(credentialID); err != nil {
		return nil, err
	} else if ok {
		if existing.Issuer != issuer {
			return nil, ErrIssuerMismatch
		}
		addr, ok, err := m.store.CurrentList(issuer)
		if err != nil {
			return nil, err
		}
		if !ok {
			// A mapping without a published list means the store lost the
			// list pointer. Republishing a fresh list here would silently
			// clear any revoked bits, so refuse instead.
			return nil, fmt.Errorf("statuslist: issuer %s has mappings but no published list", issuer)
		}
		return m.entry(existing, addr), nil
	}

	mappings, err := m.store.ByIssuer(issuer)
	if err != nil {
		return nil, err
	}
	used := make(map[int]bool, len(mappings))
	for _, mp := range mappings {
		used[mp.Index] = true
	}
	index := -1
	for i := 0; i < Capacity; i++ {
		if !used[i] {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrExhausted
	}

	addr, ok, err := m.store.CurrentList(issuer)
	if err != nil {
		return nil, err
	}
	if !ok {
		// First allocation for this issuer: publish the initial all-zero list.
		addr, err = m.publish(ctx, issuer, NewBitString())
		if err != nil {
			return nil, err
		}
		if err := m.store.SetCurrentList(issuer, addr); err != nil {
			return nil, err
		}
	}

	mapping := Mapping{Issuer: issuer, CredentialID: credentialID, Index: index}
	if err := m.store.Put(mapping); err != nil {
		return nil, err
	}
	return m.entry(mapping, addr), nil
}

// Revoke flips the credential's bit and republishes the issuer's list.
//
// It fails when no mapping exists or when the mapping belongs to a different
// issuer. Revoking an already-revoked credential is a no-op.
func (m *Manager) Revoke(ctx context.Context, issuer, credentialID string) error {
	mapping, ok, err := m.store.ByCredential(credentialID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoMapping
	}
	if mapping.Issuer != issuer {
		return ErrIssuerMismatch
	}

	lock := m.issuerLock(issuer)
	lock.Lock()
	defer lock.Unlock()

	addr, hasList, err := m.store.CurrentList(issuer)
	if err != nil {
		return err
	}
	if !hasList {
		return fmt.Errorf("statuslist: issuer %q has no published list", issuer)
	}

	bits, err := m.load(ctx, addr)
	if err != nil {
		return err
	}
	already, err := bits.Get(mapping.Index)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	// Work on a copy so the cached decoded list stays consistent with its
	// content address.
	updated := NewBitString()
	copy(updated.bits, bits.bits)
	if err := updated.Set(mapping.Index, true); err != nil {
		return err
	}

	newAddr, err := m.publish(ctx, issuer, updated)
	if err != nil {
		return err
	}
	return m.store.SetCurrentList(issuer, newAddr)
}

// CheckStatus reports whether a credential is revoked.
//
// A credential with no mapping is not revoked: credentials issued before the
// status list existed stay valid.
func (m *Manager) CheckStatus(ctx context.Context, credentialID string) (bool, error) {
	mapping, ok, err := m.store.ByCredential(credentialID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	addr, hasList, err := m.store.CurrentList(mapping.Issuer)
	if err != nil {
		return false, err
	}
	if !hasList {
		return false, nil
	}
	bits, err := m.load(ctx, addr)
	if err != nil {
		return false, err
	}
	return bits.Get(mapping.Index)
}

func (m *Manager) entry(mapping Mapping, listAddress string) *Entry {
	return &Entry{
		ID:              m.dataset.GatewayURL(listAddress) + "#" + fmt.Sprint(mapping.Index),
		Type:            entryType,
		StatusPurpose:   purposeRevoked,
		StatusListIndex: fmt.Sprint(mapping.Index),
		ListCredential:  m.dataset.GatewayURL(listAddress),
	}
}

func (m *Manager) publish(ctx context.Context, issuer string, bits *BitString) (string, error) {
	doc, err := MarshalDocument(issuer, bits)
	if err != nil {
		return "", err
	}
	up, err := m.dataset.UploadText(ctx, string(doc))
	if err != nil {
		return "", err
	}
	m.lists.Set(up.ContentAddress, bits)
	return up.ContentAddress, nil
}

func (m *Manager) load(ctx context.Context, contentAddress string) (*BitString, error) {
	if v, err := m.lists.Get(contentAddress); err == nil {
		if bits, ok := v.(*BitString); ok {
			return bits, nil
		}
	}
	res, err := m.dataset.RetrieveText(ctx, contentAddress)
	if err != nil {
		return nil, err
	}
	_, bits, err := UnmarshalDocument(res.Data)
	if err != nil {
		return nil, err
	}
	m.lists.Set(contentAddress, bits)
	return bits, nil
}
