// Package didtest provides an in-memory DID registry for tests.
package didtest

import (
	"context"
	"sync"

	"fides.dev/dpp/did"
)

// Registry is a test double for did.Registry.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]*did.Identity
	authorized map[string]bool // did + "|" + account + "|" + network
	keys       map[string][]byte
	// NotPublished lists DIDs that resolve with did.ErrNotPublished.
	notPublished map[string]bool
}

func New() *Registry {
	return &Registry{
		identities:   make(map[string]*did.Identity),
		authorized:   make(map[string]bool),
		keys:         make(map[string][]byte),
		notPublished: make(map[string]bool),
	}
}

func (r *Registry) AddIdentity(id *did.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[id.DID] = id
}

func (r *Registry) Authorize(didID, account, network string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorized[didID+"|"+account+"|"+network] = true
}

func (r *Registry) SetSigningKey(didID string, key []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[didID] = key
}

func (r *Registry) MarkNotPublished(didID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notPublished[didID] = true
}

func (r *Registry) GetIssuerIdentity(_ context.Context, didID string) (*did.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.notPublished[didID] {
		return nil, did.ErrNotPublished
	}
	id, ok := r.identities[didID]
	if !ok {
		return nil, nil
	}
	cp := *id
	return &cp, nil
}

func (r *Registry) IsAccountAuthorized(_ context.Context, didID, account, network string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized[didID+"|"+account+"|"+network], nil
}

func (r *Registry) GetDecryptedSigningKey(_ context.Context, didID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.keys[didID]
	if !ok {
		return nil, did.ErrNotPublished
	}
	return append([]byte(nil), key...), nil
}
