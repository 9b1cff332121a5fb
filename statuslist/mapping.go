package statuslist

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// Mapping records the index assigned to one credential, together with the
// issuer scope. Index space is append-only per issuer: indices are assigned
// at most once per credential and never reused.
type Mapping struct {
	Issuer       string `json:"issuer"`
	CredentialID string `json:"credentialId"`
	Index        int    `json:"index"`
}

// MappingStore is the persistence capability behind the manager.
//
// Implementations must make Put atomic with respect to concurrent readers;
// the manager serializes writers per issuer itself.
type MappingStore interface {
	// ByCredential returns the mapping for a credential, if any.
	ByCredential(credentialID string) (Mapping, bool, error)
	// ByIssuer returns all mappings for an issuer.
	ByIssuer(issuer string) ([]Mapping, error)
	// Put stores a new mapping.
	Put(m Mapping) error

	// CurrentList returns the content address of the issuer's current
	// published list, if the issuer has one.
	CurrentList(issuer string) (string, bool, error)
	// SetCurrentList updates the issuer's current published list pointer.
	SetCurrentList(issuer, contentAddress string) error
}

// MemStore is an in-memory MappingStore.
type MemStore struct {
	mu       sync.RWMutex
	byCred   map[string]Mapping
	byIssuer map[string][]Mapping
	current  map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{
		byCred:   make(map[string]Mapping),
		byIssuer: make(map[string][]Mapping),
		current:  make(map[string]string),
	}
}

func (s *MemStore) ByCredential(credentialID string) (Mapping, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byCred[credentialID]
	return m, ok, nil
}

func (s *MemStore) ByIssuer(issuer string) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Mapping(nil), s.byIssuer[issuer]...), nil
}

func (s *MemStore) Put(m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byCred[m.CredentialID]; exists {
		return errors.New("statuslist: mapping already exists")
	}
	s.byCred[m.CredentialID] = m
	s.byIssuer[m.Issuer] = append(s.byIssuer[m.Issuer], m)
	return nil
}

func (s *MemStore) CurrentList(issuer string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr, ok := s.current[issuer]
	return addr, ok, nil
}

func (s *MemStore) SetCurrentList(issuer, contentAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[issuer] = contentAddress
	return nil
}

// FileStore is a single-file JSON MappingStore for single-node deployments.
// Every mutation rewrites the file; mapping volume per issuer is bounded by
// the list capacity, which keeps this acceptable.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemStore
}

type fileStoreState struct {
	Mappings []Mapping         `json:"mappings"`
	Current  map[string]string `json:"current"`
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, mem: NewMemStore()}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fs, nil
		}
		return nil, err
	}
	var state fileStoreState
	if err := json.Unmarshal(b, &state); err != nil {
		return nil, err
	}
	for _, m := range state.Mappings {
		if err := fs.mem.Put(m); err != nil {
			return nil, err
		}
	}
	for issuer, addr := range state.Current {
		_ = fs.mem.SetCurrentList(issuer, addr)
	}
	return fs, nil
}

func (s *FileStore) ByCredential(credentialID string) (Mapping, bool, error) {
	return s.mem.ByCredential(credentialID)
}

func (s *FileStore) ByIssuer(issuer string) ([]Mapping, error) {
	return s.mem.ByIssuer(issuer)
}

func (s *FileStore) Put(m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.Put(m); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStore) CurrentList(issuer string) (string, bool, error) {
	return s.mem.CurrentList(issuer)
}

func (s *FileStore) SetCurrentList(issuer, contentAddress string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mem.SetCurrentList(issuer, contentAddress); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStore) flush() error {
	s.mem.mu.RLock()
	state := fileStoreState{Current: make(map[string]string, len(s.mem.current))}
	for _, ms := range s.mem.byIssuer {
		state.Mappings = append(state.Mappings, ms...)
	}
	for k, v := range s.mem.current {
		state.Current[k] = v
	}
	s.mem.mu.RUnlock()

	b, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
