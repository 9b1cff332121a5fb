package registry

import (
	"context"
	"sync"
)

// Memory is an in-memory Anagrafica for tests and single-node deployments.
type Memory struct {
	mu       sync.Mutex
	products map[string]*Product
	entities map[string]*Entity
	byProd   map[string][]uint64
	byEntity map[string][]uint64
	failing  bool
}

func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]*Product),
		entities: make(map[string]*Entity),
		byProd:   make(map[string][]uint64),
		byEntity: make(map[string][]uint64),
	}
}

// AddProduct registers a product.
func (m *Memory) AddProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

// AddEntity registers an entity.
func (m *Memory) AddEntity(e Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := e
	m.entities[e.DID] = &cp
}

// SetFailing makes every call return ErrUnavailable, for degradation tests.
func (m *Memory) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *Memory) ResolveProduct(_ context.Context, productID string) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, ErrUnavailable
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetDppsForProduct(_ context.Context, productID string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, ErrUnavailable
	}
	return append([]uint64(nil), m.byProd[productID]...), nil
}

func (m *Memory) ResolveEntity(_ context.Context, did string) (*Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, ErrUnavailable
	}
	e, ok := m.entities[did]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) GetDppsForEntity(_ context.Context, did string) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, ErrUnavailable
	}
	return append([]uint64(nil), m.byEntity[did]...), nil
}

func (m *Memory) IndexPassport(_ context.Context, entry IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}
	if entry.ProductID != "" {
		m.byProd[entry.ProductID] = appendUnique(m.byProd[entry.ProductID], entry.TokenID)
	}
	if entry.IssuerDID != "" {
		m.byEntity[entry.IssuerDID] = appendUnique(m.byEntity[entry.IssuerDID], entry.TokenID)
	}
	return nil
}

func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
