package content

import (
	"context"
	"sync"
)

// MemoryRepository implements Repository over an in-memory Catalog.
// Uses sync.RWMutex so lookups run in parallel while Load swaps the whole
// catalog atomically.
type MemoryRepository struct {
	mu      sync.RWMutex      // Protects the indexes below
	shabads map[string]Shabad // shabad id -> shabad
	byOrder map[int]string    // shabad order id -> shabad id
	banis   map[string]Bani   // bani id -> resolved bani
	min     int               // smallest shabad order id
	max     int               // largest shabad order id
}

// NewMemoryRepository creates an empty repository. Call Load to populate it.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		shabads: make(map[string]Shabad),
		byOrder: make(map[int]string),
		banis:   make(map[string]Bani),
	}
}

// Load validates the catalog and replaces the repository contents with it.
// On a validation error the previous contents stay in place.
func (m *MemoryRepository) Load(cat Catalog) error {
	resolved, err := cat.Resolve()
	if err != nil {
		return err
	}

	shabads := make(map[string]Shabad, len(resolved.Shabads))
	byOrder := make(map[int]string, len(resolved.Shabads))
	min, max := 0, 0
	for i, s := range resolved.Shabads {
		shabads[s.ID] = s.Clone()
		byOrder[s.OrderID] = s.ID
		if i == 0 || s.OrderID < min {
			min = s.OrderID
		}
		if i == 0 || s.OrderID > max {
			max = s.OrderID
		}
	}
	banis := make(map[string]Bani, len(resolved.Banis))
	for _, b := range resolved.Banis {
		banis[b.ID] = b.Clone()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.shabads = shabads
	m.byOrder = byOrder
	m.banis = banis
	m.min, m.max = min, max
	return nil
}

// ShabadByID returns a copy of the shabad with the given id.
func (m *MemoryRepository) ShabadByID(ctx context.Context, id string) (Shabad, error) {
	if err := ctx.Err(); err != nil {
		return Shabad{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.shabads[id]
	if !ok {
		return Shabad{}, ErrNotFound
	}
	return s.Clone(), nil
}

// ShabadByOrderID returns a copy of the shabad at the given ordinal.
func (m *MemoryRepository) ShabadByOrderID(ctx context.Context, orderID int) (Shabad, error) {
	if err := ctx.Err(); err != nil {
		return Shabad{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byOrder[orderID]
	if !ok {
		return Shabad{}, ErrNotFound
	}
	return m.shabads[id].Clone(), nil
}

// BaniLines returns a copy of the bani's lines in reading order.
func (m *MemoryRepository) BaniLines(ctx context.Context, id string) ([]Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.banis[id]
	if !ok {
		return nil, ErrNotFound
	}
	return CloneLines(b.Lines), nil
}

// ShabadOrderRange returns the inclusive ordinal range of loaded shabads.
func (m *MemoryRepository) ShabadOrderRange(ctx context.Context) (int, int, error) {
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.shabads) == 0 {
		return 0, 0, ErrEmptyCatalog
	}
	return m.min, m.max, nil
}

// Banis returns the ids and names of loaded banis. Order is not guaranteed.
func (m *MemoryRepository) Banis() []Bani {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Bani, 0, len(m.banis))
	for _, b := range m.banis {
		out = append(out, Bani{ID: b.ID, Name: b.Name})
	}
	return out
}
