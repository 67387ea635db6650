package storage

import (
	"context"
	"fmt"
	"sync"

	ngerrors "github.com/diwise/graph-gateway/pkg/graphapi/errors"
)

// ObjectSource provides raw property data for graph objects. Implementations
// are free to back this with any store, the gateway only ever sees property
// maps.
type ObjectSource interface {
	Fetch(ctx context.Context, typeName, id string) (map[string]any, error)
	Store(ctx context.Context, typeName, id string, properties map[string]any) error
	Remove(ctx context.Context, typeName, id string) (bool, error)
	Related(ctx context.Context, typeName, id, connection string, limit, offset int) ([]map[string]any, int64, error)
	Link(ctx context.Context, fromType, fromID, connection, toType, toID string) error
	NextID(ctx context.Context, typeName string) (uint64, error)
}

type objectKey struct {
	typeName string
	id       string
}

type relation struct {
	typeName string
	id       string
}

// MemorySource is an in process ObjectSource for tests and single node
// deployments.
type MemorySource struct {
	mu        sync.RWMutex
	objects   map[objectKey]map[string]any
	relations map[string][]relation
	counters  map[string]uint64
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		objects:   map[objectKey]map[string]any{},
		relations: map[string][]relation{},
		counters:  map[string]uint64{},
	}
}

// Seed inserts an object without going through the gateway. Intended for
// test fixtures and bootstrap data.
func (m *MemorySource) Seed(typeName, id string, properties map[string]any) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[objectKey{typeName, id}] = cloneProperties(properties)
	return m
}

// Connect records that the object (fromType, fromID) has (toType, toID) in
// its named connection. Order of calls is preserved.
func (m *MemorySource) Connect(fromType, fromID, connection, toType, toID string) *MemorySource {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := relationKey(fromType, fromID, connection)
	m.relations[key] = append(m.relations[key], relation{toType, toID})
	return m
}

func (m *MemorySource) Link(ctx context.Context, fromType, fromID, connection, toType, toID string) error {
	m.Connect(fromType, fromID, connection, toType, toID)
	return nil
}

func (m *MemorySource) Fetch(ctx context.Context, typeName, id string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	properties, ok := m.objects[objectKey{typeName, id}]
	if !ok {
		return nil, ngerrors.NewNotFoundError(fmt.Sprintf("no %s with id %s", typeName, id))
	}

	return cloneProperties(properties), nil
}

func (m *MemorySource) Store(ctx context.Context, typeName, id string, properties map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := objectKey{typeName, id}

	existing, ok := m.objects[key]
	if !ok {
		m.objects[key] = cloneProperties(properties)
		return nil
	}

	for name, value := range properties {
		existing[name] = value
	}

	return nil
}

func (m *MemorySource) Remove(ctx context.Context, typeName, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := objectKey{typeName, id}
	if _, ok := m.objects[key]; !ok {
		return false, nil
	}

	delete(m.objects, key)

	for rk := range m.relations {
		filtered := m.relations[rk][:0]
		for _, r := range m.relations[rk] {
			if r.typeName != typeName || r.id != id {
				filtered = append(filtered, r)
			}
		}
		m.relations[rk] = filtered
	}

	return true, nil
}

func (m *MemorySource) Related(ctx context.Context, typeName, id, connection string, limit, offset int) ([]map[string]any, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := m.relations[relationKey(typeName, id, connection)]
	total := int64(len(all))

	if offset >= len(all) {
		return []map[string]any{}, total, nil
	}

	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	items := make([]map[string]any, 0, end-offset)
	for _, r := range all[offset:end] {
		if properties, ok := m.objects[objectKey{r.typeName, r.id}]; ok {
			items = append(items, cloneProperties(properties))
		}
	}

	return items, total, nil
}

func (m *MemorySource) NextID(ctx context.Context, typeName string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[typeName]++
	next := m.counters[typeName]

	for {
		if _, taken := m.objects[objectKey{typeName, fmt.Sprintf("%d", next)}]; !taken {
			m.counters[typeName] = next
			return next, nil
		}
		next++
	}
}

func relationKey(typeName, id, connection string) string {
	return typeName + ":" + id + ":" + connection
}

func cloneProperties(properties map[string]any) map[string]any {
	c := make(map[string]any, len(properties))
	for k, v := range properties {
		c[k] = v
	}
	return c
}
