// Package directory resolves memorable member aliases to member ids.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrAliasNotFound = errors.New("alias not found")

type Directory interface {
	MemberByAlias(ctx context.Context, alias string) (uint64, error)
}

// InMemoryDirectory serves aliases from a map, for tests and single node
// deployments.
type InMemoryDirectory struct {
	mu      sync.RWMutex
	aliases map[string]uint64
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{aliases: map[string]uint64{}}
}

func (d *InMemoryDirectory) Register(alias string, memberID uint64) *InMemoryDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aliases[strings.ToLower(alias)] = memberID
	return d
}

func (d *InMemoryDirectory) MemberByAlias(ctx context.Context, alias string) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.aliases[strings.ToLower(alias)]
	if !ok {
		return 0, ErrAliasNotFound
	}

	return id, nil
}
