package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/eugenenazirov/unified-analytics/internal/site"
)

var (
	// ErrNilResolver indicates an attempt to install an empty snapshot.
	ErrNilResolver = errors.New("resolver snapshot must not be nil")
)

// Storage holds the site resolver currently in effect. Snapshots are
// immutable; a reload installs a new one wholesale.
type Storage interface {
	site.Source
	Replace(resolver *site.Resolver) error
	UpdatedAt() time.Time
}

// MemoryStorage keeps the active resolver in memory and guards access with
// a RWMutex.
type MemoryStorage struct {
	mu        sync.RWMutex
	resolver  *site.Resolver
	updatedAt time.Time
	clock     func() time.Time
}

// NewMemoryStorage initialises storage with resolver. A nil resolver starts
// with an empty table.
func NewMemoryStorage(resolver *site.Resolver) *MemoryStorage {
	if resolver == nil {
		resolver = site.NewResolver(nil)
	}
	s := &MemoryStorage{
		resolver: resolver,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	s.updatedAt = s.clock()
	return s
}

// Resolver returns the current snapshot.
func (s *MemoryStorage) Resolver() *site.Resolver {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.resolver
}

// Replace installs resolver as the current snapshot.
func (s *MemoryStorage) Replace(resolver *site.Resolver) error {
	if resolver == nil {
		return ErrNilResolver
	}

	s.mu.Lock()
	s.resolver = resolver
	s.updatedAt = s.clock()
	s.mu.Unlock()

	return nil
}

// UpdatedAt reports when the current snapshot was installed.
func (s *MemoryStorage) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.updatedAt
}
