package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is the persistence seam of the Store.
type MemoryRepository interface {
	Find(ctx context.Context, tenantID uuid.UUID, phone string) (Memory, bool, error)
	Upsert(ctx context.Context, mem Memory) (int, error)
}

// Store reads and writes conversation memory. Expired sub-states are
// dropped on read. Callers that perform a read-modify-write across a whole
// turn hold Lock for the pair first.
type Store struct {
	repo  MemoryRepository
	locks *KeyedMutex
	now   func() time.Time
}

// NewStore creates a memory store.
func NewStore(repo MemoryRepository) *Store {
	return &Store{
		repo:  repo,
		locks: NewKeyedMutex(),
		now:   time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Lock serializes turns for one (tenant, phone) pair within this process.
func (s *Store) Lock(tenantID uuid.UUID, phone string) (unlock func()) {
	return s.locks.Lock(memoryKey(tenantID, phone))
}

// Load returns the memory for the pair, or an empty memory when none is
// stored. Sub-states past their TTL are treated as absent.
func (s *Store) Load(ctx context.Context, tenantID uuid.UUID, phone string) (Memory, error) {
	mem, found, err := s.repo.Find(ctx, tenantID, phone)
	if err != nil {
		return Memory{}, err
	}
	if !found {
		return NewMemory(tenantID, phone), nil
	}
	if mem.Context.Version == 0 {
		mem.Context.Version = ContextVersion
	}
	mem.Expire(s.now())
	return mem, nil
}

// Save persists the memory and updates its row version.
func (s *Store) Save(ctx context.Context, mem *Memory) error {
	version, err := s.repo.Upsert(ctx, *mem)
	if err != nil {
		return err
	}
	mem.Version = version
	return nil
}

// Update runs fn over the current memory under the pair lock and saves the
// result when fn succeeds.
func (s *Store) Update(ctx context.Context, tenantID uuid.UUID, phone string, fn func(mem *Memory) error) (Memory, error) {
	unlock := s.Lock(tenantID, phone)
	defer unlock()

	mem, err := s.Load(ctx, tenantID, phone)
	if err != nil {
		return Memory{}, err
	}
	if err := fn(&mem); err != nil {
		return Memory{}, err
	}
	if err := s.Save(ctx, &mem); err != nil {
		return Memory{}, err
	}
	return mem, nil
}

// Reset clears booking and fiscal state for the pair.
func (s *Store) Reset(ctx context.Context, tenantID uuid.UUID, phone string) (Memory, error) {
	return s.Update(ctx, tenantID, phone, func(mem *Memory) error {
		mem.Reset()
		mem.LastActivityAt = s.now()
		return nil
	})
}

func memoryKey(tenantID uuid.UUID, phone string) string {
	return tenantID.String() + ":" + strings.TrimSpace(phone)
}

// KeyedMutex hands out one mutex per key and frees it once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the key is free and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
