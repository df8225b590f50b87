package members

import (
	"context"
	"sort"
	"sync"

	"github.com/pingcap/errors"
)

// Store persists members. Implementations return errors whose cause is
// ErrNotFound or ErrExists for the corresponding conditions.
type Store interface {
	List(ctx context.Context) ([]Member, error)
	Get(ctx context.Context, id string) (Member, error)
	Create(ctx context.Context, m Member) error
	Update(ctx context.Context, m Member) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore keeps members in a map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	members map[string]Member
}

// DefaultSeed is loaded into the in-memory store by membersd.
var DefaultSeed = []Member{
	{ID: "alice", Name: "Alice Kim", Gender: GenderFemale},
	{ID: "bob", Name: "Bob Lee", Gender: GenderMale},
	{ID: "carol", Name: "Carol Park", Gender: GenderFemale},
	{ID: "dave", Name: "Dave Choi", Gender: GenderMale},
}

func NewMemoryStore(seed ...Member) *MemoryStore {
	s := &MemoryStore{members: make(map[string]Member, len(seed))}
	for _, m := range seed {
		s.members[m.ID] = m
	}
	return s
}

// List returns members ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]Member, error) {
	s.mu.RLock()
	out := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[id]
	if !ok {
		return Member{}, errors.Trace(ErrNotFound)
	}
	return m, nil
}

func (s *MemoryStore) Create(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; ok {
		return errors.Trace(ErrExists)
	}
	s.members[m.ID] = m
	return nil
}

func (s *MemoryStore) Update(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[m.ID]; !ok {
		return errors.Trace(ErrNotFound)
	}
	s.members[m.ID] = m
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return errors.Trace(ErrNotFound)
	}
	delete(s.members, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
