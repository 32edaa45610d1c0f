package otp

import (
	"sync"
	"time"
)

type entry struct {
	hash      []byte
	expiresAt time.Time
	attempts  int
}

// MemoryStore holds one pending code per email. Expired entries are removed
// lazily on access and by Sweep.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) put(email string, hash []byte, ttl time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt := s.now().Add(ttl)
	s.entries[email] = &entry{hash: hash, expiresAt: expiresAt}
	return expiresAt
}

// reserve claims one attempt on the pending entry for email and returns it
// with the attempt number. It returns nil when there is no usable entry;
// exhausted reports that max attempts are already claimed. Attempts are
// counted before the code is compared, so concurrent checks of one entry
// never exceed max. The holder of the last attempt releases the entry.
func (s *MemoryStore) reserve(email string, max int) (e *entry, attempt int, exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[email]
	if !ok {
		return nil, 0, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, email)
		return nil, 0, false
	}
	if e.attempts >= max {
		return nil, 0, true
	}
	e.attempts++
	return e, e.attempts, false
}

// release deletes the entry for email if it is still e. A code issued by a
// later Send is left alone.
func (s *MemoryStore) release(email string, e *entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[email] != e {
		return false
	}
	delete(s.entries, email)
	return true
}

func (s *MemoryStore) delete(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, email)
}

// Sweep drops every expired entry and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for email, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, email)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}
