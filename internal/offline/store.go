package offline

// Store is the persistence abstraction for named caches.
// Implementations can be in-memory, file-based, or remote.
// Cache serializes all access; implementations need not be safe for
// concurrent use.
type Store interface {
	Get(cache, key string) (Entry, bool)
	Put(cache, key string, e Entry)
	// CacheNames lists every cache that holds at least one entry.
	CacheNames() []string
	DeleteCache(cache string)
}

// InMemoryStore is an in-memory implementation of Store.
type InMemoryStore struct {
	caches map[string]map[string]Entry
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		caches: make(map[string]map[string]Entry),
	}
}

// Get implements Store.Get.
func (s *InMemoryStore) Get(cache, key string) (Entry, bool) {
	e, ok := s.caches[cache][key]
	return e, ok
}

// Put implements Store.Put.
func (s *InMemoryStore) Put(cache, key string, e Entry) {
	entries, ok := s.caches[cache]
	if !ok {
		entries = make(map[string]Entry)
		s.caches[cache] = entries
	}
	entries[key] = e
}

// CacheNames implements Store.CacheNames.
func (s *InMemoryStore) CacheNames() []string {
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	return names
}

// DeleteCache implements Store.DeleteCache.
func (s *InMemoryStore) DeleteCache(cache string) {
	delete(s.caches, cache)
}
