package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Response is a cached handler response, replayed when the same
// Idempotency-Key arrives twice. Creating a charge is not a safe operation
// to repeat, so the create endpoints sit behind this cache.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	CachedAt   time.Time
}

// Store manages idempotency keys and their cached responses.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, response *Response, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store with TTL expiry and LRU eviction.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]*entry
	lru         *list.List
	maxSize     int
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

type entry struct {
	key       string
	response  *Response
	expiresAt time.Time
	element   *list.Element
}

const defaultMaxEntries = 10000

// NewMemoryStore creates an in-memory idempotency store and starts its
// background expiry sweep. Call Stop when done.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:     make(map[string]*entry),
		lru:         list.New(),
		maxSize:     defaultMaxEntries,
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Get retrieves a cached response if present and unexpired.
func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.After(e.expiresAt) {
		return nil, false
	}
	s.lru.MoveToFront(e.element)
	return e.response, true
}

// Set stores a response under key for ttl. When the store is full the least
// recently used entry is evicted first.
func (s *MemoryStore) Set(_ context.Context, key string, response *Response, ttl time.Duration) error {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.response = response
		e.expiresAt = now.Add(ttl)
		s.lru.MoveToFront(e.element)
		return nil
	}

	if len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	e := &entry{key: key, response: response, expiresAt: now.Add(ttl)}
	e.element = s.lru.PushFront(e)
	s.entries[key] = e
	return nil
}

// Delete removes a cached response.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(key)
	return nil
}

// evictOldest drops the least recently used entry. Caller holds the lock.
func (s *MemoryStore) evictOldest() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	s.remove(back.Value.(*entry).key)
}

// remove deletes key from both indexes. Caller holds the lock.
func (s *MemoryStore) remove(key string) {
	if e, ok := s.entries[key]; ok {
		s.lru.Remove(e.element)
		delete(s.entries, key)
	}
}

// sweep periodically removes expired entries.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			var expired []string
			for key, e := range s.entries {
				if now.After(e.expiresAt) {
					expired = append(expired, key)
				}
			}
			for _, key := range expired {
				s.remove(key)
			}
			s.mu.Unlock()
		}
	}
}

// Stop shuts down the expiry sweep goroutine.
func (s *MemoryStore) Stop() {
	close(s.stopCleanup)
	<-s.cleanupDone
}
