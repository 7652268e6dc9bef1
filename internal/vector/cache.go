package vector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	cerrors "github.com/calepin/calepin/internal/errors"
)

// SnapshotStore persists serialized vector stores, keyed by notebook.
// A nil blob clears the persisted state; a nil result means absent.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, notebookID int64, blob []byte) error
	LoadSnapshot(ctx context.Context, notebookID int64) ([]byte, error)
}

// Cache keeps a bounded number of live vector stores in process memory,
// keyed by notebook id. When capacity is reached the least recently used
// store is persisted before the incoming one is loaded, so evicted state is
// never lost. Each cached store carries its own lock; callers for different
// notebooks never contend.
type Cache struct {
	mu     sync.Mutex
	stores *lru.Cache[int64, *Store]
	locks  map[int64]*sync.Mutex
	cap    int
	params Params
	saver  SnapshotStore
}

// lockSlack is headroom above the logical capacity so that stores pinned by
// Acquire holders never force the LRU into a silent, unpersisted eviction.
const lockSlack = 4

// NewCache creates a store cache with the given capacity.
func NewCache(capacity int, params Params, saver SnapshotStore) (*Cache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	stores, err := lru.New[int64, *Store](capacity + lockSlack)
	if err != nil {
		return nil, err
	}
	return &Cache{
		stores: stores,
		locks:  make(map[int64]*sync.Mutex),
		cap:    capacity,
		params: params,
		saver:  saver,
	}, nil
}

// Get returns the live store for a notebook, loading it from its persisted
// snapshot on miss. A missing or corrupt snapshot yields a fresh empty store;
// corruption is logged and the index will be rebuilt from source notes.
func (c *Cache) Get(ctx context.Context, notebookID int64) (*Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.stores.Get(notebookID); ok {
		return s, nil
	}

	if err := c.evictOldestLocked(ctx); err != nil {
		return nil, err
	}

	blob, err := c.saver.LoadSnapshot(ctx, notebookID)
	if err != nil {
		return nil, err
	}

	var store *Store
	if blob != nil {
		store, err = FromSnapshot(blob, notebookID, c.params)
		if err != nil {
			slog.Warn("discarding corrupt vector store snapshot",
				slog.Int64("notebook", notebookID),
				slog.String("error", err.Error()))
			store = nil
		}
	}
	if store == nil {
		store = NewStore(notebookID, c.params)
	}

	c.stores.Add(notebookID, store)
	return store, nil
}

// Acquire returns the notebook's store with its mutation lock held. While the
// release func has not been called, no other Acquire for the same notebook
// proceeds and the store cannot be evicted, so a multi-step sequence (write
// rows, feed the index, persist) observes no concurrent index mutation and
// keeps operating on the live instance. Search paths use Get and are not
// excluded.
func (c *Cache) Acquire(ctx context.Context, notebookID int64) (*Store, func(), error) {
	mu := c.notebookLock(notebookID)
	mu.Lock()
	store, err := c.Get(ctx, notebookID)
	if err != nil {
		mu.Unlock()
		return nil, nil, err
	}
	return store, mu.Unlock, nil
}

func (c *Cache) notebookLock(notebookID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	mu, ok := c.locks[notebookID]
	if !ok {
		mu = &sync.Mutex{}
		c.locks[notebookID] = mu
	}
	return mu
}

// evictOldestLocked persists and drops the least recently used store when
// the cache is full. Persist-before-drop is the ordering guarantee: stale
// writes are never lost to an eviction. Stores whose mutation lock is held
// are skipped; they occupy the slack above capacity until released.
func (c *Cache) evictOldestLocked(ctx context.Context) error {
	if c.stores.Len() < c.cap {
		return nil
	}
	for _, notebookID := range c.stores.Keys() { // oldest first
		if mu, ok := c.locks[notebookID]; ok {
			if !mu.TryLock() {
				continue // Acquire holder is mid-mutation
			}
			mu.Unlock()
		}
		store, ok := c.stores.Peek(notebookID)
		if !ok {
			continue
		}
		if err := c.persist(ctx, notebookID, store); err != nil {
			return fmt.Errorf("persist evicted store for notebook %d: %w", notebookID, err)
		}
		c.stores.Remove(notebookID)
		return nil
	}
	return nil
}

// Save persists a notebook's live store. No-op if the store is not cached.
func (c *Cache) Save(ctx context.Context, notebookID int64) error {
	c.mu.Lock()
	store, ok := c.stores.Peek(notebookID)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.persist(ctx, notebookID, store)
}

// SaveAll persists every cached store. Used at shutdown.
func (c *Cache) SaveAll(ctx context.Context) error {
	c.mu.Lock()
	keys := c.stores.Keys()
	c.mu.Unlock()

	var firstErr error
	for _, notebookID := range keys {
		if err := c.Save(ctx, notebookID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drop removes a notebook's store from the cache and clears its persisted
// snapshot. Used when a notebook is deleted.
func (c *Cache) Drop(ctx context.Context, notebookID int64) error {
	c.mu.Lock()
	c.stores.Remove(notebookID)
	c.mu.Unlock()
	return c.saver.SaveSnapshot(ctx, notebookID, nil)
}

func (c *Cache) persist(ctx context.Context, notebookID int64, store *Store) error {
	blob, err := store.Snapshot()
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeStorageFailed, err)
	}
	return c.saver.SaveSnapshot(ctx, notebookID, blob)
}
