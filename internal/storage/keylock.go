package storage

import (
	"context"
	"sync"

	"neurosim/internal/model"
)

// KeyedMutex hands out one mutex per key and frees it once no caller holds
// or waits for it.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// held reports how many keys currently have holders or waiters.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

type lockedStore struct {
	Store
	keys KeyedMutex
}

// WithKeyLocks wraps store so that operations on the same config or run
// identifier never interleave.
func WithKeyLocks(store Store) Store {
	if _, ok := store.(*lockedStore); ok {
		return store
	}
	return &lockedStore{Store: store}
}

func (s *lockedStore) SaveConfig(ctx context.Context, config model.ConfigRecord) error {
	defer s.keys.Lock("config/" + config.ID)()
	return s.Store.SaveConfig(ctx, config)
}

func (s *lockedStore) GetConfig(ctx context.Context, id string) (model.ConfigRecord, bool, error) {
	defer s.keys.Lock("config/" + id)()
	return s.Store.GetConfig(ctx, id)
}

func (s *lockedStore) DeleteConfig(ctx context.Context, id string) (bool, error) {
	defer s.keys.Lock("config/" + id)()
	return s.Store.DeleteConfig(ctx, id)
}

func (s *lockedStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	defer s.keys.Lock("run/" + run.ID)()
	return s.Store.SaveRun(ctx, run)
}

func (s *lockedStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	defer s.keys.Lock("run/" + id)()
	return s.Store.GetRun(ctx, id)
}

func (s *lockedStore) DeleteRun(ctx context.Context, id string) (bool, error) {
	defer s.keys.Lock("run/" + id)()
	return s.Store.DeleteRun(ctx, id)
}

func (s *lockedStore) Close() error {
	return CloseIfSupported(s.Store)
}
