package storage

import "fmt"

// NewStore builds a backend by kind. dsn is the sqlite file path or the
// postgres connection URL; the memory backend ignores it. The returned store
// serializes operations per record identifier.
func NewStore(kind, dsn string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch kind {
	case "", "memory":
		store = NewMemoryStore()
	case "sqlite":
		store, err = newSQLiteStore(dsn)
	case "postgres":
		store = NewPostgresStore(dsn)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
	if err != nil {
		return nil, err
	}
	return WithKeyLocks(store), nil
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
