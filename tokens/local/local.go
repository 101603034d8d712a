package local

import (
	"context"
	"sync"

	"github.com/dgduncan/go-query-cache/tokens"
)

// BasicStore is an in-memory tokens.Store. Its contents do not survive the
// process.
type BasicStore struct {
	items map[string]string

	lock sync.RWMutex
}

func (bs *BasicStore) Get(_ context.Context, key string) (string, error) {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	val, found := bs.items[key]
	if !found {
		return "", tokens.ErrNoToken
	}

	return val, nil
}

func (bs *BasicStore) Set(_ context.Context, key, value string) error {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	bs.items[key] = value

	return nil
}

func (bs *BasicStore) Delete(_ context.Context, key string) error {
	bs.lock.Lock()
	defer bs.lock.Unlock()

	delete(bs.items, key)

	return nil
}

func (bs *BasicStore) Len() int {
	bs.lock.RLock()
	defer bs.lock.RUnlock()

	return len(bs.items)
}

func NewBasicStore() *BasicStore {
	return &BasicStore{
		items: make(map[string]string),
	}
}
