package storefakes

import (
	"sync"

	"github.com/greenplanet/storefront/credentials"
)

var _ credentials.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credentials.Store for tests. It records write
// counts per key so tests can assert how many persistence side effects an
// operation produced.
type FakeStore struct {
	lock   sync.RWMutex
	values map[string]string
	writes map[string]int
	SetErr error // when set, Set returns this error
}

func NewFakeStore() *FakeStore {
	return &FakeStore{
		values: make(map[string]string),
		writes: make(map[string]int),
	}
}

func (fs *FakeStore) Get(key string) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	value, ok := fs.values[key]
	if !ok {
		return "", credentials.ErrKeyNotFound
	}
	return value, nil
}

func (fs *FakeStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.SetErr != nil {
		return fs.SetErr
	}
	fs.values[key] = value
	fs.writes[key]++
	return nil
}

func (fs *FakeStore) Delete(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	delete(fs.values, key)
	return nil
}

// Writes reports how many times Set succeeded for key.
func (fs *FakeStore) Writes(key string) int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	return fs.writes[key]
}

// Len reports how many keys currently hold a value.
func (fs *FakeStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	return len(fs.values)
}
