// Package filestore persists credentials as a single JSON file under the
// application data folder.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/greenplanet/storefront/credentials"
	"github.com/pkg/errors"
)

const fileName = "credentials.json"

var _ credentials.Store = (*FileStore)(nil)

type FileStore struct {
	path   string
	lock   sync.RWMutex
	values map[string]string
}

// New opens (or creates) the credential file under dataFolder.
func New(dataFolder string) (*FileStore, error) {
	if err := os.MkdirAll(dataFolder, 0o700); err != nil {
		return nil, errors.Wrap(err, "[filestore.New] create data folder")
	}
	fs := &FileStore{
		path:   filepath.Join(dataFolder, fileName),
		values: make(map[string]string),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) Get(key string) (string, error) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()

	value, ok := fs.values[key]
	if !ok {
		return "", credentials.ErrKeyNotFound
	}
	return value, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.values[key] = value
	return fs.flush()
}

func (fs *FileStore) Delete(key string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if _, ok := fs.values[key]; !ok {
		return nil
	}
	delete(fs.values, key)
	return fs.flush()
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "[FileStore.load] read credential file")
	}
	if err := json.Unmarshal(data, &fs.values); err != nil {
		return errors.Wrap(err, "[FileStore.load] parse credential file")
	}
	return nil
}

// flush writes through a temp file and renames so a crash mid-write never
// truncates stored credentials. Callers hold the write lock.
func (fs *FileStore) flush() error {
	data, err := json.MarshalIndent(fs.values, "", "  ")
	if err != nil {
		return errors.Wrap(err, "[FileStore.flush] marshal values")
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return errors.Wrap(err, "[FileStore.flush] write temp file")
	}
	if err := os.Rename(tmp, fs.path); err != nil {
		return errors.Wrap(err, "[FileStore.flush] rename temp file")
	}
	return nil
}
