package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileDataStore keeps one file per key inside a directory.
type FileDataStore struct {
	dir string
	mu  sync.RWMutex
}

var _ DataStore = (*FileDataStore)(nil)

// NewFileDataStore creates dir if needed. Environment references in dir
// are expanded.
func NewFileDataStore(dir string) (*FileDataStore, error) {
	if dir == "" {
		return nil, errors.New("keystore: directory is required")
	}
	dir = os.Expand(dir, os.Getenv)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keystore: create directory: %w", err)
	}
	return &FileDataStore{dir: dir}, nil
}

func (s *FileDataStore) Get(key string, decrypt bool) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if decrypt && len(data) > 0 {
		pt, err := open(data)
		if err != nil {
			return nil, fmt.Errorf("keystore: open %s: %w", key, err)
		}
		return pt, nil
	}
	return data, nil
}

func (s *FileDataStore) Set(key string, encrypt bool, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := value
	if encrypt {
		sealed, err := seal(value)
		if err != nil {
			return fmt.Errorf("keystore: seal %s: %w", key, err)
		}
		data = sealed
	}
	return writeFileAtomic(filepath.Join(s.dir, key), data, 0600)
}

func (s *FileDataStore) Path() string { return s.dir }

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path, so a crash never leaves a half written key.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".key-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(name)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(perm); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(name, path)
}
