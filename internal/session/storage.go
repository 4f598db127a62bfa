package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"community-dapp/go-client/internal/securestore"
)

// Storage is the durable key-value store a session persists its record to.
// Keys are session identities; values are serialized records.
type Storage interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// FileStorage keeps all records in a single JSON file, optionally encrypted
// at rest with a passphrase. Every write rewrites the whole file.
type FileStorage struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func NewEncryptedFileStorage(path, passphrase string) *FileStorage {
	return &FileStorage{path: path, passphrase: passphrase}
}

func (s *FileStorage) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.store(values)
}

func (s *FileStorage) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	if s.passphrase != "" {
		raw, err = securestore.Decrypt(s.passphrase, raw)
		if err != nil {
			return nil, err
		}
	}
	values := make(map[string]string)
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func (s *FileStorage) store(values map[string]string) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if s.passphrase != "" {
		raw, err = securestore.Encrypt(s.passphrase, raw)
		if err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
