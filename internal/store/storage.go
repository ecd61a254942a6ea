package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Storage is the local key-value persistence primitive shared by the draft
// and identity stores. Its contract deliberately differs from the usual Go
// error style: Set and Get never return an error to the caller. A storage
// failure (read-only disk, deleted state dir) is reported as a boolean so
// losing local persistence degrades gracefully instead of breaking the
// interview. Clear is idempotent. Writes are last-write-wins per key.
type Storage interface {
	Set(key, value string) bool
	Get(key string) (string, bool)
	Clear(key string)
	Keys(prefix string) []string
}

// FileStorage keeps one file per key under a state directory.
type FileStorage struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

func NewFileStorage(dir string, logger *zap.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	return &FileStorage{
		dir:    dir,
		logger: logger,
	}, nil
}

func (s *FileStorage) Set(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		s.logger.Warn("local storage write failed", zap.String("key", key), zap.Error(err))
		return false
	}

	if err := os.Rename(tmp, path); err != nil {
		s.logger.Warn("local storage rename failed", zap.String("key", key), zap.Error(err))
		os.Remove(tmp)
		return false
	}

	return true
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("local storage read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}

	return string(data), true
}

func (s *FileStorage) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("local storage remove failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *FileStorage) Keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("local storage list failed", zap.Error(err))
		return nil
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".tmp") {
			continue
		}
		key := decodeKey(name)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	return keys
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, encodeKey(key))
}

// Keys may contain characters unsafe in file names (question ids are opaque).
func encodeKey(key string) string {
	r := strings.NewReplacer("/", "%2F", "\\", "%5C", ":", "%3A")
	return r.Replace(key) + ".kv"
}

func decodeKey(name string) string {
	name = strings.TrimSuffix(name, ".kv")
	r := strings.NewReplacer("%2F", "/", "%5C", "\\", "%3A", ":")
	return r.Replace(name)
}
