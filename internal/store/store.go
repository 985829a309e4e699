// Package store persists small application records in a single JSON file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Well-known keys.
const (
	KeyLastOutputDirectory = "last_output_directory"
)

// Store is a durable key-value record backed by a dedicated viper instance.
// Keys are case-insensitive.
type Store struct {
	mu   sync.Mutex
	path string
	v    *viper.Viper
}

// Open loads the store at path. A missing file yields an empty store.
func Open(path string) (*Store, error) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return nil, fmt.Errorf("store path must be a .json file: %s", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading store %s: %w", path, err)
		}
	}

	return &Store{path: path, v: v}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// UnmarshalKey decodes the value stored under key into out.
func (s *Store) UnmarshalKey(key string, out any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.UnmarshalKey(key, out)
}

// GetString returns the string stored under key.
func (s *Store) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.GetString(key)
}

// IsSet reports whether key holds a value.
func (s *Store) IsSet(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v.IsSet(key)
}

// Set replaces the value under key in memory. Call Save to persist it.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v.Set(key, value)
}

// Save writes every key to disk. The file is written next to its final
// location and renamed into place.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	ext := filepath.Ext(s.path)
	tmp := strings.TrimSuffix(s.path, ext) + ".tmp" + ext
	if err := s.v.WriteConfigAs(tmp); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// LastOutputDirectory returns the most recently used output directory.
func (s *Store) LastOutputDirectory() string {
	return s.GetString(KeyLastOutputDirectory)
}

// SetLastOutputDirectory records dir as the last used output directory and
// persists it.
func (s *Store) SetLastOutputDirectory(dir string) error {
	s.Set(KeyLastOutputDirectory, dir)
	return s.Save()
}
