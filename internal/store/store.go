package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sunbeam/pkg/logging"
)

// Store is a YAML file-backed key/value store. Keys are namespaced with a
// "/" separator; each namespace is persisted as one YAML file under the
// store directory, so `engine/bootstrapped` lands in `engine.yaml`.
//
// The store is the only state the engine mutates across reconciliation
// passes. Reads and writes are serialized with a mutex; external
// serialization of passes does the rest.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// DefaultNamespace receives keys carrying no namespace separator.
const DefaultNamespace = "state"

// New creates a store rooted at dir. The directory is created lazily on
// first write.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Get returns the value for key and whether it was present.
func (s *Store) Get(key string) (string, bool, error) {
	namespace, name := splitKey(key)

	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.readNamespace(namespace)
	if err != nil {
		return "", false, err
	}
	value, ok := values[name]
	return value, ok, nil
}

// Set stores the value for key, creating the namespace file if needed.
func (s *Store) Set(key, value string) error {
	namespace, name := splitKey(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.readNamespace(namespace)
	if err != nil {
		return err
	}
	values[name] = value

	if err := s.writeNamespace(namespace, values); err != nil {
		return err
	}
	logging.Debug("Store", "Persisted %s/%s", namespace, name)
	return nil
}

// GetAll returns a copy of every key/value pair in the given namespace.
func (s *Store) GetAll(namespace string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.readNamespace(namespace)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

// readNamespace loads the namespace file, returning an empty map when the
// file does not exist yet.
func (s *Store) readNamespace(namespace string) (map[string]string, error) {
	path := s.namespacePath(namespace)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read store file %s: %w", path, err)
	}

	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", path, err)
	}
	return values, nil
}

// writeNamespace persists the namespace file, creating the store directory
// on first use.
func (s *Store) writeNamespace(namespace string, values map[string]string) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory %s: %w", s.dir, err)
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to serialize namespace %s: %w", namespace, err)
	}

	path := s.namespacePath(namespace)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file %s: %w", path, err)
	}
	return nil
}

func (s *Store) namespacePath(namespace string) string {
	return filepath.Join(s.dir, sanitizeFilename(namespace)+".yaml")
}

// splitKey separates the namespace from the value name. Keys without a
// separator fall into the default namespace.
func splitKey(key string) (string, string) {
	if i := strings.Index(key, "/"); i >= 0 {
		namespace, name := key[:i], key[i+1:]
		if namespace == "" {
			namespace = DefaultNamespace
		}
		return namespace, name
	}
	return DefaultNamespace, key
}

// sanitizeFilename keeps namespace files safe for the filesystem.
func sanitizeFilename(name string) string {
	sanitized := name
	for _, c := range []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", "."} {
		sanitized = strings.ReplaceAll(sanitized, c, "_")
	}
	sanitized = strings.ReplaceAll(sanitized, " ", "_")
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unnamed"
	}
	return sanitized
}
