package local

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// StatusFile is a file-backed status sink: the current status is written to
// a YAML file where operators and tests can read it.
type StatusFile struct {
	mu   sync.Mutex
	path string
}

// statusDocument is the persisted status shape.
type statusDocument struct {
	Status  string    `yaml:"status"`
	Message string    `yaml:"message,omitempty"`
	Updated time.Time `yaml:"updated"`
}

// NewStatusFile creates a status sink writing to path.
func NewStatusFile(path string) *StatusFile {
	return &StatusFile{path: path}
}

// SetStatus persists the status. Persistence failures are logged, not
// returned: status reporting must never fail a reconciliation pass.
func (s *StatusFile) SetStatus(value core.StatusValue, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := statusDocument{
		Status:  string(value),
		Message: message,
		Updated: time.Now().UTC(),
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		logging.Error("StatusFile", err, "Failed to serialize status")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		logging.Error("StatusFile", err, "Failed to create status directory")
		return
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		logging.Error("StatusFile", err, "Failed to write status")
		return
	}
	logging.Info("StatusFile", "Status: %s%s", value, messageSuffix(message))
}

// Read returns the last persisted status, defaulting to waiting when none
// has been written yet.
func (s *StatusFile) Read() (core.StatusValue, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.StatusWaiting, "", nil
		}
		return "", "", fmt.Errorf("failed to read status file %s: %w", s.path, err)
	}

	var doc statusDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", "", fmt.Errorf("failed to parse status file %s: %w", s.path, err)
	}
	return core.StatusValue(doc.Status), doc.Message, nil
}

func messageSuffix(message string) string {
	if message == "" {
		return ""
	}
	return " (" + message + ")"
}
