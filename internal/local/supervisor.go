package local

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"sunbeam/internal/core"
	"sunbeam/pkg/logging"
)

// Supervisor is a file-backed process supervisor for the local substrate.
// The container's filesystem is materialized under a root directory;
// submitted layers land as YAML under .layers/ and service state is kept
// in memory. It supervises nothing real; it exists so a deployment can be
// exercised end to end without a container runtime.
type Supervisor struct {
	root string

	mu      sync.RWMutex
	layers  map[string]core.ServiceLayer
	running map[string]bool
}

// NewSupervisor creates a supervisor materializing its container under
// root.
func NewSupervisor(root string) *Supervisor {
	return &Supervisor{
		root:    root,
		layers:  make(map[string]core.ServiceLayer),
		running: make(map[string]bool),
	}
}

// EndpointReachable reports whether the container root exists.
func (s *Supervisor) EndpointReachable() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// PushFile writes a rendered file into the container root. Ownership is
// recorded in the log only; the local substrate runs unprivileged.
func (s *Supervisor) PushFile(path string, data []byte, user, group string) error {
	target := s.containerPath(path)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	logging.Debug("Supervisor", "Pushed %s (%d bytes, %s:%s)", path, len(data), user, group)
	return nil
}

// MakeDir creates a directory inside the container root.
func (s *Supervisor) MakeDir(path string, user, group string) error {
	target := s.containerPath(path)
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	logging.Debug("Supervisor", "Created %s (%s:%s)", path, user, group)
	return nil
}

// SubmitLayer records the service layer, replacing any previous layer with
// the same label, and persists it for inspection.
func (s *Supervisor) SubmitLayer(label string, layer core.ServiceLayer) error {
	s.mu.Lock()
	s.layers[label] = layer
	s.mu.Unlock()

	data, err := yaml.Marshal(layerDocument(layer))
	if err != nil {
		return fmt.Errorf("failed to serialize layer %s: %w", label, err)
	}
	target := s.containerPath(filepath.Join(".layers", label+".yaml"))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create layer directory: %w", err)
	}
	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("failed to persist layer %s: %w", label, err)
	}
	return nil
}

// StartService marks the service running, restarting it if already running.
func (s *Supervisor) StartService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		logging.Debug("Supervisor", "Restarting %s", name)
	} else {
		logging.Info("Supervisor", "Starting %s", name)
	}
	s.running[name] = true
	return nil
}

// StopService marks the service stopped.
func (s *Supervisor) StopService(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
	return nil
}

// Exec logs the command without running it. The local substrate has no
// container to execute in.
func (s *Supervisor) Exec(cmd []string) (string, error) {
	logging.Debug("Supervisor", "Exec (no-op): %s", strings.Join(cmd, " "))
	return "", nil
}

// ServiceRunning reports whether the named service has been started.
func (s *Supervisor) ServiceRunning(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running[name]
}

// containerPath maps an absolute in-container path under the root.
func (s *Supervisor) containerPath(path string) string {
	return filepath.Join(s.root, strings.TrimPrefix(path, "/"))
}

// layerDocument flattens a layer into the YAML shape pebble uses.
func layerDocument(layer core.ServiceLayer) map[string]interface{} {
	services := make(map[string]interface{}, len(layer.Services))
	for name, def := range layer.Services {
		services[name] = map[string]interface{}{
			"override": def.Override,
			"summary":  def.Summary,
			"command":  def.Command,
			"startup":  def.Startup,
		}
	}
	return map[string]interface{}{
		"summary":     layer.Summary,
		"description": layer.Description,
		"services":    services,
	}
}
