package local

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sunbeam/pkg/logging"
)

// Negotiator is a file-backed relation negotiator for the local substrate.
// The remote side of the negotiation (or an operator) lands negotiated
// values in <dir>/<relation>.yaml; access requests are written back to
// <dir>/<relation>.request.yaml where the remote side picks them up.
type Negotiator struct {
	dir      string
	relation string
}

// NewNegotiator creates a negotiator for one relation backed by the given
// data directory.
func NewNegotiator(dir, relation string) *Negotiator {
	return &Negotiator{dir: dir, relation: relation}
}

// IsReady reports whether any negotiated values have landed.
func (n *Negotiator) IsReady() bool {
	return len(n.NegotiatedValues()) > 0
}

// NegotiatedValues reads the relation's data file. A missing or unreadable
// file is an empty negotiation, not an error: the handler's readiness gate
// deals with absence.
func (n *Negotiator) NegotiatedValues() map[string]interface{} {
	path := filepath.Join(n.dir, n.relation+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.Warn("Negotiator", "Failed to read relation data %s: %v", path, err)
		}
		return map[string]interface{}{}
	}

	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		logging.Warn("Negotiator", "Malformed relation data %s: %v", path, err)
		return map[string]interface{}{}
	}
	return values
}

// RequestAccess persists the request parameters for the remote side.
// Repeated identical requests overwrite in place.
func (n *Negotiator) RequestAccess(params map[string]interface{}) error {
	if err := os.MkdirAll(n.dir, 0755); err != nil {
		return fmt.Errorf("failed to create relation data directory %s: %w", n.dir, err)
	}

	data, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to serialize request for %s: %w", n.relation, err)
	}

	path := filepath.Join(n.dir, n.relation+".request.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write request for %s: %w", n.relation, err)
	}

	logging.Info("Negotiator", "Recorded access request for relation %s", n.relation)
	return nil
}
