package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"sunbeam/pkg/logging"
)

const (
	// DefaultTemplateDir is used when the deployment declares no
	// template directory.
	DefaultTemplateDir = "templates"

	// DefaultStateDir backs the persistent store when unset.
	DefaultStateDir = "state"
)

// Load reads and validates a deployment declaration from a YAML file.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("deployment file %s not found", path)
		}
		return nil, fmt.Errorf("failed to read deployment file %s: %w", path, err)
	}

	var deployment Deployment
	if err := yaml.Unmarshal(data, &deployment); err != nil {
		return nil, fmt.Errorf("failed to parse deployment file %s: %w", path, err)
	}

	applyDefaults(&deployment, filepath.Dir(path))

	if err := Validate(&deployment); err != nil {
		return nil, err
	}

	logging.Info("ConfigLoader", "Loaded deployment %s (%s) from %s",
		deployment.Service, deployment.Kind, path)
	return &deployment, nil
}

// applyDefaults fills unset fields. Relative template and state directories
// are resolved against the deployment file's directory.
func applyDefaults(d *Deployment, baseDir string) {
	if d.Kind == "" {
		d.Kind = KindBase
	}
	if len(d.Containers) == 0 && d.Service != "" {
		d.Containers = []string{d.Service}
	}
	if d.TemplateDir == "" {
		d.TemplateDir = DefaultTemplateDir
	}
	if d.StateDir == "" {
		d.StateDir = DefaultStateDir
	}
	if !filepath.IsAbs(d.TemplateDir) {
		d.TemplateDir = filepath.Join(baseDir, d.TemplateDir)
	}
	if !filepath.IsAbs(d.StateDir) {
		d.StateDir = filepath.Join(baseDir, d.StateDir)
	}
	if d.Options == nil {
		d.Options = Options{}
	}
}

// Validate checks a deployment declaration for the mistakes that would
// otherwise only surface mid-reconciliation.
func Validate(d *Deployment) error {
	if d.Service == "" {
		return fmt.Errorf("deployment service name is required")
	}
	switch d.Kind {
	case KindBase, KindAPI:
	default:
		return fmt.Errorf("deployment kind %q is not valid (want %q or %q)", d.Kind, KindBase, KindAPI)
	}
	if d.Kind == KindAPI && d.IngressPort == 0 {
		return fmt.Errorf("API deployment %s requires an ingressPort", d.Service)
	}
	seen := make(map[string]bool)
	for _, r := range d.Relations {
		if r == "" {
			return fmt.Errorf("deployment %s declares an empty relation name", d.Service)
		}
		if seen[r] {
			return fmt.Errorf("deployment %s declares relation %s twice", d.Service, r)
		}
		seen[r] = true
	}
	return nil
}
