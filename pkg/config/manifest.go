package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the project manifest's name inside the data directory.
const ManifestFile = "project.yaml"

// RejectionOrigin sends every gate rejection back to the first gate. It is
// the only supported rejection strategy; any other manifest value is a
// configuration error.
const RejectionOrigin = "origin"

// SLAConfig carries the project-level SLA defaults in milliseconds.
type SLAConfig struct {
	DefaultMaxInProgressMs  int64 `yaml:"defaultMaxInProgressMs,omitempty"`
	ResearchMaxInProgressMs int64 `yaml:"researchMaxInProgressMs,omitempty"`
}

// Gate is one stage of a multi-stage workflow.
type Gate struct {
	ID           string `yaml:"id" validate:"required"`
	Role         string `yaml:"role" validate:"required"`
	CanReject    bool   `yaml:"canReject,omitempty"`
	When         string `yaml:"when,omitempty"`
	RequireHuman bool   `yaml:"requireHuman,omitempty"`
	Description  string `yaml:"description,omitempty"`
}

// Workflow is an ordered sequence of gates a task visits.
type Workflow struct {
	Gates             []Gate `yaml:"gates" validate:"min=1,dive"`
	RejectionStrategy string `yaml:"rejectionStrategy,omitempty"`
}

// GateByID returns the gate with the given id, or nil.
func (w *Workflow) GateByID(id string) *Gate {
	if w == nil {
		return nil
	}
	for i := range w.Gates {
		if w.Gates[i].ID == id {
			return &w.Gates[i]
		}
	}
	return nil
}

// GateIndex returns the position of the gate with the given id, or -1.
func (w *Workflow) GateIndex(id string) int {
	if w == nil {
		return -1
	}
	for i := range w.Gates {
		if w.Gates[i].ID == id {
			return i
		}
	}
	return -1
}

// Manifest describes a project: identity, SLA defaults, and an optional
// gated workflow.
type Manifest struct {
	ID       string     `yaml:"id" validate:"required"`
	Type     string     `yaml:"type,omitempty"`
	Owner    string     `yaml:"owner,omitempty"`
	SLA      *SLAConfig `yaml:"sla,omitempty"`
	Workflow *Workflow  `yaml:"workflow,omitempty"`

	// Extra preserves unknown manifest keys across round-trips.
	Extra map[string]any `yaml:",inline"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateManifest checks structural validity plus the workflow rules: the
// first gate never rejects (a rejection must loop back somewhere), gate ids
// are unique, and only the origin rejection strategy is accepted.
func ValidateManifest(m *Manifest) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("manifest validation failed: %w", err)
	}
	if m.Workflow == nil {
		return nil
	}
	w := m.Workflow
	if w.RejectionStrategy != "" && w.RejectionStrategy != RejectionOrigin {
		return fmt.Errorf("manifest validation failed: unsupported rejectionStrategy %q (only %q is supported)",
			w.RejectionStrategy, RejectionOrigin)
	}
	if len(w.Gates) > 0 && w.Gates[0].CanReject {
		return fmt.Errorf("manifest validation failed: first gate %q must not have canReject", w.Gates[0].ID)
	}
	seen := make(map[string]bool, len(w.Gates))
	for _, g := range w.Gates {
		if seen[g.ID] {
			return fmt.Errorf("manifest validation failed: duplicate gate id %q", g.ID)
		}
		seen[g.ID] = true
	}
	return nil
}

// LoadManifest reads and validates <root>/project.yaml. A missing manifest
// is not an error: the engine runs ungated with built-in SLA defaults.
func LoadManifest(root string) (*Manifest, error) {
	path := filepath.Join(root, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{ID: "default"}, nil
		}
		return nil, fmt.Errorf("failed to read project manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse project manifest: %w", err)
	}
	if err := ValidateManifest(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveManifest validates and atomically writes <root>/project.yaml.
func SaveManifest(root string, m *Manifest) error {
	if err := ValidateManifest(m); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal project manifest: %w", err)
	}
	return atomicWrite(filepath.Join(root, ManifestFile), data)
}
