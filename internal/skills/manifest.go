// ABOUTME: Skill bundle manifest loading and structural validation
// ABOUTME: YAML manifest with a name, version, and the files the bundle ships

package skills

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the expected manifest filename inside a bundle directory.
const ManifestFile = "skill.yaml"

// DocFile is the bundle's primary document.
const DocFile = "skill.md"

// Manifest describes a publishable skill bundle.
type Manifest struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	License     string   `yaml:"license,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Files       []string `yaml:"files,omitempty"`
}

var (
	namePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
)

// LoadManifest reads and parses a bundle manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// Validate checks the manifest's structural requirements. Content-level
// rules are the registry's concern.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("manifest: name %q must be lowercase alphanumeric with . _ - separators", m.Name)
	}
	if m.Version == "" {
		return fmt.Errorf("manifest: version is required")
	}
	if !versionPattern.MatchString(m.Version) {
		return fmt.Errorf("manifest: version %q must be MAJOR.MINOR.PATCH", m.Version)
	}
	if m.Description == "" {
		return fmt.Errorf("manifest: description is required")
	}
	return nil
}
