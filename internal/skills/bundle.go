// ABOUTME: Skill bundle assembly and publishing
// ABOUTME: Loads a bundle directory, validates it, and submits it to the registry

package skills

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hol-org/registry-cli/internal/broker"
)

// Bundle is a loaded skill bundle ready for validation and publishing.
type Bundle struct {
	Dir      string
	Manifest *Manifest
	Doc      []byte
	Files    []broker.SkillFile
}

// LoadBundle reads a bundle directory: the manifest, the skill document,
// and any extra files the manifest lists. Extra file paths must stay inside
// the bundle directory.
func LoadBundle(dir string) (*Bundle, error) {
	manifestRaw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var manifest Manifest
	if err := yaml.Unmarshal(manifestRaw, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	doc, err := os.ReadFile(filepath.Join(dir, DocFile))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", DocFile, err)
	}

	bundle := &Bundle{Dir: dir, Manifest: &manifest, Doc: doc}
	bundle.Files = append(bundle.Files,
		broker.SkillFile{Path: ManifestFile, Content: encode(manifestRaw)},
		broker.SkillFile{Path: DocFile, Content: encode(doc)},
	)

	for _, rel := range manifest.Files {
		if filepath.IsAbs(rel) || strings.Contains(rel, "..") {
			return nil, fmt.Errorf("manifest file path %q escapes the bundle directory", rel)
		}
		data, err := os.ReadFile(filepath.Join(dir, rel))
		if err != nil {
			return nil, fmt.Errorf("reading bundle file %s: %w", rel, err)
		}
		bundle.Files = append(bundle.Files, broker.SkillFile{Path: rel, Content: encode(data)})
	}
	return bundle, nil
}

// Validate runs the manifest checks and the document lint.
func (b *Bundle) Validate() error {
	if err := b.Manifest.Validate(); err != nil {
		return err
	}
	return LintDoc(b.Doc)
}

// PublisherAPI is the broker surface publishing consumes.
type PublisherAPI interface {
	PublishSkill(ctx context.Context, req broker.PublishSkillRequest) (*broker.PublishSkillResult, error)
}

// Publish validates the bundle and submits it under the publishing agent.
func Publish(ctx context.Context, api PublisherAPI, uaid string, b *Bundle) (*broker.PublishSkillResult, error) {
	if uaid == "" {
		return nil, fmt.Errorf("a publishing agent UAID is required")
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}

	res, err := api.PublishSkill(ctx, broker.PublishSkillRequest{
		UAID:     uaid,
		Manifest: b.Manifest,
		Files:    b.Files,
	})
	if err != nil {
		return nil, fmt.Errorf("publishing skill %s: %w", b.Manifest.Name, err)
	}
	slog.Default().Info("skill published",
		"component", "skills",
		"skill", b.Manifest.Name,
		"version", b.Manifest.Version,
		"skill_id", res.SkillID,
	)
	return res, nil
}

func encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
