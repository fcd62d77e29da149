// Package artifacts resolves the ordered list of test-suite artifacts and the
// shared auxiliary data set at run start.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// Artifact is one renderable test-suite document
type Artifact struct {
	Name       string
	Content    string
	HasAuxData bool
}

// AuxData is the content of one auxiliary data file
type AuxData struct {
	Content string
	Kind    string
}

// AuxDataSet maps logical data file names to their content
type AuxDataSet map[string]AuxData

// Store holds the artifacts of a run. It is read-only once constructed.
type Store struct {
	artifacts []Artifact
	auxData   AuxDataSet
}

// Config contains store configuration
type Config struct {
	Log          log.Logger
	ManifestFile string
}

// NewStore loads the manifest and eagerly reads every artifact and data file
func NewStore(cfg Config) (*Store, error) {
	if cfg.ManifestFile == "" {
		return nil, fmt.Errorf("manifest file is required")
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}

	m, err := LoadManifest(cfg.ManifestFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	s := &Store{
		artifacts: make([]Artifact, 0, len(m.Artifacts)),
	}

	for _, entry := range m.Artifacts {
		content, err := os.ReadFile(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read artifact %s: %w", entry.Path, err)
		}
		s.artifacts = append(s.artifacts, Artifact{
			Name:       filepath.Base(entry.Path),
			Content:    string(content),
			HasAuxData: entry.AuxData,
		})
	}

	if len(m.Datafiles) > 0 {
		s.auxData = make(AuxDataSet, len(m.Datafiles))
		for _, entry := range m.Datafiles {
			content, err := os.ReadFile(entry.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to read datafile %s: %w", entry.Path, err)
			}
			s.auxData[entry.Name] = AuxData{
				Content: string(content),
				Kind:    KindOf(entry.Name),
			}
		}
	}

	cfg.Log.Debug("Artifact store loaded", "artifacts", len(s.artifacts), "datafiles", len(s.auxData))

	return s, nil
}

// NewStaticStore builds a store from artifacts already in memory
func NewStaticStore(artifacts []Artifact, auxData AuxDataSet) *Store {
	list := make([]Artifact, len(artifacts))
	copy(list, artifacts)
	return &Store{artifacts: list, auxData: auxData}
}

// Len returns the number of artifacts
func (s *Store) Len() int {
	return len(s.artifacts)
}

// Artifact returns the artifact at index i
func (s *Store) Artifact(i int) (Artifact, bool) {
	if i < 0 || i >= len(s.artifacts) {
		return Artifact{}, false
	}
	return s.artifacts[i], true
}

// AuxData returns the shared auxiliary data set, which may be nil
func (s *Store) AuxData() AuxDataSet {
	return s.auxData
}

// KindOf derives a data file's kind from the extension of its logical name.
// A name without a dot is its own kind.
func KindOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}
