package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Manifest lists the artifacts of a run and the data files they may request
type Manifest struct {
	Artifacts []ArtifactEntry `yaml:"artifacts" toml:"artifacts"`
	Datafiles []DatafileEntry `yaml:"datafiles" toml:"datafiles"`
}

// ArtifactEntry points at one test-suite document
type ArtifactEntry struct {
	Path    string `yaml:"path" toml:"path"`
	AuxData bool   `yaml:"aux_data" toml:"aux_data"`
}

// DatafileEntry points at one auxiliary data file. Name defaults to the file's base name.
type DatafileEntry struct {
	Path string `yaml:"path" toml:"path"`
	Name string `yaml:"name" toml:"name"`
}

// LoadManifest reads a manifest file, choosing the decoder by extension
func LoadManifest(path string) (*Manifest, error) {
	log.Debug("Reading artifact manifest", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file: %w", err)
	}

	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parsing manifest file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, fmt.Errorf("parsing manifest file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", ext)
	}

	// Relative paths are resolved against the manifest's directory
	base := filepath.Dir(path)
	for i := range m.Artifacts {
		m.Artifacts[i].Path = resolvePath(base, m.Artifacts[i].Path)
	}
	for i := range m.Datafiles {
		m.Datafiles[i].Path = resolvePath(base, m.Datafiles[i].Path)
		if m.Datafiles[i].Name == "" {
			m.Datafiles[i].Name = filepath.Base(m.Datafiles[i].Path)
		}
	}

	return &m, nil
}

// Validate checks the manifest for missing or conflicting entries
func (m *Manifest) Validate() error {
	if len(m.Artifacts) == 0 {
		return errors.New("manifest has no artifacts")
	}

	for i, a := range m.Artifacts {
		if a.Path == "" {
			return errors.Errorf("artifact [%d] path is missing", i)
		}
	}

	seen := make(map[string]struct{}, len(m.Datafiles))
	for i, d := range m.Datafiles {
		if d.Path == "" {
			return errors.Errorf("datafile [%d] path is missing", i)
		}
		if _, ok := seen[d.Name]; ok {
			return errors.Errorf("datafile name [%s] is declared more than once", d.Name)
		}
		seen[d.Name] = struct{}{}
	}

	return nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
