package locker

import (
	"bytes"
	"fmt"
	"os"

	"github.com/hengadev/errsx"
	"gopkg.in/yaml.v3"
)

// Manifest lists secrets to register on a locker, so that the name to file
// mapping can live next to the artifacts instead of in code.
//
//	secrets:
//	  - name: db
//	    file: db.properties.encrypted
//	  - name: api-token
//	    file: api-token.encrypted
type Manifest struct {
	Secrets []ManifestEntry `yaml:"secrets"`
}

// ManifestEntry is one (name, file) pair of a Manifest.
type ManifestEntry struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

// LoadManifest reads and decodes the YAML manifest at path. Unknown fields are rejected.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest %s: %w", ErrInvalidArgument, path, err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes a YAML manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %w", ErrInvalidArgument, err)
	}
	return &m, nil
}

// Register adds every entry of the manifest to l. Entries are independent:
// a failing entry does not prevent the others from being added, and all
// failures are returned together keyed by secret name.
func (m *Manifest) Register(l Locker) error {
	var errs errsx.Map
	for i, entry := range m.Secrets {
		if err := l.Add(entry.Name, entry.File); err != nil {
			key := entry.Name
			if key == "" {
				key = fmt.Sprintf("secrets[%d]", i)
			}
			errs.Set(key, err)
		}
	}
	if errs.IsEmpty() {
		return nil
	}
	return fmt.Errorf("%w: register manifest: %w", ErrInvalidArgument, errs.AsError())
}
