// Package manifest loads, validates, and stores module type manifests:
// the declaration of what a module type provides and requires.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/schema"
)

// Provision is one entry in a manifest's "provides" map: an
// implementation id bound to the interface it implements and an
// optional per-implementation config schema.
type Provision struct {
	ID            string
	InterfaceName string
	ConfigSchema  map[string]any // decoded JSON-schema-shaped node, or nil
}

// Requirement is one entry in a manifest's "requires" map: a bound
// dependency on some other instance's provision of the named interface.
type Requirement struct {
	ID            string
	InterfaceName string
	Min           int
	Max           int
}

// Metadata carries the author/license/description bookkeeping every
// manifest must declare.
type Metadata struct {
	Author      string
	License     string
	Description string
}

// Manifest is the declaration of what a module type provides and
// requires, plus its own module-level config schema and any capability
// requests its workers need.
type Manifest struct {
	Metadata     Metadata
	Provides     map[string]Provision
	Requires     map[string]Requirement
	ConfigSchema map[string]any
	Capabilities []string
}

// ModuleType is a named class of worker: its manifest plus where on
// disk it lives, immutable once loaded.
type ModuleType struct {
	Name     string
	Dir      string
	Manifest Manifest
}

// DumpEntry is one row of a --dumpmanifests report: every discovered
// manifest, valid or not.
type DumpEntry struct {
	Name     string
	Manifest *Manifest
	Err      error
}

// Store loads module types from the modules directory on first
// reference and caches each ModuleType by directory name; DumpAll scans
// every subdirectory.
type Store struct {
	dir       string
	validator *schema.Validator
	types     map[string]*ModuleType
}

// NewStore creates a store rooted at dir (the modules directory from
// runtime settings). validator may be nil to skip schema validation.
func NewStore(dir string, validator *schema.Validator) *Store {
	return &Store{dir: dir, validator: validator, types: make(map[string]*ModuleType)}
}

// Get looks up a module type by directory name, loading and validating
// it on first reference. The first referenced-but-invalid manifest
// aborts with an error, per spec.md §4.2's normal-boot behavior.
func (s *Store) Get(name string) (*ModuleType, error) {
	if mt, ok := s.types[name]; ok {
		return mt, nil
	}
	mt, err := s.load(name)
	if err != nil {
		return nil, err
	}
	s.types[name] = mt
	return mt, nil
}

func (s *Store) load(name string) (*ModuleType, error) {
	dir := filepath.Join(s.dir, name)
	path, err := resolveManifestPath(dir)
	if err != nil {
		return nil, err
	}
	doc, err := confval.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if s.validator != nil {
		if err := s.validator.ValidateDocument(schema.Manifest, doc); err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", path, err)
		}
	}
	m, err := decodeManifest(doc)
	if err != nil {
		return nil, fmt.Errorf("manifest: %s: %w", path, err)
	}
	return &ModuleType{Name: name, Dir: dir, Manifest: *m}, nil
}

func resolveManifestPath(dir string) (string, error) {
	for _, name := range []string{"manifest.yaml", "manifest.yml", "manifest.json"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("manifest: no manifest.yaml/.json under %s", dir)
}

// DumpAll scans every direct subdirectory of the modules root and
// attempts to load each one, reporting but not aborting on error, per
// the bulk-dump mode in spec.md §4.2 (used by --dumpmanifests).
func (s *Store) DumpAll() ([]DumpEntry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: read modules dir %s: %w", s.dir, err)
	}
	var out []DumpEntry
	var errs error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		mt, err := s.load(e.Name())
		if err != nil {
			out = append(out, DumpEntry{Name: e.Name(), Err: err})
			errs = multierr.Append(errs, err)
			continue
		}
		s.types[e.Name()] = mt
		out = append(out, DumpEntry{Name: e.Name(), Manifest: &mt.Manifest})
	}
	return out, errs
}

func decodeManifest(doc any) (*Manifest, error) {
	root, err := confval.AsMapping(doc)
	if err != nil {
		return nil, err
	}
	meta, ok := root["metadata"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("manifest: missing required metadata block")
	}
	m := &Manifest{
		Metadata: Metadata{
			Author:      stringField(meta, "author"),
			License:     stringField(meta, "license"),
			Description: stringField(meta, "description"),
		},
		Provides: map[string]Provision{},
		Requires: map[string]Requirement{},
	}

	if provides, ok := root["provides"].(map[string]any); ok {
		for id, raw := range provides {
			entry, _ := raw.(map[string]any)
			p := Provision{ID: id, InterfaceName: stringField(entry, "interface")}
			if p.InterfaceName == "" {
				return nil, fmt.Errorf("manifest: provides.%s missing interface", id)
			}
			if cs, ok := entry["config"].(map[string]any); ok {
				p.ConfigSchema = cs
			}
			m.Provides[id] = p
		}
	}

	if requires, ok := root["requires"].(map[string]any); ok {
		for id, raw := range requires {
			entry, _ := raw.(map[string]any)
			req := Requirement{
				ID:            id,
				InterfaceName: stringField(entry, "interface"),
				Min:           intFieldDefault(entry, "min_connections", 1),
				Max:           intFieldDefault(entry, "max_connections", 1),
			}
			if req.InterfaceName == "" {
				return nil, fmt.Errorf("manifest: requires.%s missing interface", id)
			}
			if req.Min < 0 || req.Max < req.Min {
				return nil, fmt.Errorf("manifest: requires.%s has invalid bounds [%d,%d]", id, req.Min, req.Max)
			}
			m.Requires[id] = req
		}
	}

	if cs, ok := root["config"].(map[string]any); ok {
		m.ConfigSchema = cs
	}

	if caps, ok := root["capabilities"].([]any); ok {
		for _, c := range caps {
			if s, ok := c.(string); ok {
				m.Capabilities = append(m.Capabilities, s)
			}
		}
	}

	return m, nil
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func intFieldDefault(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
