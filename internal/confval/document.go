package confval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadDocument reads path and decodes it into a dynamic tree (nil,
// map[string]any, []any, or a scalar), content-sniffed by extension:
// ".json" is parsed as JSON, everything else as YAML. This is the single
// polymorphic-document entry point every loader (manifest, interface,
// type, error list, deployment config) goes through, per spec.md §9's
// "polymorphic document" design note.
func LoadDocument(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("confval: read %s: %w", path, err)
	}
	return ParseDocument(path, raw)
}

// ParseDocument decodes raw bytes using the content-sniffing rule
// described on LoadDocument. name is used only to pick JSON vs YAML and
// for error messages.
func ParseDocument(name string, raw []byte) (any, error) {
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return decodeJSON(name, raw)
	}
	return decodeYAML(name, raw)
}

func decodeJSON(name string, raw []byte) (any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("confval: parse json %s: %w", name, err)
	}
	return normalize(v), nil
}

func decodeYAML(name string, raw []byte) (any, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var v any
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("confval: parse yaml %s: %w", name, err)
	}
	return normalize(v), nil
}

// normalize walks a decoded tree and rewrites map[any]any nodes (which
// yaml.v3 can still produce for non-string keys) and nested slices into
// the map[string]any / []any shape the rest of the pipeline (and the
// jsonschema validator) expects.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprintf("%v", k)] = normalize(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	default:
		return t
	}
}

// AsMapping narrows a decoded document root into a mapping, treating a
// nil/empty-mapping document as an empty mapping (the "no modules" edge
// case) and rejecting bare scalars.
func AsMapping(doc any) (map[string]any, error) {
	switch t := doc.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	default:
		return nil, fmt.Errorf("confval: document root must be a mapping, got %T", doc)
	}
}
