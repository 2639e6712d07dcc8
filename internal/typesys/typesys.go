// Package typesys resolves /file#/Name type URIs against type files on
// disk, and doubles as the schema registry's reference loader for the
// same URIs encountered inside manifest/interface/config documents.
package typesys

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/schema"
)

// Type is a single named schema node addressable as /file#/Name.
type Type struct {
	URI  string
	File string
	Name string
	Node any // the decoded JSON-schema-shaped node
}

// Resolver parses each referenced type file once and exposes individual
// types by /file#/Name.
type Resolver struct {
	dir       string
	validator *schema.Validator
	files     map[string]any // file -> decoded document root
	types     map[string]*Type
}

// NewResolver creates a resolver rooted at dir (the types directory from
// runtime settings). validator may be nil to skip schema validation.
func NewResolver(dir string, validator *schema.Validator) *Resolver {
	return &Resolver{
		dir:       dir,
		validator: validator,
		files:     make(map[string]any),
		types:     make(map[string]*Type),
	}
}

// Resolve returns the Type denoted by uri ("/file#/Name"), loading and
// validating file on first reference.
func (r *Resolver) Resolve(uri string) (*Type, error) {
	if t, ok := r.types[uri]; ok {
		return t, nil
	}
	if !schema.TypeURIPattern.MatchString(uri) {
		return nil, fmt.Errorf("typesys: malformed type URI %q", uri)
	}
	file, name, err := splitURI(uri)
	if err != nil {
		return nil, err
	}
	root, err := r.loadFile(file)
	if err != nil {
		return nil, err
	}
	mapping, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("typesys: %s: root is not a mapping", file)
	}
	node, ok := mapping[name]
	if !ok {
		return nil, fmt.Errorf("typesys: %s: no type named %q", file, name)
	}
	t := &Type{URI: uri, File: file, Name: name, Node: node}
	r.types[uri] = t
	return t, nil
}

func (r *Resolver) loadFile(file string) (any, error) {
	if doc, ok := r.files[file]; ok {
		return doc, nil
	}
	path, err := r.resolvePath(file)
	if err != nil {
		return nil, err
	}
	doc, err := confval.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if r.validator != nil {
		if err := r.validator.ValidateDocument(schema.Type, doc); err != nil {
			return nil, fmt.Errorf("typesys: %s: %w", path, err)
		}
	}
	r.files[file] = doc
	return doc, nil
}

func (r *Resolver) resolvePath(file string) (string, error) {
	rel := strings.TrimPrefix(file, "/")
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(r.dir, rel+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("typesys: no type file for %q under %s", file, r.dir)
}

// All returns a snapshot of every type resolved so far, keyed by URI.
// Compiled.Types uses this after a compile pass finishes to surface the
// types dereferenced while validating that pass's config/manifest
// documents, per spec.md §4.5 step 6.
func (r *Resolver) All() map[string]*Type {
	out := make(map[string]*Type, len(r.types))
	for uri, t := range r.types {
		out[uri] = t
	}
	return out
}

// LoadTypeNode implements schema.TypeLoader, letting the schema registry
// dereference a type URI embedded in another document's $ref chain.
func (r *Resolver) LoadTypeNode(uri string) (any, error) {
	t, err := r.Resolve(uri)
	if err != nil {
		return nil, err
	}
	return t.Node, nil
}

// splitURI splits "/file#/Name" into ("/file", "Name").
func splitURI(uri string) (file, name string, err error) {
	idx := strings.Index(uri, "#/")
	if idx < 0 {
		return "", "", fmt.Errorf("typesys: malformed type URI %q", uri)
	}
	return uri[:idx], uri[idx+2:], nil
}
