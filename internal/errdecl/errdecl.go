// Package errdecl loads error-declaration-list documents and resolves
// the three reference forms interfaces and manifests use to pull errors
// in by name.
package errdecl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/schema"
)

// Declaration is a (namespace, name, description) triple, one entry in
// an error-declaration-list file.
type Declaration struct {
	Namespace   string
	Name        string
	Description string
}

// FullName is the "namespace/name" form used when inlining errors into
// a resolved interface's error set.
func (d Declaration) FullName() string { return d.Namespace + "/" + d.Name }

var (
	// ErrUnknownError is returned when a "file#Name" or "file" reference
	// cannot be resolved against any loaded error-declaration-list.
	ErrUnknownError = errors.New("errdecl: unknown error reference")
)

// UnknownErrorRef reports a reference that failed to resolve, carrying
// the original ref string for diagnostics (ConfigError/InterfaceError
// kind UnknownError in the taxonomy).
type UnknownErrorRef struct {
	Ref string
}

func (e *UnknownErrorRef) Error() string {
	return fmt.Sprintf("errdecl: unresolved error reference %q", e.Ref)
}

func (e *UnknownErrorRef) Unwrap() error { return ErrUnknownError }

// Registry loads error-declaration-list files on demand, keyed by the
// file's base name (without extension), and resolves references.
type Registry struct {
	dir      string
	validate *schema.Validator
	files    map[string][]Declaration
}

// NewRegistry creates a registry rooted at dir, the errors directory
// from runtime settings. validate may be nil to skip schema validation
// (mirrors the --dontvalidateschema toggle).
func NewRegistry(dir string, validate *schema.Validator) *Registry {
	return &Registry{dir: dir, validate: validate, files: make(map[string][]Declaration)}
}

// load parses and caches file (without extension) on first reference.
func (r *Registry) load(file string) ([]Declaration, error) {
	if decls, ok := r.files[file]; ok {
		return decls, nil
	}
	path, err := r.resolvePath(file)
	if err != nil {
		return nil, err
	}
	doc, err := confval.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if r.validate != nil {
		if err := r.validate.ValidateDocument("error_declaration_list", doc); err != nil {
			return nil, fmt.Errorf("errdecl: %s: %w", path, err)
		}
	}
	root, err := confval.AsMapping(doc)
	if err != nil {
		return nil, fmt.Errorf("errdecl: %s: %w", path, err)
	}
	rawErrors, _ := root["errors"].([]any)
	decls := make([]Declaration, 0, len(rawErrors))
	for _, raw := range rawErrors {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		desc, _ := entry["description"].(string)
		decls = append(decls, Declaration{Namespace: file, Name: name, Description: desc})
	}
	r.files[file] = decls
	return decls, nil
}

func (r *Registry) resolvePath(file string) (string, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(r.dir, file+ext)
		if fileExists(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("errdecl: no error declaration file for %q under %s: %w", file, r.dir, ErrUnknownError)
}

// Resolve expands a single reference ("file", "file#Name", or
// "file#/errors/Name") into the Declarations it denotes.
func (r *Registry) Resolve(ref string) ([]Declaration, error) {
	file, name, hasName := splitRef(ref)
	decls, err := r.load(file)
	if err != nil {
		return nil, err
	}
	if !hasName {
		return decls, nil
	}
	for _, d := range decls {
		if d.Name == name {
			return []Declaration{d}, nil
		}
	}
	return nil, &UnknownErrorRef{Ref: ref}
}

// splitRef parses "file", "file#Name", and "file#/errors/Name" into
// (file, name, hasName).
func splitRef(ref string) (file, name string, hasName bool) {
	idx := strings.Index(ref, "#")
	if idx < 0 {
		return ref, "", false
	}
	file = ref[:idx]
	rest := ref[idx+1:]
	rest = strings.TrimPrefix(rest, "/errors/")
	return file, rest, true
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
