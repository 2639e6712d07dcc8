// Package iface resolves interface documents: following parent chains,
// merging vars/cmds/errors with conflict detection, and inlining error
// references.
package iface

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/errdecl"
	"github.com/everest-core/manager/internal/schema"
)

// Command's Arguments / Result mirror the original's Arguments/ReturnType
// vectors of type names (original_source/include/utils/types.hpp).
type Command struct {
	Arguments map[string][]string
	Result    []string
}

// Variable is a named, typed interface variable.
type Variable struct {
	Type string
}

// Interface is a fully resolved, inheritance-flattened contract: its
// commands, variables, and errors already include everything pulled in
// from its parent chain.
type Interface struct {
	Name    string
	Parent  string
	Cmds    map[string]Command
	Vars    map[string]Variable
	Errors  map[string]errdecl.Declaration
	// Source is the parent chain walked to build this interface, root
	// first. Conflict and Cycle error messages do not include it.
	Source []string
}

var (
	// ErrInterfaceConflict is the InterfaceConflict taxonomy kind: a
	// command or variable name was redefined along a parent chain.
	ErrInterfaceConflict = errors.New("iface: conflicting redefinition along parent chain")
	// ErrInterfaceCycle is the InterfaceCycle taxonomy kind.
	ErrInterfaceCycle = errors.New("iface: cyclic parent chain")
)

// Conflict carries the interface being resolved and the field and key
// that collided.
type Conflict struct {
	Name  string
	Field string
	Key   string
}

func (e *Conflict) Error() string {
	return fmt.Sprintf("iface: %s: conflicting %s entry %q along parent chain", e.Name, e.Field, e.Key)
}
func (e *Conflict) Unwrap() error { return ErrInterfaceConflict }

// Cycle carries the visit path that closed the loop.
type Cycle struct {
	Path []string
}

func (e *Cycle) Error() string {
	return fmt.Sprintf("iface: cyclic parent chain: %v", e.Path)
}
func (e *Cycle) Unwrap() error { return ErrInterfaceCycle }

// Resolver loads interface documents on demand and memoizes the
// resolved (inheritance-flattened) result by name.
type Resolver struct {
	dir       string
	validator *schema.Validator
	errors    *errdecl.Registry
	docs      map[string]map[string]any // name -> decoded, unresolved document
	resolved  map[string]*Interface
}

// NewResolver creates a resolver rooted at dir (the interfaces
// directory). validator may be nil to skip schema validation.
func NewResolver(dir string, validator *schema.Validator, errs *errdecl.Registry) *Resolver {
	return &Resolver{
		dir:       dir,
		validator: validator,
		errors:    errs,
		docs:      make(map[string]map[string]any),
		resolved:  make(map[string]*Interface),
	}
}

// Resolve resolves interface_name, following its parent chain, per
// spec.md §4.3.
func (r *Resolver) Resolve(name string) (*Interface, error) {
	return r.resolveVisiting(name, nil)
}

func (r *Resolver) resolveVisiting(name string, stack []string) (*Interface, error) {
	if cached, ok := r.resolved[name]; ok {
		return cached, nil
	}
	for _, seen := range stack {
		if seen == name {
			return nil, &Cycle{Path: append(append([]string{}, stack...), name)}
		}
	}
	doc, err := r.loadDoc(name)
	if err != nil {
		return nil, err
	}
	stack = append(stack, name)

	result := &Interface{
		Name:   name,
		Cmds:   make(map[string]Command),
		Vars:   make(map[string]Variable),
		Errors: make(map[string]errdecl.Declaration),
	}

	if parentName, ok := doc["parent"].(string); ok && parentName != "" {
		parent, err := r.resolveVisiting(parentName, stack)
		if err != nil {
			return nil, err
		}
		result.Parent = parentName
		for k, v := range parent.Cmds {
			result.Cmds[k] = v
		}
		for k, v := range parent.Vars {
			result.Vars[k] = v
		}
		for k, v := range parent.Errors {
			result.Errors[k] = v
		}
		result.Source = append(result.Source, parent.Source...)
	}
	result.Source = append(result.Source, name)

	if err := mergeCmds(result, doc, name); err != nil {
		return nil, err
	}
	if err := mergeVars(result, doc, name); err != nil {
		return nil, err
	}
	if err := r.mergeErrors(result, doc); err != nil {
		return nil, err
	}

	r.resolved[name] = result
	return result, nil
}

func mergeCmds(result *Interface, doc map[string]any, name string) error {
	cmds, _ := doc["cmds"].(map[string]any)
	for cmdName, raw := range cmds {
		if _, exists := result.Cmds[cmdName]; exists {
			return &Conflict{Name: name, Field: "cmds", Key: cmdName}
		}
		entry, _ := raw.(map[string]any)
		result.Cmds[cmdName] = Command{
			Arguments: stringSliceMap(entry["arguments"]),
			Result:    stringSlice(entry["result"]),
		}
	}
	return nil
}

func mergeVars(result *Interface, doc map[string]any, name string) error {
	vars, _ := doc["vars"].(map[string]any)
	for varName, raw := range vars {
		if _, exists := result.Vars[varName]; exists {
			return &Conflict{Name: name, Field: "vars", Key: varName}
		}
		entry, _ := raw.(map[string]any)
		typeName, _ := entry["type"].(string)
		result.Vars[varName] = Variable{Type: typeName}
	}
	return nil
}

func (r *Resolver) mergeErrors(result *Interface, doc map[string]any) error {
	refs := stringSlice(doc["errors"])
	for _, ref := range refs {
		decls, err := r.errors.Resolve(ref)
		if err != nil {
			return err
		}
		for _, d := range decls {
			// set union: duplicates collapse silently.
			result.Errors[d.FullName()] = d
		}
	}
	return nil
}

func (r *Resolver) loadDoc(name string) (map[string]any, error) {
	if doc, ok := r.docs[name]; ok {
		return doc, nil
	}
	path, err := r.resolvePath(name)
	if err != nil {
		return nil, err
	}
	raw, err := confval.LoadDocument(path)
	if err != nil {
		return nil, err
	}
	if r.validator != nil {
		if err := r.validator.ValidateDocument(schema.Interface, raw); err != nil {
			return nil, fmt.Errorf("iface: %s: %w", path, err)
		}
	}
	doc, err := confval.AsMapping(raw)
	if err != nil {
		return nil, fmt.Errorf("iface: %s: %w", path, err)
	}
	r.docs[name] = doc
	return doc, nil
}

func (r *Resolver) resolvePath(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(r.dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("iface: no interface file for %q under %s", name, r.dir)
}

// ErrorNames returns the resolved interface's error full-names sorted,
// for stable serialization.
func (i *Interface) ErrorNames() []string {
	names := make([]string, 0, len(i.Errors))
	for k := range i.Errors {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringSliceMap(v any) map[string][]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, raw := range m {
		out[k] = stringSlice(raw)
	}
	return out
}
