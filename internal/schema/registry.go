// Package schema loads the five fixed JSON schemas the manager validates
// every document against, and exposes a reference-resolving validator
// built on github.com/santhosh-tekuri/jsonschema/v6 — the same library
// the teacher's own modules/jsonschema wraps.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/everest-core/manager/internal/confval"
)

// Fixed schema names, loaded once at startup.
const (
	Config               = "config"
	Manifest             = "manifest"
	Interface            = "interface"
	Type                 = "type"
	ErrorDeclarationList = "error_declaration_list"
)

var fixedSchemas = []string{Config, Manifest, Interface, Type, ErrorDeclarationList}

// TypeURIPattern is the regular expression governing well-formed type
// URIs, per spec.md §3/§6.
var TypeURIPattern = regexp.MustCompile(`^((?:/[A-Za-z0-9_-]+)+#/[A-Za-z0-9_-]+)$`)

// ErrResolution is returned when an external $ref is neither the draft
// meta-schema nor a type URI the TypeLoader can serve.
var ErrResolution = errors.New("schema: unresolvable external reference")

// SchemaError is the taxonomy's SchemaError kind: a document failed to
// validate against a schema, at a specific JSON pointer.
type SchemaError struct {
	Document string
	Pointer  string
	Message  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: at %s: %s", e.Document, e.Pointer, e.Message)
}

// TypeLoader is implemented by the type resolver so the registry's
// reference loader can transparently dereference "/file#/Name" URIs
// encountered while validating manifests.
type TypeLoader interface {
	LoadTypeNode(uri string) (any, error)
}

// ValidationRecord captures one validation call's duration, for the
// coarse startup-timing metric spec.md §4.1 calls observable.
type ValidationRecord struct {
	Schema   string
	Document string
	Duration time.Duration
}

// Registry loads and compiles the five fixed schemas and validates
// arbitrary documents against them.
type Registry struct {
	dir        string
	typeLoader TypeLoader
	compiler   *jsonschema.Compiler
	schemas    map[string]*jsonschema.Schema
	Records    []ValidationRecord
}

// NewRegistry creates a registry rooted at dir (the schemas directory
// from runtime settings). typeLoader may be nil until the type resolver
// is constructed; SetTypeLoader must be called before validating any
// document containing type URI references.
func NewRegistry(dir string, typeLoader TypeLoader) *Registry {
	r := &Registry{
		dir:        dir,
		typeLoader: typeLoader,
		schemas:    make(map[string]*jsonschema.Schema),
	}
	r.compiler = r.newCompiler()
	return r
}

// newCompiler builds a jsonschema.Compiler wired with the format
// checker and reference loader every schema this registry compiles
// needs, whether it's one of the five fixed schemas or an ad-hoc node
// compiled via compileNode.
func (r *Registry) newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	c.RegisterFormat(&jsonschema.Format{
		Name: "uri",
		Validate: func(v any) error {
			s, ok := v.(string)
			if !ok {
				return nil
			}
			if !TypeURIPattern.MatchString(s) {
				return fmt.Errorf("schema: %q is not a well-formed type URI", s)
			}
			return nil
		},
	})
	c.UseLoader(&refLoader{registry: r})
	return c
}

// SetTypeLoader wires the type resolver in after both have been
// constructed, breaking the otherwise-circular registry<->resolver
// dependency.
func (r *Registry) SetTypeLoader(l TypeLoader) { r.typeLoader = l }

// LoadAll compiles the five fixed schemas. It must be called once at
// startup before Validate.
func (r *Registry) LoadAll() error {
	for _, name := range fixedSchemas {
		if err := r.loadOne(name); err != nil {
			return fmt.Errorf("schema: loading %s: %w", name, err)
		}
	}
	return nil
}

func (r *Registry) loadOne(name string) error {
	path, err := r.resolvePath(name)
	if err != nil {
		return err
	}
	start := time.Now()
	doc, err := confval.LoadDocument(path)
	if err != nil {
		return err
	}
	url := "mem://schemas/" + name
	if err := r.compiler.AddResource(url, doc); err != nil {
		return fmt.Errorf("schema: add resource %s: %w", path, err)
	}
	sch, err := r.compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("schema: compile %s: %w", path, err)
	}
	r.schemas[name] = sch
	r.Records = append(r.Records, ValidationRecord{Schema: name, Document: path, Duration: time.Since(start)})
	return nil
}

// compileNode compiles a schema node that isn't one of the five fixed
// schemas (e.g. a manifest's embedded config schema) on a fresh
// compiler carrying the same format/loader wiring newCompiler gives the
// fixed schemas, so a "$ref" to a "/file#/Name" type URI inside it
// resolves the same way. A fresh compiler per call means repeated
// compilation of the same instance+block (the idempotence law in
// spec.md §8 recompiles the same document) never collides on a
// previously added resource URL.
func (r *Registry) compileNode(node map[string]any) (*jsonschema.Schema, error) {
	const url = "mem://config-block"
	c := r.newCompiler()
	if err := c.AddResource(url, node); err != nil {
		return nil, fmt.Errorf("schema: add resource %s: %w", url, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema: compile %s: %w", url, err)
	}
	return sch, nil
}

func (r *Registry) resolvePath(name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		p := filepath.Join(r.dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("schema: no schema file for %q under %s", name, r.dir)
}

// Validator is the narrow view other packages (errdecl, iface, typesys,
// manifest, config) depend on, so they don't need the whole registry.
type Validator struct {
	reg *Registry
}

// AsValidator exposes the registry's document-validation contract.
func (r *Registry) AsValidator() *Validator { return &Validator{reg: r} }

// ValidateDocument validates a decoded document tree against the named
// fixed schema, recording the call's duration.
func (v *Validator) ValidateDocument(schemaName string, doc any) error {
	return v.reg.Validate(schemaName, doc)
}

// ValidateNode compiles an ad-hoc schema node — not one of the five
// fixed schemas, e.g. a manifest's embedded per-implementation config
// schema — with the same format checker and reference loader the fixed
// schemas use, so a "$ref" to a "/file#/Name" type URI inside it
// resolves transparently, per spec.md §4.4.
func (v *Validator) ValidateNode(node map[string]any, doc any) error {
	sch, err := v.reg.compileNode(node)
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}

// Validate implements the registry's validate(document, schema) contract.
// doc must already be decoded (confval.LoadDocument / ParseDocument).
func (r *Registry) Validate(schemaName string, doc any) error {
	sch, ok := r.schemas[schemaName]
	if !ok {
		return fmt.Errorf("schema: unknown schema %q (call LoadAll first)", schemaName)
	}
	start := time.Now()
	err := sch.Validate(doc)
	r.Records = append(r.Records, ValidationRecord{Schema: schemaName, Duration: time.Since(start)})
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if errors.As(err, &verr) {
		return &SchemaError{
			Document: schemaName,
			Pointer:  "/" + strings.Join(verr.InstanceLocation, "/"),
			Message:  verr.Error(),
		}
	}
	return &SchemaError{Document: schemaName, Message: err.Error()}
}

// refLoader implements jsonschema.URLLoader, resolving the two kinds of
// external reference spec.md §4.1 allows: the built-in draft meta-schema,
// and type URIs served by the type resolver. Anything else fails with
// ErrResolution.
type refLoader struct {
	registry *Registry
}

func (l *refLoader) Load(url string) (any, error) {
	if doc, ok := draftMetaSchemas[url]; ok {
		var v any
		if err := jsonUnmarshal([]byte(doc), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	if path, ok := stripTypeScheme(url); ok {
		if l.registry.typeLoader == nil {
			return nil, fmt.Errorf("schema: type URI %q referenced before type resolver was wired: %w", url, ErrResolution)
		}
		return l.registry.typeLoader.LoadTypeNode(path)
	}
	return nil, fmt.Errorf("schema: %w: %s", ErrResolution, url)
}

// stripTypeScheme recognizes a "typeuri://" scheme the compiler dereferences
// when a "uri"-format string field embeds a "/file#/Name" reference as a
// $ref (used by manifest/interface schemas to point config-schema nodes at
// shared type definitions).
func stripTypeScheme(url string) (string, bool) {
	const prefix = "typeuri://"
	if len(url) > len(prefix) && url[:len(prefix)] == prefix {
		return url[len(prefix):], true
	}
	return "", false
}
