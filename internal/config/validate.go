package config

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/everest-core/manager/internal/confval"
	"github.com/everest-core/manager/internal/schema"
)

// validateConfigBlock narrows a decoded config block into a
// confval.Dict, optionally validating it against a manifest-declared
// JSON-schema node first. block names which part of the instance this
// is ("module" or an implementation id) for error messages. validator
// is nil in tests that exercise the compiler without schema validation
// wired; validateAgainstNode falls back to a bare compiler in that
// case, which cannot dereference "/file#/Name" type URI $refs.
func validateConfigBlock(instance, block string, raw map[string]any, schemaNode map[string]any, validator *schema.Validator) (confval.Dict, error) {
	if schemaNode != nil {
		if err := validateAgainstNode(validator, schemaNode, raw); err != nil {
			return nil, translateSchemaErr(instance, block, err)
		}
	}
	dict, err := confval.DictFromAny(raw)
	if err != nil {
		return nil, &InvalidConfigEntry{Instance: instance, Block: block, Key: "*", Reason: err.Error()}
	}
	return dict, nil
}

// validateAgainstNode validates raw against a manifest-embedded
// config-schema node. When validator is non-nil, the node is compiled
// through schema.Validator.ValidateNode, which shares the registry's
// format checker and reference loader — so a "$ref" to a type URI
// inside the node resolves the same way it does for the five fixed
// schemas, per spec.md §4.4. With no validator wired, it falls back to
// a bare jsonschema.Compiler with no reference loader.
func validateAgainstNode(validator *schema.Validator, node map[string]any, raw map[string]any) error {
	var instance any = raw
	if raw == nil {
		instance = map[string]any{}
	}
	if validator != nil {
		return validator.ValidateNode(node, instance)
	}
	compiler := jsonschema.NewCompiler()
	const url = "mem://config-block"
	if err := compiler.AddResource(url, node); err != nil {
		return fmt.Errorf("config: compiling embedded config schema: %w", err)
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("config: compiling embedded config schema: %w", err)
	}
	return sch.Validate(instance)
}

// translateSchemaErr maps a jsonschema validation failure onto the
// taxonomy's MissingConfigEntry/InvalidConfigEntry split: a "required"
// keyword failure is missing, everything else is invalid. The jsonschema
// error tree nests causes arbitrarily deep; matching on the rendered
// message is simpler than walking ErrorKind variants and good enough
// for the taxonomy split this layer needs.
func translateSchemaErr(instance, block string, err error) error {
	msg := err.Error()
	if key, ok := extractRequiredKey(msg); ok {
		return &MissingConfigEntry{Instance: instance, Block: block, Key: key}
	}
	return &InvalidConfigEntry{Instance: instance, Block: block, Key: "*", Reason: msg}
}

// extractRequiredKey looks for jsonschema/v6's "missing property" /
// "missing properties" (or "required") phrasing in a rendered validation
// error and pulls out the first quoted property name that follows it.
// The search starts at the phrase because the rendered message opens
// with the quoted schema URL.
func extractRequiredKey(msg string) (string, bool) {
	idx := strings.Index(msg, "missing propert")
	if idx < 0 {
		idx = strings.Index(msg, "required")
	}
	if idx < 0 {
		return "", false
	}
	rest := msg[idx:]
	start := strings.IndexAny(rest, `'"`)
	if start < 0 {
		return "", false
	}
	quote := rest[start]
	end := strings.IndexByte(rest[start+1:], quote)
	if end < 0 {
		return "", false
	}
	return rest[start+1 : start+1+end], true
}
