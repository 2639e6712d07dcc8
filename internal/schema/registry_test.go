package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleObjectSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": { "type": "string" }
  },
  "required": ["name"]
}`

func writeFixedSchemas(t *testing.T, dir string) {
	t.Helper()
	for _, name := range fixedSchemas {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), []byte(simpleObjectSchema), 0o644))
	}
}

func TestLoadAllCompilesFixedSchemas(t *testing.T) {
	dir := t.TempDir()
	writeFixedSchemas(t, dir)
	reg := NewRegistry(dir, nil)

	require.NoError(t, reg.LoadAll())
	assert.Len(t, reg.Records, len(fixedSchemas))
}

func TestValidateDocumentSuccess(t *testing.T) {
	dir := t.TempDir()
	writeFixedSchemas(t, dir)
	reg := NewRegistry(dir, nil)
	require.NoError(t, reg.LoadAll())

	err := reg.Validate(Config, map[string]any{"name": "evse_1"})
	assert.NoError(t, err)
}

func TestValidateDocumentFailureIsSchemaError(t *testing.T) {
	dir := t.TempDir()
	writeFixedSchemas(t, dir)
	reg := NewRegistry(dir, nil)
	require.NoError(t, reg.LoadAll())

	err := reg.Validate(Config, map[string]any{})
	require.Error(t, err)
	var target *SchemaError
	assert.True(t, errors.As(err, &target))
}

func TestValidateUnknownSchemaNameFails(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, nil)
	err := reg.Validate("nonexistent", map[string]any{})
	assert.Error(t, err)
}

func TestTypeURIPatternMatchesWellFormedURIs(t *testing.T) {
	assert.True(t, TypeURIPattern.MatchString("/power_meter#/PowerMeterValue"))
	assert.False(t, TypeURIPattern.MatchString("power_meter#/PowerMeterValue"))
	assert.False(t, TypeURIPattern.MatchString("/power_meter"))
}

type stubTypeLoader struct {
	node any
	err  error
}

func (s *stubTypeLoader) LoadTypeNode(uri string) (any, error) { return s.node, s.err }

func TestAsValidatorDelegatesToRegistry(t *testing.T) {
	dir := t.TempDir()
	writeFixedSchemas(t, dir)
	reg := NewRegistry(dir, &stubTypeLoader{})
	require.NoError(t, reg.LoadAll())

	v := reg.AsValidator()
	assert.NoError(t, v.ValidateDocument(Manifest, map[string]any{"name": "x"}))
}

func TestValidateNodeValidatesArbitraryEmbeddedSchema(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, nil)
	v := reg.AsValidator()

	node := map[string]any{
		"type":       "object",
		"properties": map[string]any{"max_current": map[string]any{"type": "number"}},
		"required":   []any{"max_current"},
	}

	assert.NoError(t, v.ValidateNode(node, map[string]any{"max_current": 16.0}))
	assert.Error(t, v.ValidateNode(node, map[string]any{}))
}

func TestValidateNodeRepeatCallsDoNotCollideOnResourceURL(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry(dir, nil)
	v := reg.AsValidator()

	node := map[string]any{"type": "object"}
	for i := 0; i < 3; i++ {
		require.NoError(t, v.ValidateNode(node, map[string]any{}))
	}
}
