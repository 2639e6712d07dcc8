package typesys

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeType(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestResolveSplitsFileAndName(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "power_meter.yaml", `
PowerMeterValue:
  type: object
  properties:
    energy_Wh:
      type: number
`)
	r := NewResolver(dir, nil)

	typ, err := r.Resolve("/power_meter#/PowerMeterValue")
	require.NoError(t, err)
	assert.Equal(t, "PowerMeterValue", typ.Name)
	assert.Equal(t, "/power_meter", typ.File)
}

func TestResolveMalformedURI(t *testing.T) {
	r := NewResolver(t.TempDir(), nil)
	_, err := r.Resolve("not-a-uri")
	assert.Error(t, err)
}

func TestResolveUnknownNameInFile(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "power_meter.yaml", `
PowerMeterValue:
  type: object
`)
	r := NewResolver(dir, nil)

	_, err := r.Resolve("/power_meter#/DoesNotExist")
	assert.Error(t, err)
}

func TestLoadTypeNodeImplementsSchemaTypeLoader(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "power_meter.yaml", `
PowerMeterValue:
  type: object
`)
	r := NewResolver(dir, nil)

	node, err := r.LoadTypeNode("/power_meter#/PowerMeterValue")
	require.NoError(t, err)
	assert.NotNil(t, node)
}

func TestResolveIsMemoizedPerURI(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "power_meter.yaml", `
PowerMeterValue:
  type: object
`)
	r := NewResolver(dir, nil)

	first, err := r.Resolve("/power_meter#/PowerMeterValue")
	require.NoError(t, err)
	second, err := r.Resolve("/power_meter#/PowerMeterValue")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
