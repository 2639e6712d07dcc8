package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, modulesDir, typeName, content string) {
	t.Helper()
	dir := filepath.Join(modulesDir, typeName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(content), 0o644))
}

const validManifest = `
metadata:
  author: EVerest
  license: Apache-2.0
  description: a sample module
provides:
  main:
    interface: evse_manager
requires:
  powermeter:
    interface: powermeter
    min_connections: 1
    max_connections: 1
`

func TestGetLoadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "EvseManager", validManifest)
	s := NewStore(dir, nil)

	mt, err := s.Get("EvseManager")
	require.NoError(t, err)
	assert.Equal(t, "EVerest", mt.Manifest.Metadata.Author)
	assert.Contains(t, mt.Manifest.Provides, "main")
	assert.Contains(t, mt.Manifest.Requires, "powermeter")

	again, err := s.Get("EvseManager")
	require.NoError(t, err)
	assert.Same(t, mt, again)
}

func TestGetMissingManifestFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Empty"), 0o755))
	s := NewStore(dir, nil)

	_, err := s.Get("Empty")
	assert.Error(t, err)
}

func TestDecodeManifestRejectsMissingMetadata(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "Bad", `provides: {}`)
	s := NewStore(dir, nil)

	_, err := s.Get("Bad")
	assert.Error(t, err)
}

func TestDecodeManifestRejectsInvalidRequirementBounds(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "BadBounds", `
metadata:
  author: EVerest
  license: Apache-2.0
  description: bad bounds
requires:
  powermeter:
    interface: powermeter
    min_connections: 3
    max_connections: 1
`)
	s := NewStore(dir, nil)

	_, err := s.Get("BadBounds")
	assert.Error(t, err)
}

func TestDumpAllReportsErrorsWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "Good", validManifest)
	writeManifest(t, dir, "Bad", `provides: {}`)
	s := NewStore(dir, nil)

	entries, err := s.DumpAll()
	require.Error(t, err)
	require.Len(t, entries, 2)

	byName := map[string]DumpEntry{}
	for _, e := range entries {
		byName[e.Name] = e
	}
	assert.NoError(t, byName["Good"].Err)
	assert.NotNil(t, byName["Good"].Manifest)
	assert.Error(t, byName["Bad"].Err)
}
