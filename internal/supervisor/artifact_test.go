package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectArtifactPrefersNativeExecutable(t *testing.T) {
	dir := t.TempDir()
	native := filepath.Join(dir, "PowerMeter")
	require.NoError(t, os.WriteFile(native, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(""), 0o644))

	a, err := DetectArtifact(dir, "PowerMeter")
	require.NoError(t, err)
	assert.Equal(t, KindNative, a.Kind)
	assert.Equal(t, native, a.Path)
}

func TestDetectArtifactFallsBackToScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(""), 0o644))

	a, err := DetectArtifact(dir, "PowerMeter")
	require.NoError(t, err)
	assert.Equal(t, KindScript, a.Kind)
}

func TestDetectArtifactFallsBackToInterpreted(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "module.py"), []byte(""), 0o644))

	a, err := DetectArtifact(dir, "PowerMeter")
	require.NoError(t, err)
	assert.Equal(t, KindInterpreted, a.Kind)
}

func TestDetectArtifactNoneFoundFails(t *testing.T) {
	dir := t.TempDir()
	_, err := DetectArtifact(dir, "PowerMeter")
	require.Error(t, err)
	var target *ArtifactMissing
	assert.ErrorAs(t, err, &target)
}

func TestNonExecutableFileNamedAfterTypeIsNotNative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "PowerMeter"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte(""), 0o644))

	a, err := DetectArtifact(dir, "PowerMeter")
	require.NoError(t, err)
	assert.Equal(t, KindScript, a.Kind)
}
