package iface

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/everest-core/manager/internal/errdecl"
)

func writeIface(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(content), 0o644))
}

func newTestResolver(t *testing.T, dir string) *Resolver {
	t.Helper()
	errs := errdecl.NewRegistry(dir, nil)
	return NewResolver(dir, nil, errs)
}

func TestResolveSimpleInterface(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "base", `
cmds:
  start:
    arguments: {}
    result: [boolean]
vars:
  enabled:
    type: boolean
`)
	r := newTestResolver(t, dir)

	i, err := r.Resolve("base")
	require.NoError(t, err)
	assert.Contains(t, i.Cmds, "start")
	assert.Contains(t, i.Vars, "enabled")
}

func TestResolveMergesParentChain(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "base", `
cmds:
  start:
    arguments: {}
    result: [boolean]
`)
	writeIface(t, dir, "child", `
parent: base
cmds:
  stop:
    arguments: {}
    result: [boolean]
`)
	r := newTestResolver(t, dir)

	i, err := r.Resolve("child")
	require.NoError(t, err)
	assert.Contains(t, i.Cmds, "start")
	assert.Contains(t, i.Cmds, "stop")
	assert.Equal(t, []string{"base", "child"}, i.Source)
}

func TestResolveDetectsCycle(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "a", `parent: b`)
	writeIface(t, dir, "b", `parent: a`)
	r := newTestResolver(t, dir)

	_, err := r.Resolve("a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterfaceCycle))
}

func TestResolveDetectsCmdConflict(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "base", `
cmds:
  start:
    arguments: {}
    result: [boolean]
`)
	writeIface(t, dir, "child", `
parent: base
cmds:
  start:
    arguments: {}
    result: [boolean]
`)
	r := newTestResolver(t, dir)

	_, err := r.Resolve("child")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInterfaceConflict))
}

func TestResolveInlinesErrors(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "generic", `
errors:
  - name: CommunicationFault
    description: lost contact
`)
	writeIface(t, dir, "base", `
errors: [generic]
`)
	r := newTestResolver(t, dir)

	i, err := r.Resolve("base")
	require.NoError(t, err)
	assert.Contains(t, i.ErrorNames(), "generic/CommunicationFault")
}

func TestResolveIsMemoized(t *testing.T) {
	dir := t.TempDir()
	writeIface(t, dir, "base", `
cmds:
  start:
    arguments: {}
    result: [boolean]
`)
	r := newTestResolver(t, dir)

	first, err := r.Resolve("base")
	require.NoError(t, err)
	second, err := r.Resolve("base")
	require.NoError(t, err)
	assert.Same(t, first, second)
}
