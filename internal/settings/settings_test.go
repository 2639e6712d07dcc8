package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsDerivesPrefixedLayout(t *testing.T) {
	s := Defaults("/usr")
	assert.Equal(t, "/usr/lib/everest/modules", s.Dirs.Modules)
	assert.Equal(t, "/usr/share/everest/interfaces", s.Dirs.Interfaces)
	assert.Equal(t, "/usr/etc/everest/config.yaml", s.ConfigFile)
	assert.True(t, s.ValidateSchema)
	assert.Equal(t, "everest/", s.EverestTopicPrefix)
}

func TestLoadWithoutUserOverrideUsesDefaults(t *testing.T) {
	s, err := Load("/usr", "", CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "/usr", s.Prefix)
}

func TestLoadAppliesUserOverrideFile(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("run_as_user: everest\n"), 0o644))

	s, err := Load("/usr", overridePath, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "everest", s.RunAsUser)
}

func TestCLIOverridesWinOverDefaults(t *testing.T) {
	s, err := Load("/usr", "", CLIOverrides{
		Prefix:       "/opt/everest",
		DontValidate: true,
		Standalone:   []string{"pm_1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "/opt/everest", s.Prefix)
	assert.False(t, s.ValidateSchema)
	assert.Equal(t, []string{"pm_1"}, s.Standalone)
}

func TestCLIOverridesWinOverUserFile(t *testing.T) {
	dir := t.TempDir()
	overridePath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(overridePath, []byte("prefix: /from-file\n"), 0o644))

	s, err := Load("/usr", overridePath, CLIOverrides{Prefix: "/from-cli"})
	require.NoError(t, err)
	assert.Equal(t, "/from-cli", s.Prefix)
}
