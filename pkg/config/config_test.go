package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "/data/adb/modules", cfg.ModuleDir)
	assert.Equal(t, "KSU", cfg.MountSource)
	assert.True(t, cfg.EnableNuke)
	assert.Empty(t, cfg.ModuleModes)
}

func TestLoadParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "moduledir = \"/custom/modules\"\nverbose = true\nforce_ext4 = true\npartitions = [\"my_product\"]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/custom/modules", cfg.ModuleDir)
	assert.True(t, cfg.Verbose)
	assert.True(t, cfg.ForceExt4)
	assert.Equal(t, []string{"my_product"}, cfg.Partitions)
}

func TestMergeOnlyOverridesSetFields(t *testing.T) {
	cfg := Default()
	cfg.Merge(CLIOverrides{ModuleDir: "/other"})
	assert.Equal(t, "/other", cfg.ModuleDir)
	assert.Equal(t, "KSU", cfg.MountSource, "unset override fields must not clobber defaults")
}

func TestAllPartitionsDropsDuplicateBuiltins(t *testing.T) {
	cfg := Default()
	cfg.Partitions = []string{"system", "my_product"}
	all := cfg.AllPartitions()
	assert.Equal(t, append(append([]string{}, BuiltinPartitions...), "my_product"), all)
}

func TestLoadModuleModesLowercasesAndSkipsComments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "module_mode.conf")
	content := "# comment\n\nfoo = MAGIC\nbar=Overlay\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	modes, err := LoadModuleModes(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMagic, modes["foo"])
	assert.Equal(t, ModeOverlay, modes["bar"])
	assert.Len(t, modes, 2)
}

func TestLoadModuleModesMissingFileIsEmpty(t *testing.T) {
	modes, err := LoadModuleModes(filepath.Join(t.TempDir(), "nope.conf"))
	require.NoError(t, err)
	assert.Empty(t, modes)
}
