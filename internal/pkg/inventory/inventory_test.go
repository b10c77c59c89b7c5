package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctv18/hymo/pkg/config"
)

func writeModule(t *testing.T, dir, id string, files map[string]string) {
	t.Helper()
	modDir := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	for name, content := range files {
		path := filepath.Join(modDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestScanSkipsReservedAndMarkedModules(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "hymo", nil)
	writeModule(t, dir, "lost+found", nil)
	writeModule(t, dir, ".git", nil)
	writeModule(t, dir, "disabled_mod", map[string]string{"disable": ""})
	writeModule(t, dir, "removed_mod", map[string]string{"remove": ""})
	writeModule(t, dir, "skip_mod", map[string]string{"skipmount": ""})
	writeModule(t, dir, "good_mod", map[string]string{
		"module.prop": "name=Good\nversion=1.0\nauthor=tester\ndescription=a good module\n",
	})

	cfg := config.Default()
	cfg.ModuleDir = dir
	cfg.ModuleModes = map[string]config.Mode{}

	modules, err := Scan(cfg)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "good_mod", modules[0].ID)
	assert.Equal(t, "Good", modules[0].Name)
	assert.Equal(t, config.ModeAuto, modules[0].Mode)
}

func TestScanSortsDescendingByID(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "mA", nil)
	writeModule(t, dir, "mB", nil)
	writeModule(t, dir, "mC", nil)

	cfg := config.Default()
	cfg.ModuleDir = dir
	cfg.ModuleModes = map[string]config.Mode{}

	modules, err := Scan(cfg)
	require.NoError(t, err)
	require.Len(t, modules, 3)
	assert.Equal(t, []string{"mC", "mB", "mA"}, []string{modules[0].ID, modules[1].ID, modules[2].ID})
}

func TestScanAppliesConfiguredMode(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "m1", nil)

	cfg := config.Default()
	cfg.ModuleDir = dir
	cfg.ModuleModes = map[string]config.Mode{"m1": config.ModeMagic}

	modules, err := Scan(cfg)
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, config.ModeMagic, modules[0].Mode)
}

func TestScanMissingModuleDirReturnsEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.ModuleDir = filepath.Join(t.TempDir(), "nonexistent")

	modules, err := Scan(cfg)
	require.NoError(t, err)
	assert.Empty(t, modules)
}
