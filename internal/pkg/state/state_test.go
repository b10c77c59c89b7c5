package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "daemon_state.json")

	s := Runtime{
		StorageMode:      "tmpfs",
		MountPoint:       "/data/adb/modules_update",
		OverlayModuleIDs: []string{"zzz_module", "aaa_module"},
		MagicModuleIDs:   []string{"legacy_module"},
		ActiveMounts:     []string{"system", "vendor"},
		NukeActive:       true,
	}

	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestLoadMissingFileReturnsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "daemon_state.json")

	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, Runtime{}, loaded)
}

func TestLoadToleratesMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"storage_mode": "ext4"}`), 0o644))

	loaded, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "ext4", loaded.StorageMode)
	assert.False(t, loaded.NukeActive)
	assert.Empty(t, loaded.OverlayModuleIDs)
}
