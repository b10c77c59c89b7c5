package moduledesc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescribeSuccessWithoutNuke(t *testing.T) {
	s := Summary{Success: true, StorageMode: "tmpfs", OverlayCount: 2, MagicCount: 1, HymoFSCount: 3}
	assert.Equal(t, "\U0001F60B Hymo | Storage: tmpfs | Modules: 2 Overlay + 1 Magic + 3 HymoFS", s.describe())
}

func TestDescribeFailureWithNuke(t *testing.T) {
	s := Summary{Success: false, StorageMode: "ext4", NukeActive: true}
	assert.Equal(t, "\U0001F62D Hymo \U0001F43E | Storage: ext4 | Modules: 0 Overlay + 0 Magic + 0 HymoFS", s.describe())
}

func TestDescribeWithWarning(t *testing.T) {
	s := Summary{Success: true, StorageMode: "tmpfs", Warning: "hymofs mismatch"}
	assert.Contains(t, s.describe(), " | hymofs mismatch")
}

func TestUpdateReplacesExistingDescriptionLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.prop")
	require.NoError(t, os.WriteFile(path, []byte(
		"id=hymo\nname=Hymo\nversion=v1\ndescription=stale\nauthor=cctv18\n",
	), 0o644))

	err := Update(path, Summary{Success: true, StorageMode: "tmpfs", OverlayCount: 1})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "id=hymo\n")
	assert.Contains(t, content, "author=cctv18\n")
	assert.NotContains(t, content, "description=stale")
	assert.Contains(t, content, "description=\U0001F60B Hymo | Storage: tmpfs | Modules: 1 Overlay + 0 Magic + 0 HymoFS")
}

func TestUpdateAppendsWhenNoDescriptionLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "module.prop")
	require.NoError(t, os.WriteFile(path, []byte("id=hymo\nname=Hymo\n"), 0o644))

	require.NoError(t, Update(path, Summary{Success: false, StorageMode: "ext4"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "description=\U0001F62D Hymo | Storage: ext4 | Modules: 0 Overlay + 0 Magic + 0 HymoFS\n")
}

func TestUpdateMissingFileIsNotError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "module.prop")
	assert.NoError(t, Update(path, Summary{}))
}
