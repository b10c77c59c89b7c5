package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideChildMountStrategyNoTouchBinds(t *testing.T) {
	layer := t.TempDir()
	strategy, lowers := decideChildMountStrategy("/apex", []string{layer})
	assert.Equal(t, strategyBind, strategy)
	assert.Empty(t, lowers)
}

func TestDecideChildMountStrategyDirOverlays(t *testing.T) {
	layer := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(layer, "apex"), 0o755))

	strategy, lowers := decideChildMountStrategy("/apex", []string{layer})
	assert.Equal(t, strategyOverlay, strategy)
	assert.Equal(t, []string{filepath.Join(layer, "apex")}, lowers)
}

func TestDecideChildMountStrategyFileOverrideBindsBack(t *testing.T) {
	layer := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(layer, "apex"), []byte("x"), 0o644))

	strategy, lowers := decideChildMountStrategy("/apex", []string{layer})
	assert.Equal(t, strategyBind, strategy)
	assert.Empty(t, lowers)
}

func TestDecideChildMountStrategyMultipleLayersOrderPreserved(t *testing.T) {
	layerA := t.TempDir()
	layerB := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(layerA, "apex"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(layerB, "apex"), 0o755))

	strategy, lowers := decideChildMountStrategy("/apex", []string{layerA, layerB})
	assert.Equal(t, strategyOverlay, strategy)
	assert.Equal(t, []string{filepath.Join(layerA, "apex"), filepath.Join(layerB, "apex")}, lowers)
}
