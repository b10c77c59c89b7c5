package planner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/internal/pkg/redirector"
	"github.com/cctv18/hymo/pkg/config"
)

func TestIsWhiteoutRejectsRealCharDevice(t *testing.T) {
	if _, err := os.Stat("/dev/null"); err != nil {
		t.Skip("/dev/null not present in this sandbox")
	}
	assert.False(t, isWhiteout("/dev/null"), "/dev/null is 1:3, not a 0:0 whiteout")
}

func TestScanForcedOverlaysDetectsReplaceMarker(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1")
	require.NoError(t, os.MkdirAll(filepath.Join(modRoot, "tmp", "fonts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "tmp", "fonts", ".replace"), nil, 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	required := scanForcedOverlays(modules, storageRoot, []string{"tmp"})

	assert.True(t, required["/tmp/fonts"])
}

func TestScanForcedOverlaysDetectsAdditionAtNearestAncestor(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1")
	// /tmp exists on any Linux test runner; /tmp/hymo_test_nonexistent_xyz does not.
	require.NoError(t, os.MkdirAll(filepath.Join(modRoot, "tmp", "hymo_test_nonexistent_xyz"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "tmp", "hymo_test_nonexistent_xyz", "f"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	required := scanForcedOverlays(modules, storageRoot, []string{"tmp"})

	assert.True(t, required["/tmp"])
}

func TestScanForcedOverlaysSkipsMagicModules(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1")
	require.NoError(t, os.MkdirAll(filepath.Join(modRoot, "tmp", "fonts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "tmp", "fonts", ".replace"), nil, 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeMagic}}
	required := scanForcedOverlays(modules, storageRoot, []string{"tmp"})

	assert.Empty(t, required)
}

func TestClassifyMagicModule(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1", "tmp")
	require.NoError(t, os.MkdirAll(modRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "f"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeMagic}}
	cls := classify(config.Default(), modules, storageRoot, []string{"tmp"}, nil, true)

	assert.True(t, cls.magicIDs["m1"])
	assert.Empty(t, cls.overlayIDs)
	assert.Empty(t, cls.redirectorIDs)
}

func TestClassifyOverlayModeAlwaysLayersRegardlessOfRedirector(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1", "tmp")
	require.NoError(t, os.MkdirAll(modRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "f"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeOverlay}}
	cls := classify(config.Default(), modules, storageRoot, []string{"tmp"}, nil, true)

	assert.True(t, cls.overlayIDs["m1"])
	assert.Contains(t, cls.partitionLayers["tmp"], modRoot)
}

func TestClassifyAutoWithoutRedirectorFallsBackToOverlay(t *testing.T) {
	storageRoot := t.TempDir()
	modRoot := filepath.Join(storageRoot, "m1", "tmp")
	require.NoError(t, os.MkdirAll(modRoot, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modRoot, "f"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	cls := classify(config.Default(), modules, storageRoot, []string{"tmp"}, nil, false)

	assert.True(t, cls.overlayIDs["m1"])
	assert.False(t, cls.redirectorIDs["m1"])
}

func TestClassifyAutoWithRedirectorIsHybridOnlyUnderForcedPartitions(t *testing.T) {
	storageRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(storageRoot, "m1", "tmp"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storageRoot, "m1", "tmp", "f"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(storageRoot, "m1", "var"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storageRoot, "m1", "var", "g"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	required := map[string]bool{"tmp": true} // only "tmp" was forced into overlay
	cls := classify(config.Default(), modules, storageRoot, []string{"tmp", "var"}, required, true)

	assert.True(t, cls.redirectorIDs["m1"])
	assert.Contains(t, cls.partitionLayers["tmp"], filepath.Join(storageRoot, "m1", "tmp"))
	assert.NotContains(t, cls.partitionLayers, "var")
}

func TestPlanIsCoveredByOverlay(t *testing.T) {
	plan := &Plan{OverlayOps: []OverlayOperation{{Target: "/system"}}}
	assert.True(t, plan.IsCoveredByOverlay("/system"))
	assert.True(t, plan.IsCoveredByOverlay("/system/app/Foo"))
	assert.False(t, plan.IsCoveredByOverlay("/systemx"))
	assert.False(t, plan.IsCoveredByOverlay("/vendor"))
}

func TestMaterializeOverlayOpsDropsMissingTarget(t *testing.T) {
	ops := materializeOverlayOps(map[string][]string{
		"hymo_test_partition_does_not_exist_xyz": {"/some/layer"},
	})
	assert.Empty(t, ops)
}

func TestMaterializeOverlayOpsResolvesRealPartition(t *testing.T) {
	ops := materializeOverlayOps(map[string][]string{
		"tmp": {"/some/layer"},
	})
	require.Len(t, ops, 1)
	assert.Equal(t, []string{"/some/layer"}, ops[0].LowerDirs)
}

func TestBuildRuleBatchReverseOrderLastWriteWins(t *testing.T) {
	storageRoot := t.TempDir()
	for _, id := range []string{"mA", "mB"} {
		dir := filepath.Join(storageRoot, id, "tmp", "lib")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "libx.so"), []byte(id), 0o644))
	}

	// Inventory order is descending by id: mB before mA (mB has priority).
	modules := []inventory.Module{
		{ID: "mB", Mode: config.ModeAuto},
		{ID: "mA", Mode: config.ModeAuto},
	}
	plan := &Plan{RedirectorModuleIDs: []string{"mA", "mB"}}

	batch := buildRuleBatch(modules, storageRoot, []string{"tmp"}, plan)
	rules := batch.Rules()

	var addTargets []string
	for _, r := range rules {
		if r.Kind == redirector.KindAdd && r.Src == "/tmp/lib/libx.so" {
			addTargets = append(addTargets, r.Target)
		}
	}
	require.Len(t, addTargets, 2)
	assert.Equal(t, filepath.Join(storageRoot, "mB", "tmp", "lib", "libx.so"), addTargets[len(addTargets)-1],
		"mB is higher priority and must be the last (winning) write")
}

func TestBuildRuleBatchAlwaysIncludesClearAll(t *testing.T) {
	storageRoot := t.TempDir()
	dir := filepath.Join(storageRoot, "m1", "tmp")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	plan := &Plan{RedirectorModuleIDs: []string{"m1"}}

	batch := buildRuleBatch(modules, storageRoot, []string{"tmp"}, plan)

	var clears int
	for _, r := range batch.Rules() {
		if r.Kind == redirector.KindClearAll {
			clears++
		}
	}
	assert.Equal(t, 1, clears, "every rebuilt batch must clear stale rules before reinstalling")

	ordered := batch.Ordered()
	require.NotEmpty(t, ordered)
	assert.Equal(t, redirector.KindClearAll, ordered[0].Kind, "ClearAll must be the first rule applied")
}

func TestBuildRuleBatchEmitsInjectDirBeforeAdd(t *testing.T) {
	storageRoot := t.TempDir()
	dir := filepath.Join(storageRoot, "m1", "tmp", "bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	plan := &Plan{RedirectorModuleIDs: []string{"m1"}}

	batch := buildRuleBatch(modules, storageRoot, []string{"tmp"}, plan)
	rules := batch.Rules()

	injectIdx, addIdx := -1, -1
	for i, r := range rules {
		if r.Kind == redirector.KindInjectDir && r.Src == "/tmp/bin" {
			injectIdx = i
		}
		if r.Kind == redirector.KindAdd && r.Src == "/tmp/bin/tool" {
			addIdx = i
		}
	}
	require.NotEqual(t, -1, injectIdx)
	require.NotEqual(t, -1, addIdx)
	assert.Less(t, injectIdx, addIdx)
}

func TestBuildRuleBatchSkipsPathsCoveredByOverlay(t *testing.T) {
	storageRoot := t.TempDir()
	dir := filepath.Join(storageRoot, "m1", "tmp", "bin")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tool"), []byte("x"), 0o644))

	modules := []inventory.Module{{ID: "m1", Mode: config.ModeAuto}}
	plan := &Plan{
		RedirectorModuleIDs: []string{"m1"},
		OverlayOps:          []OverlayOperation{{Target: "/tmp"}},
	}

	batch := buildRuleBatch(modules, storageRoot, []string{"tmp"}, plan)
	for _, r := range batch.Rules() {
		assert.NotEqual(t, redirector.KindAdd, r.Kind, "no AddRule should be emitted under an overlay-covered path")
	}
}
