// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package planner

import (
	"io/fs"
	"path/filepath"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/internal/pkg/redirector"
	"github.com/cctv18/hymo/pkg/sylog"
)

// buildRuleBatch implements spec.md §4.5 step 4. Modules are walked in
// reverse priority order so that, per key, the higher-priority module's
// AddRule is issued last and wins (the redirector is last-write-wins).
func buildRuleBatch(modules []inventory.Module, storageRoot string, partitions []string, plan *Plan) redirector.Batch {
	redirectorIDs := map[string]bool{}
	for _, id := range plan.RedirectorModuleIDs {
		redirectorIDs[id] = true
	}

	reversed := make([]inventory.Module, 0, len(modules))
	for i := len(modules) - 1; i >= 0; i-- {
		reversed = append(reversed, modules[i])
	}

	var batch redirector.Batch
	injectedDirs := map[string]bool{}

	for _, mod := range reversed {
		if !redirectorIDs[mod.ID] {
			continue
		}
		modRoot := moduleRoot(storageRoot, mod.ID)

		for _, partition := range partitions {
			partRoot := filepath.Join(modRoot, partition)
			if !fsutil.IsDir(partRoot) {
				continue
			}
			walkPartitionForRules(modRoot, partRoot, plan, &batch, injectedDirs)
		}
	}

	var final redirector.Batch
	// spec.md §5's burst order is ClearAll -> InjectDir* -> Add* -> Hide*;
	// Batch.Ordered() already sorts ClearAll first regardless of insertion
	// order, but every rebuilt batch must carry one so a reload or re-run
	// drops whatever the kernel still has installed from the prior batch.
	final.Add(redirector.ClearAllRule())
	for dir := range injectedDirs {
		final.Add(redirector.InjectDirRule(dir))
	}
	for _, r := range batch.Rules() {
		final.Add(r)
	}
	return final
}

func walkPartitionForRules(modRoot, partRoot string, plan *Plan, batch *redirector.Batch, injectedDirs map[string]bool) {
	_ = filepath.WalkDir(partRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == partRoot || d.IsDir() {
			return nil
		}

		rel, relErr := filepath.Rel(modRoot, path)
		if relErr != nil {
			return nil
		}
		virtualPath := filepath.Join("/", rel)

		if plan.IsCoveredByOverlay(virtualPath) {
			return nil
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		if isSymlink && fsutil.IsDir(virtualPath) {
			sylog.Warningf("planner: refusing to replace real directory %s with a symlink rule", virtualPath)
			return nil
		}

		if d.Type()&fs.ModeCharDevice != 0 {
			if isWhiteout(path) {
				batch.Add(redirector.HideRule(virtualPath))
			}
			return nil
		}

		dtype := entryDType(path)
		batch.Add(redirector.AddRule(virtualPath, path, dtype))
		injectedDirs[filepath.Dir(virtualPath)] = true

		return nil
	})
}
