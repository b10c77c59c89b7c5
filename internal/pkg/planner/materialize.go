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
	"path/filepath"
	"sort"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/pkg/sylog"
)

// materializeOverlayOps implements spec.md §4.5 step 3: for each target
// partition with a non-empty layer list, resolve `/<partition>` through
// its symlinks and emit an OverlayOperation, dropping targets that cannot
// be resolved to an existing directory.
func materializeOverlayOps(partitionLayers map[string][]string) []OverlayOperation {
	partitions := make([]string, 0, len(partitionLayers))
	for partition := range partitionLayers {
		partitions = append(partitions, partition)
	}
	sort.Strings(partitions)

	var ops []OverlayOperation
	for _, partition := range partitions {
		layers := partitionLayers[partition]
		if len(layers) == 0 {
			continue
		}

		initialTarget := "/" + partition
		if !fsutil.LExists(initialTarget) {
			sylog.Warningf("planner: target %s does not exist, skipping", initialTarget)
			continue
		}

		resolved, err := filepath.EvalSymlinks(initialTarget)
		if err != nil {
			sylog.Warningf("planner: failed to resolve path %s: %s, skipping", initialTarget, err)
			continue
		}

		if !fsutil.IsDir(resolved) {
			sylog.Warningf("planner: target %s is not a directory, skipping", resolved)
			continue
		}

		ops = append(ops, OverlayOperation{Target: resolved, LowerDirs: layers})
	}

	return ops
}
