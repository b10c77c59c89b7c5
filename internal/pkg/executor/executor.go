// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package executor performs the mount plan built by internal/pkg/planner:
// overlay root mounts with child-mount preservation and shadowed-symlink
// restoration, and the magic-mount bind path.
package executor

import (
	"path/filepath"

	"github.com/cctv18/hymo/internal/pkg/planner"
	"github.com/cctv18/hymo/pkg/sylog"
)

// Result reflects which modules' layers were actually mounted, which may
// be a subset of the plan's classification when individual mounts fail
// (spec.md §7: MountFailure is local, the run continues).
type Result struct {
	OverlayModuleIDs []string
	MagicModuleIDs   []string
}

// Execute carries out every overlay operation in plan, then the magic
// mount path, tolerating and logging per-target failures without aborting
// the run (spec.md §7's MountFailure/ChildMountRestoreFailure policy).
func Execute(plan *planner.Plan, disableUmount bool) Result {
	result := Result{}

	mountedIDs := map[string]bool{}
	for _, op := range plan.OverlayOps {
		if err := runOverlayOp(op, disableUmount); err != nil {
			sylog.Errorf("executor: %s", err)
			continue
		}
		// A layer path is storageRoot/<moduleID>/<partition>; recover the
		// module id from its grandparent-relative structure so a failed
		// op doesn't get credited to modules it never actually mounted.
		for _, layer := range op.LowerDirs {
			mountedIDs[filepath.Base(filepath.Dir(layer))] = true
		}
	}
	for _, id := range plan.OverlayModuleIDs {
		if mountedIDs[id] {
			result.OverlayModuleIDs = append(result.OverlayModuleIDs, id)
		}
	}

	if len(plan.MagicModulePaths) > 0 {
		magicMount(plan.MagicModulePaths, disableUmount)
		result.MagicModuleIDs = plan.MagicModuleIDs
	}

	return result
}
