// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package executor

import (
	"fmt"
	"os"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/planner"
	"github.com/cctv18/hymo/internal/pkg/util/fs/overlay"
	"github.com/cctv18/hymo/pkg/sylog"
)

// runOverlayOp implements spec.md §4.6 steps 1-6 for a single overlay
// operation: chdir into the target to pin a reference to its pre-overlay
// contents, enumerate and preserve child mounts, mount the root overlay,
// restore the children, and restore any partition symlink the overlay
// shadowed.
func runOverlayOp(op planner.OverlayOperation, disableUmount bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getwd: %w", err)
	}
	defer func() {
		if err := os.Chdir(cwd); err != nil {
			sylog.Warningf("executor: failed to restore working directory to %s: %s", cwd, err)
		}
	}()

	if err := os.Chdir(op.Target); err != nil {
		return fmt.Errorf("chdir %s: %w", op.Target, err)
	}

	mountSeq, err := fsutil.ChildMounts(op.Target)
	if err != nil {
		sylog.Warningf("executor: failed to enumerate child mounts under %s: %s", op.Target, err)
		mountSeq = nil
	} else if len(mountSeq) > 0 {
		sylog.Debugf("executor: found %d child mounts under %s", len(mountSeq), op.Target)
	}

	for _, layer := range op.LowerDirs {
		if err := overlay.CheckLower(layer); err != nil {
			sylog.Warningf("executor: %s", err)
		}
	}
	if err := overlay.CheckLower(op.Target); err != nil {
		sylog.Warningf("executor: %s", err)
	}

	lowerDirs := append(append([]string{}, op.LowerDirs...), op.Target)
	if err := mountOverlay(overlayOptions{lowerDirs: lowerDirs}, op.Target); err != nil {
		return fmt.Errorf("mount overlayfs for root %s: %w", op.Target, err)
	}
	markDetachable(op.Target, disableUmount)

	restoreChildMounts(op.Target, mountSeq, op.LowerDirs)
	restoreShadowedPartitionSymlinks(op.Target, mountSeq, disableUmount)

	return nil
}
