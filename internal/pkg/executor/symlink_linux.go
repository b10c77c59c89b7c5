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
	"path/filepath"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/pkg/sylog"
)

// shadowedSymlinkPartitions are the sub-partitions that commonly exist as
// a top-level symlink into a partition root (e.g. `/system/vendor ->
// /vendor`), per overlay.cpp's FIX 6. "system" itself is excluded since
// it is never a sub-partition of another overlay target.
var shadowedSymlinkPartitions = []string{"vendor", "product", "system_ext", "odm", "oem"}

// restoreShadowedPartitionSymlinks re-binds the real partition root onto
// any shadowedSymlinkPartitions entry under target that the root overlay
// turned from a symlink into a synthetic directory, skipping any already
// covered by a preserved child mount in mountSeq.
func restoreShadowedPartitionSymlinks(target string, mountSeq []string, disableUmount bool) {
	alreadyRestored := map[string]bool{}
	for _, mp := range mountSeq {
		alreadyRestored[mp] = true
	}

	for _, part := range shadowedSymlinkPartitions {
		rootPart := "/" + part
		targetPart := filepath.Join(target, part)

		if !fsutil.IsDir(rootPart) {
			continue
		}
		if !fsutil.Exists(targetPart) || fsutil.IsSymlink(targetPart) || !fsutil.IsDir(targetPart) {
			continue
		}
		if alreadyRestored[targetPart] {
			continue
		}

		sylog.Infof("executor: restoring partition symlink/mount %s -> %s", rootPart, targetPart)
		if err := bindMount(rootPart, targetPart); err != nil {
			sylog.Errorf("executor: failed to restore partition %s: %s", part, err)
			continue
		}
		markDetachable(targetPart, disableUmount)
	}
}
