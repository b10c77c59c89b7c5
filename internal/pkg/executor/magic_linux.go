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
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cctv18/hymo/pkg/sylog"
)

// magicMount recursively bind-mounts every file and subdirectory under
// each of modulePaths onto its system-path counterpart, in reverse
// priority order. modulePaths is already in descending (highest-priority
// first) order, so it is walked in reverse here to match spec.md §4.5's
// "reverse priority order" requirement for the magic-mount code path,
// whose precise tree-walk semantics are not specified beyond that.
func magicMount(modulePaths []string, disableUmount bool) {
	for i := len(modulePaths) - 1; i >= 0; i-- {
		magicMountOne(modulePaths[i], disableUmount)
	}
}

func magicMountOne(modRoot string, disableUmount bool) {
	_ = filepath.WalkDir(modRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == modRoot {
			return nil
		}

		rel, relErr := filepath.Rel(modRoot, path)
		if relErr != nil {
			return nil
		}
		systemPath := filepath.Join("/", rel)

		info, statErr := os.Lstat(systemPath)
		switch {
		case statErr != nil && os.IsNotExist(statErr):
			// No counterpart to shadow; descend so files further down can
			// still be mounted onto their own (possibly pre-existing)
			// counterparts.
			return nil
		case statErr != nil:
			return nil
		case d.IsDir() && info.IsDir():
			// Both sides are directories: don't mount the directory
			// itself, recurse so individual files get bind-mounted.
			return nil
		}

		if err := bindMount(path, systemPath); err != nil {
			sylog.Warningf("executor: magic mount %s -> %s failed: %s", path, systemPath, err)
			return nil
		}
		markDetachable(systemPath, disableUmount)

		if d.IsDir() {
			return fs.SkipDir
		}
		return nil
	})
}
