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
	"strings"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/pkg/config"
)

// scanForcedOverlays walks every partition subtree of every non-magic
// module and returns the set of absolute system directories that must be
// served by overlay rather than redirector, per spec.md §4.5 step 1:
// a `.replace` marker forces overlay on its parent; a 0:0 whiteout
// character device forces overlay on its parent; an entry whose system
// path counterpart does not exist forces overlay on the nearest existing
// ancestor above `/`.
func scanForcedOverlays(modules []inventory.Module, storageRoot string, partitions []string) map[string]bool {
	required := map[string]bool{}

	for _, mod := range modules {
		if mod.Mode == config.ModeMagic {
			continue
		}

		modRoot := moduleRoot(storageRoot, mod.ID)
		for _, partition := range partitions {
			partRoot := filepath.Join(modRoot, partition)
			if !fsutil.IsDir(partRoot) {
				continue
			}
			scanModulePartition(modRoot, partRoot, required)
		}
	}

	return required
}

func scanModulePartition(modRoot, partRoot string, required map[string]bool) {
	_ = filepath.WalkDir(partRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == partRoot {
			return nil
		}

		rel, relErr := filepath.Rel(modRoot, path)
		if relErr != nil {
			return nil
		}
		systemPath := filepath.Join("/", rel)

		switch {
		case d.Name() == ".replace":
			required[filepath.Dir(systemPath)] = true

		case d.Type()&fs.ModeCharDevice != 0:
			if isWhiteout(path) {
				required[filepath.Dir(systemPath)] = true
			}

		case !fsutil.LExists(systemPath):
			required[nearestExistingAncestor(systemPath)] = true
		}

		return nil
	})
}

// nearestExistingAncestor climbs from path's parent upward until it
// finds a directory that exists below `/`; it returns "/" itself when no
// such ancestor exists.
func nearestExistingAncestor(path string) string {
	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if fsutil.IsDir(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return dir
}

// partitionsOf collapses a set of forced-overlay directories down to the
// partitions they fall under: an overlay operation always targets a
// partition root (spec.md §4.5 step 3 builds one op per `/<partition>`),
// so anything forcing overlay anywhere inside a partition forces overlay
// for that whole partition's hybrid-mode contributors.
func partitionsOf(required map[string]bool, partitions []string) map[string]bool {
	out := map[string]bool{}
	for dir := range required {
		trimmed := strings.TrimPrefix(dir, "/")
		for _, partition := range partitions {
			if trimmed == partition || strings.HasPrefix(trimmed, partition+"/") {
				out[partition] = true
				break
			}
		}
	}
	return out
}

func isWhiteout(path string) bool {
	major, minor, ok := charDeviceNumbers(path)
	return ok && major == 0 && minor == 0
}
