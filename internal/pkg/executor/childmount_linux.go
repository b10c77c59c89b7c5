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
	"os"
	"path/filepath"
	"strings"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/pkg/sylog"
)

// childMountStrategy is the decision restoreChildMount reaches for one
// child mountpoint, factored out so it is exercisable without an actual
// mount namespace.
type childMountStrategy int

const (
	// strategyBind restores mountPoint with a plain bind mount of stockRoot.
	strategyBind childMountStrategy = iota
	// strategyOverlay stacks the collected module lowerDirs over stockRoot.
	strategyOverlay
	// strategySkip leaves mountPoint untouched (its stock counterpart is gone).
	strategySkip
)

// decideChildMountStrategy implements overlay.cpp's mount_overlay_child
// classification: no module touching this relative path binds the
// original object back; a module contributing a *file* here makes
// overlaying meaningless (a mountpoint can't become a file), so it also
// binds back; otherwise the directory-only contributions get their own
// overlay over stockRoot.
func decideChildMountStrategy(relative string, moduleLayers []string) (childMountStrategy, []string) {
	trimmed := strings.TrimPrefix(relative, "/")

	var lowerDirs []string
	for _, layer := range moduleLayers {
		candidate := filepath.Join(layer, trimmed)
		switch {
		case fsutil.IsDir(candidate):
			lowerDirs = append(lowerDirs, candidate)
		case fsutil.Exists(candidate):
			return strategyBind, nil
		}
	}

	if len(lowerDirs) == 0 {
		return strategyBind, nil
	}
	return strategyOverlay, lowerDirs
}

// restoreChildMount re-establishes one pre-existing child mountpoint that
// the root overlay at target would otherwise have shadowed. relative is
// mountPoint with target's prefix stripped (leading "/"). stockRoot is the
// pre-overlay path (relative to the chdir'd reference) that used to back
// mountPoint.
func restoreChildMount(mountPoint, relative, stockRoot string, moduleLayers []string) error {
	strategy, lowerDirs := decideChildMountStrategy(relative, moduleLayers)

	switch strategy {
	case strategyOverlay:
		if !fsutil.IsDir(stockRoot) {
			return nil
		}
		opts := overlayOptions{lowerDirs: append(append([]string{}, lowerDirs...), stockRoot)}
		if err := mountOverlay(opts, mountPoint); err != nil {
			sylog.Warningf("executor: failed to overlay child %s: %s, falling back to bind mount", mountPoint, err)
			return bindMount(stockRoot, mountPoint)
		}
		return nil

	case strategySkip:
		return nil

	default: // strategyBind
		return bindMount(stockRoot, mountPoint)
	}
}

// restoreChildMounts re-establishes every mountpoint discovered beneath
// target before the root overlay was mounted, in the shallow-first order
// fsutil.ChildMounts returns.
func restoreChildMounts(target string, mountSeq []string, moduleLayers []string) {
	for _, mountPoint := range mountSeq {
		relative := strings.TrimPrefix(mountPoint, strings.TrimRight(target, "/"))
		stockRoot := filepath.Join(".", relative)

		if _, err := os.Lstat(stockRoot); err != nil {
			sylog.Debugf("executor: stock root for child mount %s doesn't exist: %s", mountPoint, stockRoot)
			continue
		}

		sylog.Debugf("executor: restoring child mount %s (relative %s)", mountPoint, relative)
		if err := restoreChildMount(mountPoint, relative, stockRoot, moduleLayers); err != nil {
			sylog.Warningf("executor: failed to restore child mount %s: %s", mountPoint, err)
		}
	}
}
