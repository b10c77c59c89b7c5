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
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cctv18/hymo/pkg/sylog"
)

// mountSource is the fsopen/mount(2) "source" label every overlay mount
// performed by this package carries, so downstream namespace tooling can
// recognize and selectively detach this framework's mounts.
const mountSource = "hymo"

// overlayOptions describes one overlayfs mount: lowerDirs is ordered
// highest-priority first; upperDir/workDir are both set or both empty.
type overlayOptions struct {
	lowerDirs []string
	upperDir  string
	workDir   string
}

func (o overlayOptions) lowerdirString() string {
	return strings.Join(o.lowerDirs, ":")
}

// mountOverlay mounts an overlayfs at dest, preferring the new mount API
// (fsopen/fsconfig/fsmount/move_mount) and falling back to the legacy
// mount(2) call with an equivalent option string on any failure.
func mountOverlay(opts overlayOptions, dest string) error {
	if err := mountOverlayModern(opts, dest); err != nil {
		sylog.Debugf("executor: new mount API failed for %s: %s, falling back to legacy mount(2)", dest, err)
		return mountOverlayLegacy(opts, dest)
	}
	return nil
}

func mountOverlayModern(opts overlayOptions, dest string) error {
	fsfd, err := unix.Fsopen("overlay", unix.FSOPEN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("fsopen(overlay): %w", err)
	}
	defer unix.Close(fsfd)

	if err := unix.FsconfigSetString(fsfd, "lowerdir", opts.lowerdirString()); err != nil {
		return fmt.Errorf("fsconfig(lowerdir): %w", err)
	}
	if opts.upperDir != "" && opts.workDir != "" {
		if err := unix.FsconfigSetString(fsfd, "upperdir", opts.upperDir); err != nil {
			return fmt.Errorf("fsconfig(upperdir): %w", err)
		}
		if err := unix.FsconfigSetString(fsfd, "workdir", opts.workDir); err != nil {
			return fmt.Errorf("fsconfig(workdir): %w", err)
		}
	}
	if err := unix.FsconfigSetString(fsfd, "source", mountSource); err != nil {
		return fmt.Errorf("fsconfig(source): %w", err)
	}
	if err := unix.FsconfigCreate(fsfd); err != nil {
		return fmt.Errorf("fsconfig(create): %w", err)
	}

	mfd, err := unix.Fsmount(fsfd, unix.FSMOUNT_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("fsmount: %w", err)
	}
	defer unix.Close(mfd)

	if err := unix.MoveMount(mfd, "", unix.AT_FDCWD, dest, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount(%s): %w", dest, err)
	}
	return nil
}

func mountOverlayLegacy(opts overlayOptions, dest string) error {
	data := "lowerdir=" + opts.lowerdirString()
	if opts.upperDir != "" && opts.workDir != "" {
		data += ",upperdir=" + opts.upperDir + ",workdir=" + opts.workDir
	}
	if err := unix.Mount(mountSource, dest, "overlay", 0, data); err != nil {
		return fmt.Errorf("mount(overlay, %s): %w", dest, err)
	}
	return nil
}

// bindMount recursively bind-mounts from onto to, preferring
// open_tree(OPEN_TREE_CLONE|AT_RECURSIVE)+move_mount and falling back to
// the legacy recursive bind mount(2) flags.
func bindMount(from, to string) error {
	treeFd, err := unix.OpenTree(unix.AT_FDCWD, from, unix.OPEN_TREE_CLONE|unix.AT_RECURSIVE|unix.OPEN_TREE_CLOEXEC)
	if err != nil {
		sylog.Debugf("executor: open_tree failed for %s: %s, falling back to legacy bind mount", from, err)
		if mountErr := unix.Mount(from, to, "", unix.MS_BIND|unix.MS_REC, ""); mountErr != nil {
			return fmt.Errorf("bind mount(%s -> %s): %w", from, to, mountErr)
		}
		return nil
	}
	defer unix.Close(treeFd)

	if err := unix.MoveMount(treeFd, "", unix.AT_FDCWD, to, unix.MOVE_MOUNT_F_EMPTY_PATH); err != nil {
		return fmt.Errorf("move_mount bind(%s -> %s): %w", from, to, err)
	}
	return nil
}
