// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package storage provisions the writable mirror mount point modules are
// synced into: a tmpfs when a user xattr written to it reads back,
// falling back to a loop-mounted ext4 image otherwise.
package storage

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/security/selinux"
	overlaycheck "github.com/cctv18/hymo/internal/pkg/util/fs/overlay"
	"github.com/cctv18/hymo/pkg/sylog"
	"github.com/cctv18/hymo/pkg/util/loop"
)

// Mode is the backend that actually provisioned a Handle's mount point.
type Mode string

const (
	ModeTmpfs Mode = "tmpfs"
	ModeExt4  Mode = "ext4"
)

// defaultSELinuxContext is the label applied to the ext4 mirror root, the
// same context ordinarily carried by /system on Android.
const defaultSELinuxContext = "u:object_r:system_file:s0"

// Handle is the provisioned mirror mount point returned by Setup.
type Handle struct {
	MountPoint string
	Mode       Mode
}

// ErrNoImage is returned when force_ext4 is set (or tmpfs was rejected)
// and the ext4 image file does not exist.
var ErrNoImage = errors.New("storage: ext4 image not found")

// Setup implements spec.md §4.1: detach any stale mount at mntDir, then
// try tmpfs (unless forceExt4), falling back to a loop-mounted ext4 image.
func Setup(mntDir, imagePath string, forceExt4 bool) (Handle, error) {
	sylog.Infof("storage: setting up mirror at %s", mntDir)

	if mounted, _ := fsutil.IsMounted(mntDir); mounted {
		if err := unix.Unmount(mntDir, unix.MNT_DETACH); err != nil {
			sylog.Warningf("storage: failed to detach stale mount at %s: %s", mntDir, err)
		}
	}
	if err := os.MkdirAll(mntDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("storage: creating %s: %w", mntDir, err)
	}

	if !forceExt4 && trySetupTmpfs(mntDir) {
		return Handle{MountPoint: mntDir, Mode: ModeTmpfs}, nil
	}

	if err := setupExt4Image(mntDir, imagePath); err != nil {
		return Handle{}, err
	}
	if err := FinalizePermissions(mntDir); err != nil {
		sylog.Warningf("storage: %s", err)
	}
	return Handle{MountPoint: mntDir, Mode: ModeExt4}, nil
}

func trySetupTmpfs(target string) bool {
	sylog.Infof("storage: attempting tmpfs mode")

	if err := unix.Mount("tmpfs", target, "tmpfs", 0, "mode=0755"); err != nil {
		sylog.Warningf("storage: tmpfs mount failed: %s, falling back to ext4 image", err)
		return false
	}

	if fsutil.ProbeXattrSupport(target) {
		if err := overlaycheck.CheckLower(target); err != nil {
			sylog.Warningf("storage: %s", err)
		}
		sylog.Infof("storage: tmpfs mode active (xattr supported)")
		return true
	}

	sylog.Warningf("storage: tmpfs does not support xattrs, unmounting")
	if err := unix.Unmount(target, unix.MNT_DETACH); err != nil {
		sylog.Warningf("storage: failed to detach rejected tmpfs at %s: %s", target, err)
	}
	return false
}

func setupExt4Image(target, imagePath string) error {
	sylog.Infof("storage: falling back to ext4 image mode")

	if !fsutil.Exists(imagePath) {
		return fmt.Errorf("%w: %s", ErrNoImage, imagePath)
	}

	dev := &loop.Device{MaxLoopDevices: 256, Info: &loop.Info64{}}
	var number int
	if err := dev.AttachFromPath(imagePath, os.O_RDWR, &number); err != nil {
		return fmt.Errorf("storage: attaching loop device for %s: %w", imagePath, err)
	}

	devPath := fmt.Sprintf("/dev/loop%d", number)
	if err := unix.Mount(devPath, target, "ext4", 0, ""); err != nil {
		dev.Close()
		return fmt.Errorf("storage: mounting %s on %s: %w", devPath, target, err)
	}

	sylog.Infof("storage: image mode active and secured")
	return nil
}

// FinalizePermissions re-applies the mirror root's chmod/chown/SELinux
// context, since sync may have changed them (spec.md §4.1's
// finalize_storage_permissions, invoked again after sync completes).
func FinalizePermissions(mntDir string) error {
	if err := os.Chmod(mntDir, 0o755); err != nil {
		return fmt.Errorf("storage: chmod %s: %w", mntDir, err)
	}
	if err := os.Chown(mntDir, 0, 0); err != nil {
		return fmt.Errorf("storage: chown %s: %w", mntDir, err)
	}
	if err := selinux.SetFileLabel(mntDir, defaultSELinuxContext); err != nil {
		return fmt.Errorf("storage: setting SELinux context on %s: %w", mntDir, err)
	}
	return nil
}
