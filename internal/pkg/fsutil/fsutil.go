// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package fsutil provides the filesystem primitives shared by sync and the
// executor: directory equality, recursive copy with attribute preservation,
// extended-attribute and SELinux-context transfer, and mountpoint
// introspection.
package fsutil

import (
	"fmt"
	"os"
)

// HasContent reports whether dir or any of its descendants contains at
// least one non-directory entry (a regular file, symlink, device node,
// fifo or socket). It short-circuits on the first match,
// matching sync's should_sync existence probe.
func HasContent(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		switch {
		case entry.Type()&os.ModeSymlink != 0:
			return true, nil
		case entry.IsDir():
			found, err := HasContent(dirJoin(dir, entry.Name()))
			if err != nil {
				return false, err
			}
			if found {
				return true, nil
			}
		default:
			return true, nil
		}
	}
	return false, nil
}

func dirJoin(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// IsDir reports whether path exists and is a directory, following a
// trailing symlink; a broken symlink reports false.
func IsDir(path string) bool {
	info, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if info.Mode()&os.ModeSymlink != 0 {
		info, err = os.Stat(path)
		if err != nil {
			return false
		}
	}
	return info.IsDir()
}

// Exists reports whether path exists, following symlinks.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// LExists reports whether path exists, without following a trailing
// symlink (so a broken symlink still counts as existing).
func LExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// IsSymlink reports whether path exists and is itself a symlink.
func IsSymlink(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSymlink != 0
}
