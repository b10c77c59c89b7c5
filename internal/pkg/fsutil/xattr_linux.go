// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package fsutil

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// ProbeXattrSupport writes and reads back a throwaway user extended
// attribute on dir to determine whether the underlying filesystem honors
// xattrs at all. A tmpfs that rejects user xattrs is the case this exists
// to catch before committing to it as the mirror backend.
func ProbeXattrSupport(dir string) bool {
	const (
		attr = "user.hymo_probe"
	)
	value := []byte("1")

	if err := unix.Lsetxattr(dir, attr, value, 0); err != nil {
		return false
	}
	defer unix.Lremovexattr(dir, attr)

	buf := make([]byte, len(value))
	n, err := unix.Lgetxattr(dir, attr, buf)
	return err == nil && n == len(value)
}

// ListXattrs returns the extended attribute names set on path, without
// following a trailing symlink.
func ListXattrs(path string) ([]string, error) {
	size, err := unix.Llistxattr(path, nil)
	if err != nil {
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Llistxattr(path, buf)
	if err != nil {
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}

	var names []string
	for _, name := range strings.Split(string(buf[:n]), "\x00") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// GetXattr returns the value of extended attribute name on path, without
// following a trailing symlink.
func GetXattr(path, name string) ([]byte, error) {
	size, err := unix.Lgetxattr(path, name, nil)
	if err != nil {
		return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
	}
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := unix.Lgetxattr(path, name, buf)
	if err != nil {
		return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
	}
	return buf[:n], nil
}

// SetXattr sets extended attribute name to value on path, without
// following a trailing symlink.
func SetXattr(path, name string, value []byte) error {
	if err := unix.Lsetxattr(path, name, value, 0); err != nil {
		return fmt.Errorf("setxattr %s %s: %w", path, name, err)
	}
	return nil
}

// CopyXattrs transfers every extended attribute from src onto dst,
// including the security.* namespace. Individual attribute failures are
// collected and returned together rather than aborting the transfer, since
// a single unsupported attribute should not block the rest.
func CopyXattrs(src, dst string) error {
	names, err := ListXattrs(src)
	if err != nil {
		return err
	}

	var errs []string
	for _, name := range names {
		value, err := GetXattr(src, name)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if err := SetXattr(dst, name, value); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("copying xattrs %s -> %s: %s", src, dst, strings.Join(errs, "; "))
	}
	return nil
}
