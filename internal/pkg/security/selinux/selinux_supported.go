// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package selinux wraps github.com/opencontainers/selinux for the subset of
// operations the mirror-sync and storage-backend components need: querying
// whether SELinux is active on this kernel and transferring a file context
// from one path to another.
package selinux

import (
	goselinux "github.com/opencontainers/selinux/go-selinux"
)

// Enabled returns whether SELinux is enabled on this kernel.
func Enabled() bool {
	return goselinux.GetEnabled()
}

// FileLabel returns the SELinux context of path, or "" if SELinux is
// disabled.
func FileLabel(path string) (string, error) {
	if !Enabled() {
		return "", nil
	}
	return goselinux.FileLabel(path)
}

// SetFileLabel sets the SELinux context of path. It is a no-op when
// SELinux is disabled or label is empty.
func SetFileLabel(path, label string) error {
	if !Enabled() || label == "" {
		return nil
	}
	return goselinux.SetFileLabel(path, label)
}

// CopyLabel copies the SELinux context from src onto dst. Missing context on
// src is not an error; dst is simply left with its inherited context.
func CopyLabel(src, dst string) error {
	label, err := FileLabel(src)
	if err != nil || label == "" {
		return nil
	}
	return SetFileLabel(dst, label)
}
