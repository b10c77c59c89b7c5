// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2021, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	da "github.com/docker/docker/pkg/archive"
)

// CopyTree recursively copies src onto dst, preserving regular files,
// symlinks (the link value, never resolved), permission bits, timestamps,
// and ownership. dst must not already exist; CopyTree creates it.
//
// The copy goes through a tar stream (the same docker pkg/archive used
// elsewhere for container rootfs extraction) rather than a hand-rolled
// walk, since tar already encodes the symlink/mode/mtime/ownership
// preservation this needs. Extended attributes — including security.* —
// are not reliably carried by the tar path (Untar intentionally strips
// security labels), so CopyTreeXattrs must be run afterward to transfer
// them.
func CopyTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", dst, err)
	}

	ar := da.NewDefaultArchiver()
	if err := ar.CopyWithTar(src, dst); err != nil {
		return fmt.Errorf("copying %s -> %s: %w", src, dst, err)
	}
	return nil
}

// CopyTreeXattrs walks src and copies every extended attribute found on
// each entry onto its counterpart under dst, which must already mirror
// src's structure (as CopyTree leaves it). The first entry whose xattrs
// cannot all be copied aborts the walk and its error is returned; entries
// after it are left without their xattrs. sync logs that error as a
// warning and keeps the copied module.
func CopyTreeXattrs(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return fmt.Errorf("relativizing %s: %w", path, err)
		}
		dstPath := filepath.Join(dst, rel)

		if err := CopyXattrs(path, dstPath); err != nil {
			return err
		}
		return nil
	})
}
