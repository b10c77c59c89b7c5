// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package executor

import "github.com/cctv18/hymo/pkg/sylog"

// markDetachable notifies the host control channel that path may later be
// lazily unmounted by app-visible namespace code. That channel's wire
// protocol lives outside the kernel redirector's IOCTL surface this
// process controls, so there is nothing to actually dial here; the call
// exists so every mount site in this package honors disable_umount
// uniformly, and failure to notify is never fatal.
func markDetachable(path string, disableUmount bool) {
	if disableUmount {
		return
	}
	sylog.Debugf("executor: marking %s detachable", path)
}
