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
	"os"

	"golang.org/x/sys/unix"

	"github.com/cctv18/hymo/internal/pkg/redirector"
)

// charDeviceNumbers returns the major/minor device numbers of a character
// device at path, and whether path actually is one.
func charDeviceNumbers(path string) (major, minor uint32, ok bool) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, false
	}
	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return 0, 0, false
	}
	rdev := uint64(st.Rdev)
	return unix.Major(rdev), unix.Minor(rdev), true
}

// entryDType classifies a filesystem entry into the POSIX dirent d_type
// the redirector protocol expects.
func entryDType(path string) redirector.DType {
	info, err := os.Lstat(path)
	if err != nil {
		return redirector.DTUnknown
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return redirector.DTLnk
	case info.Mode()&os.ModeDir != 0:
		return redirector.DTDir
	case info.Mode()&os.ModeCharDevice != 0:
		return redirector.DTChr
	case info.Mode()&os.ModeDevice != 0:
		return redirector.DTBlk
	case info.Mode()&os.ModeNamedPipe != 0:
		return redirector.DTFifo
	case info.Mode()&os.ModeSocket != 0:
		return redirector.DTSock
	default:
		return redirector.DTReg
	}
}
