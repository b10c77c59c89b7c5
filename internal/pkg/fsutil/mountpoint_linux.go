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
	"sort"
	"strings"

	"github.com/moby/sys/mountinfo"
)

// ChildMounts returns every mountpoint strictly beneath target, sorted by
// path length ascending (shallower mounts first), matching the order the
// executor must restore them in.
func ChildMounts(target string) ([]string, error) {
	prefix := strings.TrimRight(target, "/") + "/"

	infos, err := mountinfo.GetMounts(mountinfo.PrefixFilter(strings.TrimRight(target, "/")))
	if err != nil {
		return nil, fmt.Errorf("reading mountinfo under %s: %w", target, err)
	}

	seen := map[string]bool{}
	var children []string
	for _, info := range infos {
		if info.Mountpoint == target || !strings.HasPrefix(info.Mountpoint, prefix) {
			continue
		}
		if !seen[info.Mountpoint] {
			seen[info.Mountpoint] = true
			children = append(children, info.Mountpoint)
		}
	}

	sort.Slice(children, func(i, j int) bool { return len(children[i]) < len(children[j]) })
	return children, nil
}

// IsMounted reports whether path is itself a mountpoint.
func IsMounted(path string) (bool, error) {
	mounted, err := mountinfo.Mounted(path)
	if err != nil {
		return false, fmt.Errorf("checking mount status of %s: %w", path, err)
	}
	return mounted, nil
}
