// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadModuleModes reads a line-oriented `module_id = mode` file, one
// override per line, `#` comments and blank lines skipped. mode is
// lowercased on load. A missing file is not an error: it returns an empty
// map.
func LoadModuleModes(path string) (map[string]Mode, error) {
	modes := map[string]Mode{}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return modes, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}

		id := strings.TrimSpace(line[:eq])
		mode := strings.ToLower(strings.TrimSpace(line[eq+1:]))
		if id == "" {
			continue
		}

		modes[id] = Mode(mode)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return modes, nil
}
