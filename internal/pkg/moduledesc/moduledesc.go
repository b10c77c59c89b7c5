// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package moduledesc rewrites this framework's own module.prop
// description= line with a run's outcome summary.
package moduledesc

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Summary is the information update_module_description folds into the
// description line.
type Summary struct {
	Success      bool
	StorageMode  string
	NukeActive   bool
	OverlayCount int
	MagicCount   int
	HymoFSCount  int
	Warning      string
}

func (s Summary) describe() string {
	status := "\U0001F62D" // 😭
	if s.Success {
		status = "\U0001F60B" // 😋
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Hymo", status)
	if s.NukeActive {
		b.WriteString(" \U0001F43E") // 🐾
	}
	fmt.Fprintf(&b, " | Storage: %s | Modules: %d Overlay + %d Magic + %d HymoFS",
		s.StorageMode, s.OverlayCount, s.MagicCount, s.HymoFSCount)
	if s.Warning != "" {
		fmt.Fprintf(&b, " | %s", s.Warning)
	}
	return b.String()
}

// Update rewrites the description= line of the module.prop at propPath
// with summary's rendering, appending the line if none was present. A
// missing propPath is not an error: there is nothing to update.
func Update(propPath string, summary Summary) error {
	data, err := os.ReadFile(propPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("moduledesc: reading %s: %w", propPath, err)
	}

	line := "description=" + summary.describe()

	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	found := false
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "description=") {
			out.WriteString(line)
			found = true
		} else {
			out.WriteString(scanner.Text())
		}
		out.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("moduledesc: reading %s: %w", propPath, err)
	}
	if !found {
		out.WriteString(line)
		out.WriteByte('\n')
	}

	if err := os.WriteFile(propPath, out.Bytes(), 0o644); err != nil {
		return fmt.Errorf("moduledesc: writing %s: %w", propPath, err)
	}
	return nil
}
