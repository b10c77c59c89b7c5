// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package state persists the post-execution picture of a run as JSON so
// subsequent commands (storage status, modules listing, reload) can
// reason about what is currently live without re-running the pipeline.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Runtime is the serialized shape of one run's outcome.
type Runtime struct {
	StorageMode      string   `json:"storage_mode"`
	MountPoint       string   `json:"mount_point"`
	OverlayModuleIDs []string `json:"overlay_module_ids"`
	MagicModuleIDs   []string `json:"magic_module_ids"`
	HymoFSModuleIDs  []string `json:"hymofs_module_ids"`
	ActiveMounts     []string `json:"active_mounts"`
	NukeActive       bool     `json:"nuke_active"`
	HymoFSMismatch   bool     `json:"hymofs_mismatch"`
	MismatchMessage  string   `json:"mismatch_message"`
}

// Save writes state as indented JSON at path, creating parent
// directories as needed.
func (s Runtime) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("state: creating %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encoding: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("state: writing %s: %w", path, err)
	}
	return nil
}

// Load reads the runtime state at path. A missing file is not an error:
// it returns the zero Runtime, matching load_runtime_state's tolerant
// "treat everything as default" behavior.
func Load(path string) (Runtime, error) {
	var s Runtime

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, fmt.Errorf("state: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return Runtime{}, fmt.Errorf("state: parsing %s: %w", path, err)
	}
	return s, nil
}
