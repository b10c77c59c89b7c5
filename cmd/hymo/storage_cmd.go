// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cctv18/hymo/internal/pkg/state"
)

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Print the storage backend and mount point from the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := state.Load(stateFilePath(cfg))
		if err != nil {
			return fmt.Errorf("loading run state: %w", err)
		}

		return writeOutput(fmt.Sprintf(
			"mode: %s\nmount_point: %s\nnuke_active: %t\nhymofs_mismatch: %t\n",
			st.StorageMode, st.MountPoint, st.NukeActive, st.HymoFSMismatch,
		))
	},
}
