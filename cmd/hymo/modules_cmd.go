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
	"strings"

	"github.com/spf13/cobra"

	"github.com/cctv18/hymo/internal/pkg/state"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules mounted by the last run, grouped by strategy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := state.Load(stateFilePath(cfg))
		if err != nil {
			return fmt.Errorf("loading run state: %w", err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "overlay (%d): %s\n", len(st.OverlayModuleIDs), strings.Join(st.OverlayModuleIDs, ", "))
		fmt.Fprintf(&b, "magic (%d): %s\n", len(st.MagicModuleIDs), strings.Join(st.MagicModuleIDs, ", "))
		fmt.Fprintf(&b, "hymofs (%d): %s\n", len(st.HymoFSModuleIDs), strings.Join(st.HymoFSModuleIDs, ", "))
		return writeOutput(b.String())
	},
}
