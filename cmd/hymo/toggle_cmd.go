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

	"github.com/cctv18/hymo/internal/pkg/inventory"
)

var addCmd = &cobra.Command{
	Use:   "add <module_id>",
	Short: "Re-enable a module and re-run the mount pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := inventory.Enable(cfg.ModuleDir, args[0]); err != nil {
			return err
		}
		return runMount(cmd, nil)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <module_id>",
	Short: "Disable a module and re-run the mount pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := inventory.Disable(cfg.ModuleDir, args[0]); err != nil {
			return err
		}
		if err := runMount(cmd, nil); err != nil {
			return err
		}
		return writeOutput(fmt.Sprintf("module %s disabled\n", args[0]))
	},
}
