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

	"github.com/cctv18/hymo/pkg/config"
)

var genConfigCmd = &cobra.Command{
	Use:   "gen-config",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		cfg.ConfigPath = flagConfigFile
		if err := cfg.Save(flagConfigFile); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
		return writeOutput(fmt.Sprintf("wrote default configuration to %s\n", flagConfigFile))
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Print the effective configuration (file + CLI overrides)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return writeOutput(fmt.Sprintf("%+v\n", cfg))
	},
}
