// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package main wires hymo's Cobra CLI straight into the CORE pipeline
// (config → inventory → sync → storage → planner → executor/redirector →
// state). The CLI surface itself carries no business logic beyond flag
// parsing and dispatch.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cctv18/hymo/internal/pkg/moduledesc"
	"github.com/cctv18/hymo/pkg/config"
	"github.com/cctv18/hymo/pkg/sylog"
)

// Default filesystem layout, per spec.md's Filesystem layout section.
const (
	defaultStateDir    = "/data/adb/hymo"
	defaultConfigFile  = defaultStateDir + "/config.toml"
	defaultMountPoint  = "/data/adb/modules_update"
	defaultImageName   = "modules.img"
	defaultStateFile   = "run/daemon_state.json"
	thisModuleID       = "hymo"
	thisModulePropFile = "module.prop"
)

var (
	flagConfigFile  string
	flagModuleDir   string
	flagTempDir     string
	flagMountSource string
	flagVerbose     bool
	flagPartitions  []string
	flagOutput      string
)

var rootCmd = &cobra.Command{
	Use:           "hymo",
	Short:         "Systemless modification framework coordinator",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runMount,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfigFile, "config", "c", defaultConfigFile, "configuration file")
	pf.StringVarP(&flagModuleDir, "moduledir", "m", "", "source module directory (overrides config)")
	pf.StringVarP(&flagTempDir, "tempdir", "t", "", "temporary directory (overrides config)")
	pf.StringVarP(&flagMountSource, "mountsource", "s", "", "redirector mount source label (overrides config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "print additional information")
	pf.StringArrayVarP(&flagPartitions, "partition", "p", nil, "extra partition name (repeatable)")
	pf.StringVarP(&flagOutput, "output", "o", "", "write command output to FILE instead of stdout")

	rootCmd.AddCommand(genConfigCmd, showConfigCmd, storageCmd, modulesCmd, reloadCmd, addCmd, deleteCmd)
}

// loadConfig reads config.toml (falling back to defaults) and applies the
// persistent flag overrides, matching spec.md §3's CLIOverrides precedence.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		return cfg, err
	}

	cfg.Merge(config.CLIOverrides{
		ModuleDir:   flagModuleDir,
		TempDir:     flagTempDir,
		MountSource: flagMountSource,
		Verbose:     flagVerbose,
		Partitions:  flagPartitions,
	})

	sylog.SetLevel(verbosityLevel(cfg.Verbose), false)
	return cfg, nil
}

func verbosityLevel(verbose bool) int {
	if verbose {
		return 4
	}
	return 1
}

func mountPointFor(cfg config.Config) string {
	return defaultMountPoint
}

func imagePathFor(cfg config.Config) string {
	return cfg.StateDir + "/" + defaultImageName
}

func stateFilePath(cfg config.Config) string {
	return cfg.StateDir + "/" + defaultStateFile
}

func thisModulePropPath(cfg config.Config) string {
	return cfg.ModuleDir + "/" + thisModuleID + "/" + thisModulePropFile
}

// writeOutput writes s either to flagOutput or, if unset, to stdout.
func writeOutput(s string) error {
	if flagOutput == "" {
		fmt.Print(s)
		return nil
	}
	return os.WriteFile(flagOutput, []byte(s), 0o644)
}

func recordModuleDescription(cfg config.Config, success bool, mode string, overlayCount, magicCount, hymofsCount int, warning string) {
	err := moduledesc.Update(thisModulePropPath(cfg), moduledesc.Summary{
		Success:      success,
		StorageMode:  mode,
		NukeActive:   cfg.EnableNuke,
		OverlayCount: overlayCount,
		MagicCount:   magicCount,
		HymoFSCount:  hymofsCount,
		Warning:      warning,
	})
	if err != nil {
		sylog.Warningf("failed to update module description: %s", err)
	}
}

// Execute runs the root command, exiting the process with status 1 on a
// fatal error per spec.md §6's exit-code contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		sylog.Errorf("%s", err)
		os.Exit(1)
	}
}
