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
	"github.com/cctv18/hymo/internal/pkg/planner"
	"github.com/cctv18/hymo/internal/pkg/redirector"
	"github.com/cctv18/hymo/internal/pkg/state"
	"github.com/cctv18/hymo/pkg/sylog"
)

// reloadCmd re-runs the planner in redirector mode and reapplies the rule
// batch, without re-syncing storage or re-running the overlay executor
// (spec.md §6: "re-run plan in redirector mode without re-syncing
// storage"). The persisted daemon_state.json is used only to recover the
// mirror's mount point, never to decide whether a mount exists.
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild and reapply the redirector rule batch from the last mirror",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := state.Load(stateFilePath(cfg))
		if err != nil {
			return fmt.Errorf("loading run state: %w", err)
		}
		if st.MountPoint == "" {
			return fmt.Errorf("no prior run found in %s; run \"mount\" first", stateFilePath(cfg))
		}

		modules, err := inventory.Scan(cfg)
		if err != nil {
			return fmt.Errorf("scanning modules: %w", err)
		}

		client := redirector.NewClient()
		if !client.IsAvailable() {
			return fmt.Errorf("redirector device unavailable, cannot reload")
		}

		plan := planner.Build(cfg, modules, st.MountPoint, true)
		if err := client.Apply(plan.RuleBatch.Ordered()); err != nil {
			return fmt.Errorf("applying redirector rule batch: %w", err)
		}

		st.HymoFSModuleIDs = plan.RedirectorModuleIDs
		st.HymoFSMismatch = false
		st.MismatchMessage = ""
		if err := st.Save(stateFilePath(cfg)); err != nil {
			sylog.Warningf("failed to persist reloaded state: %s", err)
		}

		sylog.Infof("reload complete: %d hymofs modules", len(plan.RedirectorModuleIDs))
		return nil
	},
}
