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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cctv18/hymo/internal/pkg/executor"
	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/internal/pkg/planner"
	"github.com/cctv18/hymo/internal/pkg/redirector"
	"github.com/cctv18/hymo/internal/pkg/state"
	"github.com/cctv18/hymo/internal/pkg/storage"
	"github.com/cctv18/hymo/internal/pkg/sync"
	"github.com/cctv18/hymo/pkg/sylog"
)

// runMount is the default pipeline: Config → Inventory → Sync →
// Storage(ready) → Planner → {Executor, Redirector} → State.save, per
// spec.md §2's data flow.
func runMount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	modules, err := inventory.Scan(cfg)
	if err != nil {
		return fmt.Errorf("scanning modules: %w", err)
	}

	mntDir := mountPointFor(cfg)
	handle, err := storage.Setup(mntDir, imagePathFor(cfg), cfg.ForceExt4)
	if err != nil {
		recordModuleDescription(cfg, false, "none", 0, 0, 0, err.Error())
		return fmt.Errorf("storage setup: %w", err)
	}

	sync.Sync(modules, handle.MountPoint, cfg)
	if err := storage.FinalizePermissions(handle.MountPoint); err != nil {
		sylog.Warningf("%s", err)
	}

	client := redirector.NewClient()
	redirectorAvailable := client.IsAvailable()
	if !redirectorAvailable && !cfg.IgnoreProtoMismatch {
		sylog.Warningf("redirector device unavailable or protocol mismatch, forcing overlay-only classification")
	}

	plan := planner.Build(cfg, modules, handle.MountPoint, redirectorAvailable)

	result := executor.Execute(plan, cfg.DisableUmount)

	mismatch := !redirectorAvailable && len(plan.RedirectorModuleIDs) > 0
	mismatchMessage := ""
	if redirectorAvailable {
		if err := client.Apply(plan.RuleBatch.Ordered()); err != nil {
			sylog.Errorf("applying redirector rule batch: %s", err)
			mismatch = true
			mismatchMessage = err.Error()
		}
	}

	activeMounts := activePartitions(plan, cfg.AllPartitions())

	st := state.Runtime{
		StorageMode:      string(handle.Mode),
		MountPoint:       handle.MountPoint,
		OverlayModuleIDs: result.OverlayModuleIDs,
		MagicModuleIDs:   result.MagicModuleIDs,
		HymoFSModuleIDs:  plan.RedirectorModuleIDs,
		ActiveMounts:     activeMounts,
		NukeActive:       cfg.EnableNuke,
		HymoFSMismatch:   mismatch,
		MismatchMessage:  mismatchMessage,
	}
	if err := st.Save(stateFilePath(cfg)); err != nil {
		sylog.Warningf("failed to persist run state: %s", err)
	}

	recordModuleDescription(cfg, true, string(handle.Mode),
		len(result.OverlayModuleIDs), len(result.MagicModuleIDs), len(plan.RedirectorModuleIDs), mismatchMessage)

	sylog.Infof("mount complete: %d overlay, %d magic, %d hymofs modules",
		len(result.OverlayModuleIDs), len(result.MagicModuleIDs), len(plan.RedirectorModuleIDs))
	return nil
}

// activePartitions collects the distinct partition names any overlay
// operation or magic-mounted module touched.
func activePartitions(plan *planner.Plan, partitions []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, op := range plan.OverlayOps {
		part := filepath.Base(op.Target)
		if !seen[part] {
			seen[part] = true
			out = append(out, part)
		}
	}
	for _, modPath := range plan.MagicModulePaths {
		for _, part := range partitions {
			if !seen[part] && fsutil.IsDir(filepath.Join(modPath, part)) {
				seen[part] = true
				out = append(out, part)
			}
		}
	}
	return out
}
