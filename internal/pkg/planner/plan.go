// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package planner classifies modules into redirector, overlay, or magic
// participation and materializes the overlay operations and redirector
// rule batch the executor will carry out.
package planner

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/internal/pkg/redirector"
	"github.com/cctv18/hymo/pkg/config"
)

// OverlayOperation is one overlay mount the executor must perform: target
// is an absolute, already-resolved directory; LowerDirs is ordered
// top-to-bottom priority (highest-priority layer first).
type OverlayOperation struct {
	Target    string
	LowerDirs []string
}

// Plan is the complete output of a planning run.
type Plan struct {
	OverlayOps          []OverlayOperation
	MagicModulePaths    []string
	OverlayModuleIDs    []string
	MagicModuleIDs      []string
	RedirectorModuleIDs []string
	RuleBatch           redirector.Batch
}

// IsCoveredByOverlay reports whether path equals or lies strictly beneath
// some overlay operation's target.
func (p *Plan) IsCoveredByOverlay(path string) bool {
	for _, op := range p.OverlayOps {
		if path == op.Target || strings.HasPrefix(path, strings.TrimRight(op.Target, "/")+"/") {
			return true
		}
	}
	return false
}

// Build runs the full planning pipeline: forced-overlay scan, per-module
// classification, overlay-op materialization, and (when redirectorAvailable)
// redirector rule-batch construction.
func Build(cfg config.Config, modules []inventory.Module, storageRoot string, redirectorAvailable bool) *Plan {
	partitions := cfg.AllPartitions()

	requiredOverlays := scanForcedOverlays(modules, storageRoot, partitions)
	requiredOverlayPartitions := partitionsOf(requiredOverlays, partitions)

	cls := classify(cfg, modules, storageRoot, partitions, requiredOverlayPartitions, redirectorAvailable)

	plan := &Plan{
		MagicModulePaths:    cls.magicPaths,
		OverlayModuleIDs:    sortedKeys(cls.overlayIDs),
		MagicModuleIDs:      sortedKeys(cls.magicIDs),
		RedirectorModuleIDs: sortedKeys(cls.redirectorIDs),
	}

	plan.OverlayOps = materializeOverlayOps(cls.partitionLayers)

	if len(cls.redirectorIDs) > 0 {
		plan.RuleBatch = buildRuleBatch(modules, storageRoot, partitions, plan)
	}

	return plan
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}

func hasFiles(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	return len(entries) > 0
}

func hasMeaningfulContent(base string, partitions []string) bool {
	for _, part := range partitions {
		p := filepath.Join(base, part)
		if fsutil.IsDir(p) && hasFiles(p) {
			return true
		}
	}
	return false
}
