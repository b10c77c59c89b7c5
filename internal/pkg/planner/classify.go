// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package planner

import (
	"path/filepath"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/pkg/config"
	"github.com/cctv18/hymo/pkg/sylog"
)

type classification struct {
	partitionLayers map[string][]string // partition -> layer dirs, in module priority order
	magicPaths      []string
	overlayIDs      map[string]bool
	magicIDs        map[string]bool
	redirectorIDs   map[string]bool
}

// classify implements spec.md §4.5 step 2: per-module classification into
// {redirect, overlay, magic}, with hybrid redirector+overlay participation
// when an auto-mode module under a redirector-available run also has
// content in a partition some module forced into overlay.
func classify(
	cfg config.Config,
	modules []inventory.Module,
	storageRoot string,
	partitions []string,
	requiredOverlayPartitions map[string]bool,
	redirectorAvailable bool,
) classification {
	cls := classification{
		partitionLayers: map[string][]string{},
		overlayIDs:      map[string]bool{},
		magicIDs:        map[string]bool{},
		redirectorIDs:   map[string]bool{},
	}

	for _, mod := range modules {
		contentPath := moduleRoot(storageRoot, mod.ID)
		if !fsutil.Exists(contentPath) {
			sylog.Debugf("planner: module %s content missing, skipping", mod.ID)
			continue
		}

		if !hasMeaningfulContent(contentPath, partitions) {
			continue
		}

		switch {
		case mod.Mode == config.ModeMagic:
			cls.magicPaths = append(cls.magicPaths, contentPath)
			cls.magicIDs[mod.ID] = true

		case mod.Mode == config.ModeOverlay || (mod.Mode == config.ModeAuto && !redirectorAvailable):
			if addOverlayLayers(&cls, contentPath, partitions) {
				cls.overlayIDs[mod.ID] = true
			}

		case mod.Mode == config.ModeAuto && redirectorAvailable:
			cls.redirectorIDs[mod.ID] = true
			addHybridOverlayLayers(&cls, contentPath, partitions, requiredOverlayPartitions)
		}
	}

	return cls
}

// addOverlayLayers appends contentPath's per-partition subdirectory to the
// overlay layer list for every partition that has content, returning
// whether the module contributed to at least one.
func addOverlayLayers(cls *classification, contentPath string, partitions []string) bool {
	participates := false
	for _, partition := range partitions {
		partPath := filepath.Join(contentPath, partition)
		if fsutil.IsDir(partPath) && hasFiles(partPath) {
			cls.partitionLayers[partition] = append(cls.partitionLayers[partition], partPath)
			participates = true
		}
	}
	return participates
}

// addHybridOverlayLayers appends contentPath's per-partition subdirectory
// only for partitions some module's content forced into required overlay,
// since a redirector-eligible module otherwise has no reason to also be
// layered under an overlay that will never exist.
func addHybridOverlayLayers(cls *classification, contentPath string, partitions []string, requiredOverlayPartitions map[string]bool) {
	for _, partition := range partitions {
		if !requiredOverlayPartitions[partition] {
			continue
		}
		partPath := filepath.Join(contentPath, partition)
		if fsutil.IsDir(partPath) && hasFiles(partPath) {
			cls.partitionLayers[partition] = append(cls.partitionLayers[partition], partPath)
		}
	}
}
