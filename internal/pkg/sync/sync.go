// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sync materializes active modules into the writable mirror and
// repairs their SELinux contexts against the stock system tree.
package sync

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/cctv18/hymo/internal/pkg/fsutil"
	"github.com/cctv18/hymo/internal/pkg/inventory"
	"github.com/cctv18/hymo/internal/pkg/security/selinux"
	"github.com/cctv18/hymo/pkg/config"
	"github.com/cctv18/hymo/pkg/sylog"
)

var internalNames = map[string]bool{
	"lost+found": true,
	"hymo":       true,
}

// Sync brings storageRoot into a state where each module in modules that
// has content has a full, up-to-date copy under storageRoot/<id>, with
// repaired SELinux contexts, and no orphaned directories. Per-module copy
// or repair failures are logged and do not abort the run.
func Sync(modules []inventory.Module, storageRoot string, cfg config.Config) {
	sylog.Infof("starting module sync to %s", storageRoot)

	allPartitions := cfg.AllPartitions()

	pruneOrphans(modules, storageRoot)

	for _, mod := range modules {
		dst := filepath.Join(storageRoot, mod.ID)

		if !hasContent(mod.SourcePath, allPartitions) {
			sylog.Debugf("skipping empty module: %s", mod.ID)
			continue
		}

		if !shouldSync(mod.SourcePath, dst) {
			sylog.Debugf("skipping module: %s (up-to-date)", mod.ID)
			continue
		}

		sylog.Debugf("syncing module: %s", mod.ID)

		if fsutil.LExists(dst) {
			if err := os.RemoveAll(dst); err != nil {
				sylog.Warningf("failed to clean target dir for %s: %s", mod.ID, err)
			}
		}

		if err := syncDir(mod.SourcePath, dst); err != nil {
			sylog.Errorf("failed to sync module %s: %s", mod.ID, err)
			continue
		}

		repairModuleContexts(dst, mod.ID, allPartitions)
	}

	sylog.Infof("module sync completed")
}

func syncDir(src, dst string) error {
	if err := fsutil.CopyTree(src, dst); err != nil {
		return err
	}
	if err := fsutil.CopyTreeXattrs(src, dst); err != nil {
		sylog.Warningf("xattr transfer incomplete for %s: %s", dst, err)
	}
	return nil
}

func hasContent(modulePath string, partitions []string) bool {
	for _, partition := range partitions {
		found, err := fsutil.HasContent(filepath.Join(modulePath, partition))
		if err != nil {
			continue
		}
		if found {
			return true
		}
	}
	return false
}

func shouldSync(src, dst string) bool {
	if !fsutil.LExists(dst) {
		return true
	}

	srcProp := filepath.Join(src, "module.prop")
	dstProp := filepath.Join(dst, "module.prop")

	srcData, errSrc := os.ReadFile(srcProp)
	dstData, errDst := os.ReadFile(dstProp)
	if errSrc != nil || errDst != nil {
		return true
	}

	return !bytes.Equal(srcData, dstData)
}

func pruneOrphans(modules []inventory.Module, storageRoot string) {
	if !fsutil.Exists(storageRoot) {
		return
	}

	active := make(map[string]bool, len(modules))
	for _, mod := range modules {
		active[mod.ID] = true
	}

	entries, err := os.ReadDir(storageRoot)
	if err != nil {
		sylog.Warningf("failed to prune orphaned modules: %s", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if internalNames[name] || active[name] {
			continue
		}

		sylog.Infof("pruning orphaned module storage: %s", name)
		if err := os.RemoveAll(filepath.Join(storageRoot, name)); err != nil {
			sylog.Warningf("failed to remove orphan %s: %s", name, err)
		}
	}
}

// repairModuleContexts walks each partition subtree of a freshly-synced
// module and repairs SELinux contexts per recursiveContextRepair's rules.
func repairModuleContexts(moduleRoot, moduleID string, partitions []string) {
	sylog.Debugf("repairing SELinux contexts for module: %s", moduleID)

	for _, partition := range partitions {
		partRoot := filepath.Join(moduleRoot, partition)
		if !fsutil.IsDir(partRoot) {
			continue
		}
		if err := recursiveContextRepair(moduleRoot, partRoot); err != nil {
			sylog.Warningf("context repair failed for %s/%s: %s", moduleID, partition, err)
		}
	}
}

// recursiveContextRepair applies the context-repair heuristic from
// spec.md §4.3: upperdir/workdir entries inherit their parent's context
// (these names are overlay-internal and must never carry a stock system
// context); every other entry inherits the context of its corresponding
// system path, when that system path exists.
func recursiveContextRepair(base, current string) error {
	if !fsutil.LExists(current) {
		return nil
	}

	name := filepath.Base(current)
	switch name {
	case "upperdir", "workdir":
		parent := filepath.Dir(current)
		if err := selinux.CopyLabel(parent, current); err != nil {
			sylog.Debugf("context repair failed for %s: %s", current, err)
		}
	default:
		rel, err := filepath.Rel(base, current)
		if err != nil {
			return err
		}
		systemPath := filepath.Join("/", rel)
		if fsutil.LExists(systemPath) {
			if err := selinux.CopyLabel(systemPath, current); err != nil {
				sylog.Debugf("context repair failed for %s: %s", current, err)
			}
		}
	}

	if !fsutil.IsDir(current) {
		return nil
	}

	entries, err := os.ReadDir(current)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := recursiveContextRepair(base, filepath.Join(current, entry.Name())); err != nil {
			sylog.Debugf("context repair failed for %s: %s", filepath.Join(current, entry.Name()), err)
		}
	}
	return nil
}
