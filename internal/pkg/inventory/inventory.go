// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package inventory discovers and describes the modules active for a run.
package inventory

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cctv18/hymo/pkg/config"
	"github.com/cctv18/hymo/pkg/sylog"
)

// reservedIDs are directory names under ModuleDir that are never treated
// as modules.
var reservedIDs = map[string]bool{
	"hymo":       true,
	"lost+found": true,
	".git":       true,
}

// skipMarkers are top-level file names that, if present in a module
// directory, remove it from the active set for this run.
var skipMarkers = []string{"disable", "remove", "skipmount"}

// Module describes one module directory under Config.ModuleDir.
type Module struct {
	ID          string
	SourcePath  string
	Mode        config.Mode
	Name        string
	Version     string
	Author      string
	Description string
}

// Scan enumerates the immediate children of cfg.ModuleDir, keeping
// directories that are not reserved, carry no skip marker, and applying
// each module's configured mode. The result is sorted by ID lexicographically
// descending, matching the framework's traditional overlay precedence.
func Scan(cfg config.Config) ([]Module, error) {
	entries, err := os.ReadDir(cfg.ModuleDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading module directory %s: %w", cfg.ModuleDir, err)
	}

	modules := make([]Module, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		if reservedIDs[id] {
			continue
		}

		sourcePath := filepath.Join(cfg.ModuleDir, id)
		if hasSkipMarker(sourcePath) {
			continue
		}

		mode, ok := cfg.ModuleModes[id]
		if !ok || mode == "" {
			mode = config.ModeAuto
		}

		mod := Module{ID: id, SourcePath: sourcePath, Mode: mode}
		if err := parseModuleProp(&mod); err != nil {
			sylog.Warningf("module %s: %s", id, err)
		}
		modules = append(modules, mod)
	}

	sort.Slice(modules, func(i, j int) bool { return modules[i].ID > modules[j].ID })

	return modules, nil
}

func hasSkipMarker(sourcePath string) bool {
	for _, marker := range skipMarkers {
		if _, err := os.Stat(filepath.Join(sourcePath, marker)); err == nil {
			return true
		}
	}
	return false
}

// disableMarker is the skip marker Disable/Enable toggle; the other
// markers (remove, skipmount) are left to whatever created them.
const disableMarker = "disable"

// Disable drops a disable marker into moduleDir/id, removing it from the
// active set on the next Scan.
func Disable(moduleDir, id string) error {
	f, err := os.Create(filepath.Join(moduleDir, id, disableMarker))
	if err != nil {
		return fmt.Errorf("disabling module %s: %w", id, err)
	}
	return f.Close()
}

// Enable removes the disable marker from moduleDir/id, restoring it to
// the active set on the next Scan.
func Enable(moduleDir, id string) error {
	err := os.Remove(filepath.Join(moduleDir, id, disableMarker))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("enabling module %s: %w", id, err)
	}
	return nil
}

// parseModuleProp reads module.prop's line-oriented key=value pairs into
// mod. A missing file is not an error: the module keeps empty metadata.
func parseModuleProp(mod *Module) error {
	propPath := filepath.Join(mod.SourcePath, "module.prop")
	file, err := os.Open(propPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening module.prop: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			continue
		}

		key := line[:eq]
		value := line[eq+1:]
		switch key {
		case "name":
			mod.Name = value
		case "version":
			mod.Version = value
		case "author":
			mod.Author = value
		case "description":
			mod.Description = value
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading module.prop: %w", err)
	}
	return nil
}
