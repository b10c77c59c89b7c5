// Copyright (c) Contributors to the Apptainer project, established as
//   Apptainer a Series of LF Projects LLC.
//   For website terms of use, trademark policy, privacy policy and other
//   project policies see https://lfprojects.org/policies
// Copyright (c) 2018-2022, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package redirector is the IOCTL control-plane client for the kernel
// path-redirector device.
package redirector

// DType mirrors the POSIX dirent d_type constants the redirector protocol
// uses to describe what kind of object a rule resolves to.
type DType uint8

const (
	DTUnknown DType = 0
	DTFifo    DType = 1
	DTChr     DType = 2
	DTDir     DType = 4
	DTBlk     DType = 6
	DTReg     DType = 8
	DTLnk     DType = 10
	DTSock    DType = 12
)

// RuleKind distinguishes the tagged variants of a redirector rule.
type RuleKind int

const (
	KindAdd RuleKind = iota
	KindDelete
	KindHide
	KindInjectDir
	KindClearAll
)

// Rule is a tagged-variant redirector operation. Exactly the fields
// relevant to Kind are meaningful; others are zero.
type Rule struct {
	Kind   RuleKind
	Src    string // lookup key: the path seen by processes
	Target string // backing path on disk (Add only)
	DType  DType  // directory-entry type (Add only)
}

// AddRule returns a rule that makes a lookup for src resolve to target as
// an object of kind dtype. Later adds for the same src overwrite.
func AddRule(src, target string, dtype DType) Rule {
	return Rule{Kind: KindAdd, Src: src, Target: target, DType: dtype}
}

// DeleteRule removes a previously added rule (or a hide/inject) keyed by
// src.
func DeleteRule(src string) Rule {
	return Rule{Kind: KindDelete, Src: src}
}

// HideRule masks the existence of path.
func HideRule(path string) Rule {
	return Rule{Kind: KindHide, Src: path}
}

// InjectDirRule declares path as a synthetic directory the redirector
// will enumerate even if it does not exist in the underlying filesystem.
func InjectDirRule(path string) Rule {
	return Rule{Kind: KindInjectDir, Src: path}
}

// ClearAllRule drops every rule currently installed.
func ClearAllRule() Rule {
	return Rule{Kind: KindClearAll}
}

// Batch is an ordered sequence of rules to apply in one burst. Order
// matters: spec.md §4.5 requires InjectDir rules before Add rules before
// Hide rules, so that lookups always find an injected parent directory
// before anything underneath it is resolved.
type Batch struct {
	rules []Rule
}

// Add appends a rule to the batch.
func (b *Batch) Add(r Rule) {
	b.rules = append(b.rules, r)
}

// Rules returns the batch contents in append order.
func (b *Batch) Rules() []Rule {
	return b.rules
}

// Ordered returns the batch contents reordered as ClearAll, then every
// InjectDir, then every Add, then every Hide/Delete — the sequencing the
// kernel-visible intermediate states must maintain (dirs first so lookups
// resolve, adds next, hides/deletes last).
func (b *Batch) Ordered() []Rule {
	var clears, injects, adds, rest []Rule
	for _, r := range b.rules {
		switch r.Kind {
		case KindClearAll:
			clears = append(clears, r)
		case KindInjectDir:
			injects = append(injects, r)
		case KindAdd:
			adds = append(adds, r)
		default:
			rest = append(rest, r)
		}
	}

	ordered := make([]Rule, 0, len(b.rules))
	ordered = append(ordered, clears...)
	ordered = append(ordered, injects...)
	ordered = append(ordered, adds...)
	ordered = append(ordered, rest...)
	return ordered
}
