// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadata resolves a contract project through `cargo metadata`.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qiniu/x/log"
	"golang.org/x/mod/semver"

	"github.com/goplus/cargo-near/internal/cargo"
)

// RuntimePackage is the crate providing the ABI runtime.
const RuntimePackage = "near-sdk"

// Metadata is the subset of `cargo metadata --format-version 1` output
// cargo-near uses.
type Metadata struct {
	Packages         []*Package `json:"packages"`
	WorkspaceMembers []string   `json:"workspace_members"`
	Resolve          *Resolve   `json:"resolve"`
	TargetDirectory  string     `json:"target_directory"`
	WorkspaceRoot    string     `json:"workspace_root"`
}

// Resolve is the dependency resolution section.
type Resolve struct {
	Root *string `json:"root"`
}

// Package is one package of the build graph.
type Package struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Authors      []string       `json:"authors"`
	ManifestPath string         `json:"manifest_path"`
	Targets      []cargo.Target `json:"targets"`
	Dependencies []Dependency   `json:"dependencies"`
}

// Dependency is a declared dependency of a package.
type Dependency struct {
	Name     string  `json:"name"`
	Req      string  `json:"req"`
	Kind     *string `json:"kind"`
	Rename   *string `json:"rename"`
	Optional bool    `json:"optional"`
	Path     *string `json:"path"`
}

// Package returns the package with the given id.
func (m *Metadata) Package(id string) (*Package, bool) {
	for _, p := range m.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Members returns the workspace member packages in declaration order.
func (m *Metadata) Members() []*Package {
	members := make([]*Package, 0, len(m.WorkspaceMembers))
	for _, id := range m.WorkspaceMembers {
		if p, ok := m.Package(id); ok {
			members = append(members, p)
		}
	}
	return members
}

// LibTarget returns the library target of the package, if any.
func (p *Package) LibTarget() (cargo.Target, bool) {
	for _, t := range p.Targets {
		for _, k := range t.Kind {
			switch k {
			case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
				return t, true
			}
		}
	}
	return cargo.Target{}, false
}

// BuildScript returns the build script source, if any.
func (p *Package) BuildScript() (string, bool) {
	for _, t := range p.Targets {
		for _, k := range t.Kind {
			if k == "custom-build" {
				return t.SrcPath, true
			}
		}
	}
	return "", false
}

// Crate is the resolved contract project. It is read-only once collected.
type Crate struct {
	ManifestPath ManifestPath
	Metadata     *Metadata
	Root         *Package
	// TargetDir is the shared output directory for builds and abi.json.
	TargetDir string
}

// Collect runs `cargo metadata` for manifest and resolves the root package
// and the output directory.
func Collect(ctx context.Context, inv *cargo.Invoker, manifest ManifestPath) (*Crate, error) {
	log.Infof("Fetching cargo metadata for %s", manifest)
	out, err := inv.Run(ctx, cargo.Invocation{
		Command: "metadata",
		Args:    []string{"--format-version", "1", manifest.CargoArg()},
	})
	if err != nil {
		return nil, &ManifestError{Path: manifest.String(), Err: fmt.Errorf("error invoking `cargo metadata`: %w", err)}
	}
	var meta Metadata
	if err := json.Unmarshal(out, &meta); err != nil {
		return nil, &ManifestError{Path: manifest.String(), Err: fmt.Errorf("invalid `cargo metadata` output: %w", err)}
	}
	return NewCrate(manifest, &meta)
}

// NewCrate resolves the root package of meta and derives the output
// directory. When the manifest is a member inside a larger workspace, the
// output directory gets a per-package sub-folder.
func NewCrate(manifest ManifestPath, meta *Metadata) (*Crate, error) {
	fail := func(err error) (*Crate, error) {
		return nil, &ManifestError{Path: manifest.String(), Err: err}
	}
	if meta.Resolve == nil || meta.Resolve.Root == nil {
		return fail(errors.New("cannot infer the root project id"))
	}
	root, ok := meta.Package(*meta.Resolve.Root)
	if !ok {
		return fail(fmt.Errorf("root package %s is not in the package list", *meta.Resolve.Root))
	}
	if !semver.IsValid("v" + root.Version) {
		return fail(fmt.Errorf("package %s has an invalid version %q", root.Name, root.Version))
	}
	if v, ok := meta.RuntimeVersion(); ok {
		log.Infof("Resolved %s %s", RuntimePackage, v)
	}

	targetDir := filepath.Join(meta.TargetDirectory, "near")

	manifestDir, err := manifest.AbsoluteDirectory()
	if err != nil {
		return fail(err)
	}
	workspaceRoot, err := filepath.EvalSymlinks(meta.WorkspaceRoot)
	if err != nil {
		return fail(err)
	}
	if manifestDir != workspaceRoot {
		// A package in a workspace gets its own sub-folder.
		targetDir = filepath.Join(targetDir, strings.ReplaceAll(root.Name, "-", "_"))
	}

	return &Crate{
		ManifestPath: manifest,
		Metadata:     meta,
		Root:         root,
		TargetDir:    targetDir,
	}, nil
}

// RuntimeVersion returns the canonical semver of the resolved ABI runtime
// package. With several versions in the graph it reports the highest.
func (m *Metadata) RuntimeVersion() (string, bool) {
	best := ""
	for _, p := range m.Packages {
		if p.Name != RuntimePackage {
			continue
		}
		v := "v" + p.Version
		if semver.IsValid(v) && (best == "" || semver.Compare(v, best) > 0) {
			best = v
		}
	}
	if best == "" {
		return "", false
	}
	return semver.Canonical(best), true
}
