// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package workspace stages a modified copy of a cargo workspace's
// manifests in a temporary directory. The original files are only ever
// read.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/qiniu/x/log"

	"github.com/goplus/cargo-near/internal/aggregator"
	"github.com/goplus/cargo-near/internal/metadata"
)

// SnapshotError reports a failure to read the workspace or to stage its
// snapshot.
type SnapshotError struct {
	Op   string
	Path string
	Err  error
}

func (e *SnapshotError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("workspace snapshot: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("workspace snapshot: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// auxFiles are copied from the workspace root when present.
var auxFiles = []string{
	"Cargo.lock",
	"rust-toolchain",
	"rust-toolchain.toml",
	filepath.Join(".cargo", "config.toml"),
	filepath.Join(".cargo", "config"),
}

// member is a manifest of the workspace, keyed by its directory relative
// to the workspace root.
type member struct {
	rel      string
	pkg      *metadata.Package // nil for a virtual workspace root
	manifest *Manifest
}

// Workspace holds the manifests of a cargo workspace, edited in memory.
type Workspace struct {
	root    string
	members map[string]*member
	rootPkg *member

	tempDir string
	runID   string

	gen *metadataGen
}

type metadataGen struct {
	entryPoints mapset.Set[string]
	runtime     any
	runtimeDir  string // directory a relative runtime path is based on
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithTempDir sets the parent directory of snapshots. Empty means the
// default temporary directory.
func WithTempDir(dir string) Option {
	return func(w *Workspace) { w.tempDir = dir }
}

// WithRunID names snapshot directories after id.
func WithRunID(id string) Option {
	return func(w *Workspace) { w.runID = id }
}

// New reads the manifests of every workspace member of meta. rootID
// identifies the package the edits are meant for.
func New(meta *metadata.Metadata, rootID string, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		root:    filepath.Clean(meta.WorkspaceRoot),
		members: make(map[string]*member),
	}
	for _, opt := range opts {
		opt(w)
	}

	for _, pkg := range meta.Members() {
		dir := filepath.Dir(pkg.ManifestPath)
		rel, err := filepath.Rel(w.root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, &SnapshotError{Op: "mirror", Path: pkg.ManifestPath,
				Err: fmt.Errorf("package %s lies outside the workspace root %s", pkg.Name, w.root)}
		}
		m, err := ReadManifest(pkg.ManifestPath)
		if err != nil {
			return nil, &SnapshotError{Op: "read", Path: pkg.ManifestPath, Err: err}
		}
		w.members[rel] = &member{rel: rel, pkg: pkg, manifest: m}
		if pkg.ID == rootID {
			w.rootPkg = w.members[rel]
		}
	}
	if w.rootPkg == nil {
		return nil, &SnapshotError{Op: "mirror", Err: fmt.Errorf("root package %s is not a workspace member", rootID)}
	}
	if _, ok := w.members["."]; !ok {
		path := filepath.Join(w.root, metadata.ManifestFile)
		m, err := ReadManifest(path)
		if err != nil {
			return nil, &SnapshotError{Op: "read", Path: path, Err: err}
		}
		w.members["."] = &member{rel: ".", manifest: m}
	}
	return w, nil
}

// RootManifest returns the manifest of the root package.
func (w *Workspace) RootManifest() *Manifest {
	return w.rootPkg.manifest
}

// WorkspaceManifest returns the manifest at the workspace root. It is the
// root package manifest for a single-package project.
func (w *Workspace) WorkspaceManifest() *Manifest {
	return w.members["."].manifest
}

// WithRootPackageManifest applies edits to the root package manifest.
func (w *Workspace) WithRootPackageManifest(edits ...Edit) error {
	return apply(w.RootManifest(), edits)
}

// WithWorkspaceManifest applies edits to the workspace root manifest.
func (w *Workspace) WithWorkspaceManifest(edits ...Edit) error {
	return apply(w.WorkspaceManifest(), edits)
}

func apply(m *Manifest, edits []Edit) error {
	if err := m.Apply(edits...); err != nil {
		return &SnapshotError{Op: "edit", Path: m.Path(), Err: err}
	}
	return nil
}

// WithMetadataGen registers the generated metadata-gen package as a
// workspace member. It is materialized for entryPoints when the snapshot
// is staged.
func (w *Workspace) WithMetadataGen(entryPoints mapset.Set[string]) error {
	runtime, runtimeDir, err := w.RuntimeDependency()
	if err != nil {
		return err
	}
	if err := w.WithWorkspaceManifest(AddMember(aggregator.Dir)); err != nil {
		return err
	}
	w.gen = &metadataGen{entryPoints: entryPoints, runtime: runtime, runtimeDir: runtimeDir}
	return nil
}

// strippedDependencyKeys turn a dependency entry into a plain one.
var strippedDependencyKeys = []string{"default-features", "default_features", "features", "optional", "workspace"}

// RuntimeDependency returns the root package's near-sdk dependency entry,
// resolved through workspace inheritance and stripped of feature
// selection, together with the directory its relative paths are based on.
func (w *Workspace) RuntimeDependency() (any, string, error) {
	m := w.RootManifest()
	fail := func(err error) (any, string, error) {
		return nil, "", &SnapshotError{Op: "resolve " + metadata.RuntimePackage, Path: m.Path(), Err: err}
	}

	key, dep, ok := findRuntime(m)
	if !ok {
		return fail(fmt.Errorf("no %s dependency found", metadata.RuntimePackage))
	}
	dir := filepath.Dir(m.Path())

	if t, ok := dep.(map[string]any); ok && t["workspace"] == true {
		ws := w.WorkspaceManifest()
		inherited, ok := ws.Get("workspace", "dependencies", key)
		if !ok {
			return fail(fmt.Errorf("%s inherits %s from the workspace, but [workspace.dependencies] has no entry", key, metadata.RuntimePackage))
		}
		merged := make(map[string]any)
		if v, ok := inherited.(string); ok {
			merged["version"] = v
		} else if v, ok := inherited.(map[string]any); ok {
			merged = cloneValue(v).(map[string]any)
		} else {
			return fail(fmt.Errorf("unsupported workspace dependency %s: %T", key, inherited))
		}
		for k, v := range t {
			merged[k] = cloneValue(v)
		}
		dep, dir = merged, filepath.Dir(ws.Path())
	}

	switch v := dep.(type) {
	case string:
		return v, dir, nil
	case map[string]any:
		out := cloneValue(v).(map[string]any)
		for _, k := range strippedDependencyKeys {
			delete(out, k)
		}
		return out, dir, nil
	}
	return fail(fmt.Errorf("unsupported %s dependency: %T", metadata.RuntimePackage, dep))
}

func findRuntime(m *Manifest) (string, any, bool) {
	v, _ := m.Get("dependencies")
	deps, ok := v.(map[string]any)
	if !ok {
		return "", nil, false
	}
	if dep, ok := deps[metadata.RuntimePackage]; ok {
		if t, ok := dep.(map[string]any); !ok || t["package"] == nil || t["package"] == metadata.RuntimePackage {
			return metadata.RuntimePackage, dep, true
		}
	}
	keys := make([]string, 0, len(deps))
	for k := range deps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if t, ok := deps[k].(map[string]any); ok && t["package"] == metadata.RuntimePackage {
			return k, t, true
		}
	}
	return "", nil, false
}

// Snapshot is a staged copy of the workspace.
type Snapshot struct {
	// Dir mirrors the workspace root.
	Dir string
	// Manifest is the workspace root manifest of the snapshot.
	Manifest metadata.ManifestPath
	// PackageManifest is the root package manifest of the snapshot.
	PackageManifest metadata.ManifestPath
}

// UsingTemp stages the edited workspace in a new temporary directory and
// calls f with it. The directory is removed when f returns, whatever the
// outcome; a removal failure is logged and does not replace the result.
func (w *Workspace) UsingTemp(f func(s *Snapshot) error) error {
	pattern := "cargo-near-*"
	if w.runID != "" {
		pattern = "cargo-near-" + w.runID + "-*"
	}
	dir, err := os.MkdirTemp(w.tempDir, pattern)
	if err != nil {
		return &SnapshotError{Op: "create", Path: w.tempDir, Err: err}
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warnf("Failed to remove workspace snapshot %s: %v", dir, err)
		} else {
			log.Debugf("Removed workspace snapshot %s", dir)
		}
	}()
	log.Infof("Staging workspace %s in %s", w.root, dir)

	snap, err := w.stage(dir)
	if err != nil {
		return err
	}
	return f(snap)
}

func (w *Workspace) stage(dir string) (*Snapshot, error) {
	mirrors := make(map[string]string, len(w.members))
	rels := make([]string, 0, len(w.members))
	for rel := range w.members {
		mirrors[filepath.Join(w.root, rel)] = filepath.Join(dir, rel)
		rels = append(rels, rel)
	}
	sort.Strings(rels)

	for _, rel := range rels {
		m := w.members[rel]
		staged := m.manifest.Clone()
		r := &relocator{srcDir: filepath.Join(w.root, rel), mirrors: mirrors}
		if err := staged.Apply(relocate(r, m.pkg)); err != nil {
			return nil, &SnapshotError{Op: "relocate", Path: m.manifest.Path(), Err: err}
		}
		data, err := staged.Encode()
		if err != nil {
			return nil, &SnapshotError{Op: "encode", Path: m.manifest.Path(), Err: err}
		}
		target := filepath.Join(dir, rel, metadata.ManifestFile)
		if err := writeFile(target, data); err != nil {
			return nil, &SnapshotError{Op: "write", Path: target, Err: err}
		}
		log.Debugf("Staged %s as %s", m.manifest.Path(), target)
	}

	for _, name := range auxFiles {
		src := filepath.Join(w.root, name)
		data, err := os.ReadFile(src)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, &SnapshotError{Op: "read", Path: src, Err: err}
		}
		target := filepath.Join(dir, name)
		if err := writeFile(target, data); err != nil {
			return nil, &SnapshotError{Op: "write", Path: target, Err: err}
		}
	}

	contractDir := filepath.Join(dir, w.rootPkg.rel)
	if w.gen != nil {
		if err := w.generate(dir, contractDir, mirrors); err != nil {
			return nil, err
		}
	}

	return &Snapshot{
		Dir:             dir,
		Manifest:        manifestPath(dir),
		PackageManifest: manifestPath(contractDir),
	}, nil
}

func (w *Workspace) generate(dir, contractDir string, mirrors map[string]string) error {
	genDir := filepath.Join(dir, aggregator.Dir)
	if err := os.MkdirAll(genDir, 0o755); err != nil {
		return &SnapshotError{Op: "create", Path: genDir, Err: err}
	}
	runtime := cloneValue(w.gen.runtime)
	if t, ok := runtime.(map[string]any); ok {
		if p, ok := t["path"].(string); ok {
			r := &relocator{srcDir: w.gen.runtimeDir, mirrors: mirrors}
			t["path"] = filepath.ToSlash(r.dependency(p))
		}
	}
	m := &aggregator.Member{
		ContractPackage: w.rootPkg.pkg.Name,
		ContractPath:    contractDir,
		Runtime:         runtime,
	}
	if err := aggregator.Generate(genDir, m, w.gen.entryPoints); err != nil {
		return &SnapshotError{Op: "generate", Path: genDir, Err: err}
	}
	return nil
}

func manifestPath(dir string) metadata.ManifestPath {
	// The name is always Cargo.toml, so this cannot fail.
	p, _ := metadata.NewManifestPath(filepath.Join(dir, metadata.ManifestFile))
	return p
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
