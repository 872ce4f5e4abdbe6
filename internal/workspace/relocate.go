// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workspace

import (
	"path/filepath"

	"github.com/goplus/cargo-near/internal/cargo"
	"github.com/goplus/cargo-near/internal/metadata"
)

var dependencySections = []string{
	"dependencies", "dev-dependencies", "build-dependencies",
	"dev_dependencies", "build_dependencies",
}

// relocator maps paths found in a manifest once the manifest is moved
// into a snapshot.
type relocator struct {
	srcDir  string            // directory of the original manifest
	mirrors map[string]string // original package dir -> snapshot dir
}

// source resolves p against the original tree.
func (r *relocator) source(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.srcDir, filepath.FromSlash(p))
}

// dependency resolves p to the snapshot copy when the package is mirrored
// and to the original tree otherwise.
func (r *relocator) dependency(p string) string {
	abs := r.source(p)
	if snap, ok := r.mirrors[abs]; ok {
		return snap
	}
	return abs
}

// relocate pins every path of a mirrored manifest: target sources and
// package files point into the original tree, path dependencies into the
// snapshot or the original tree. pkg is nil for a virtual manifest.
func relocate(r *relocator, pkg *metadata.Package) Edit {
	return Edit{"relocate " + r.srcDir, func(doc map[string]any) error {
		r.dependencyTables(doc)
		if ws, ok := doc["workspace"].(map[string]any); ok {
			r.dependencyTable(ws["dependencies"])
			if p, ok := ws["package"].(map[string]any); ok {
				r.packageFiles(p)
			}
		}
		if targets, ok := doc["target"].(map[string]any); ok {
			for _, cfg := range targets {
				if cfg, ok := cfg.(map[string]any); ok {
					r.dependencyTables(cfg)
				}
			}
		}
		if patch, ok := doc["patch"].(map[string]any); ok {
			for _, registry := range patch {
				r.dependencyTable(registry)
			}
		}
		r.dependencyTable(doc["replace"])

		if p, ok := doc["package"].(map[string]any); ok {
			r.packageFiles(p)
		}
		if pkg != nil {
			return pinTargets(doc, pkg.Targets)
		}
		return nil
	}}
}

func (r *relocator) dependencyTables(t map[string]any) {
	for _, key := range dependencySections {
		r.dependencyTable(t[key])
	}
}

func (r *relocator) dependencyTable(v any) {
	deps, ok := v.(map[string]any)
	if !ok {
		return
	}
	for _, dep := range deps {
		if dep, ok := dep.(map[string]any); ok {
			if p, ok := dep["path"].(string); ok {
				dep["path"] = filepath.ToSlash(r.dependency(p))
			}
		}
	}
}

func (r *relocator) packageFiles(p map[string]any) {
	for _, key := range []string{"build", "readme", "license-file"} {
		if v, ok := p[key].(string); ok {
			p[key] = filepath.ToSlash(r.source(v))
		}
	}
}

func targetSection(t cargo.Target) string {
	for _, k := range t.Kind {
		switch k {
		case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
			return "lib"
		case "bin", "example", "test", "bench", "custom-build":
			return k
		}
	}
	return ""
}

// pinTargets records the source file of every target cargo discovered, as
// the snapshot holds no sources to discover them from.
func pinTargets(doc map[string]any, targets []cargo.Target) error {
	for _, t := range targets {
		src := filepath.ToSlash(t.SrcPath)
		switch section := targetSection(t); section {
		case "":
		case "custom-build":
			p, err := table(doc, "package")
			if err != nil {
				return err
			}
			p["build"] = src
		case "lib":
			lib, err := table(doc, "lib")
			if err != nil {
				return err
			}
			lib["path"] = src
		default:
			entries, err := array(doc, section)
			if err != nil {
				return err
			}
			found := false
			for _, e := range entries {
				if e, ok := e.(map[string]any); ok && e["name"] == t.Name {
					e["path"] = src
					found = true
				}
			}
			if !found {
				doc[section] = append(entries, map[string]any{"name": t.Name, "path": src})
			}
		}
	}
	return nil
}
