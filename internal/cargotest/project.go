// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cargotest

import (
	"os"
	"path/filepath"
	"testing"
)

// Project is an on-disk contract project together with the metadata cargo
// would report for it.
type Project struct {
	Root     string // workspace root
	Dir      string // contract package directory
	Manifest string // contract Cargo.toml
	// Metadata mirrors `cargo metadata --format-version 1`.
	Metadata map[string]any
	// Files lists every file written, relative to Root.
	Files []string
}

const contractManifest = `[package]
name = "adder"
version = "0.1.0"
authors = ["Near Inc <hello@near.org>"]
edition = "2021"
readme = "README.md"

[lib]
crate-type = ["cdylib"]

[dependencies]
near-sdk = { version = "4.1.0", features = ["abi"], default-features = false, optional = false }
serde = { version = "1", features = ["derive"] }

[profile.release]
codegen-units = 1
opt-level = "z"
lto = true
`

// NewContract writes a single-package contract named "adder" under a
// fresh directory.
func NewContract(t testing.TB) *Project {
	t.Helper()
	root := canonical(t, t.TempDir())
	p := &Project{Root: root, Dir: root, Manifest: filepath.Join(root, "Cargo.toml")}
	p.write(t, "Cargo.toml", contractManifest)
	p.write(t, "Cargo.lock", "# This file is automatically @generated by Cargo.\nversion = 3\n")
	p.write(t, "README.md", "# adder\n")
	p.write(t, "src/lib.rs", "// contract\n")

	id := "path+file://" + root + "#adder@0.1.0"
	p.Metadata = map[string]any{
		"packages": []any{
			contractPackage(id, root),
			sdkPackage(),
		},
		"workspace_members": []any{id},
		"resolve":           map[string]any{"root": id},
		"target_directory":  filepath.Join(root, "target"),
		"workspace_root":    root,
		"version":           1,
	}
	return p
}

const workspaceManifest = `[workspace]
members = ["contracts/adder", "crates/util"]
resolver = "2"

[workspace.dependencies]
near-sdk = { version = "4.1.0", default-features = false }

[profile.release]
lto = true
`

const memberManifest = `[package]
name = "adder"
version = "0.1.0"
authors = ["Near Inc <hello@near.org>"]
edition = "2021"

[lib]
crate-type = ["cdylib"]

[dependencies]
near-sdk = { workspace = true, features = ["abi"] }
util = { path = "../../crates/util" }
borsh = { path = "../../../vendor/borsh" }
`

const utilManifest = `[package]
name = "util"
version = "0.2.0"
edition = "2021"
`

// NewWorkspace writes a virtual workspace with the contract under
// contracts/adder and a helper crate under crates/util.
func NewWorkspace(t testing.TB) *Project {
	t.Helper()
	base := canonical(t, t.TempDir())
	root := filepath.Join(base, "ws")
	dir := filepath.Join(root, "contracts", "adder")
	p := &Project{Root: root, Dir: dir, Manifest: filepath.Join(dir, "Cargo.toml")}
	p.write(t, "Cargo.toml", workspaceManifest)
	p.write(t, "rust-toolchain.toml", "[toolchain]\nchannel = \"stable\"\n")
	p.write(t, "contracts/adder/Cargo.toml", memberManifest)
	p.write(t, "contracts/adder/src/lib.rs", "// contract\n")
	p.write(t, "crates/util/Cargo.toml", utilManifest)
	p.write(t, "crates/util/src/lib.rs", "// util\n")

	id := "path+file://" + dir + "#adder@0.1.0"
	utilDir := filepath.Join(root, "crates", "util")
	utilID := "path+file://" + utilDir + "#util@0.2.0"
	p.Metadata = map[string]any{
		"packages": []any{
			contractPackage(id, dir),
			map[string]any{
				"id":            utilID,
				"name":          "util",
				"version":       "0.2.0",
				"authors":       []any{},
				"manifest_path": filepath.Join(utilDir, "Cargo.toml"),
				"targets": []any{map[string]any{
					"name":        "util",
					"kind":        []any{"lib"},
					"crate_types": []any{"lib"},
					"src_path":    filepath.Join(utilDir, "src", "lib.rs"),
				}},
				"dependencies": []any{},
			},
			sdkPackage(),
		},
		"workspace_members": []any{id, utilID},
		"resolve":           map[string]any{"root": id},
		"target_directory":  filepath.Join(root, "target"),
		"workspace_root":    root,
		"version":           1,
	}
	return p
}

func contractPackage(id, dir string) map[string]any {
	return map[string]any{
		"id":            id,
		"name":          "adder",
		"version":       "0.1.0",
		"authors":       []any{"Near Inc <hello@near.org>"},
		"manifest_path": filepath.Join(dir, "Cargo.toml"),
		"targets": []any{map[string]any{
			"name":        "adder",
			"kind":        []any{"cdylib"},
			"crate_types": []any{"cdylib"},
			"src_path":    filepath.Join(dir, "src", "lib.rs"),
		}},
		"dependencies": []any{
			map[string]any{"name": "near-sdk", "req": "^4.1.0", "kind": nil, "rename": nil, "optional": false},
		},
	}
}

func sdkPackage() map[string]any {
	return map[string]any{
		"id":            "registry+https://github.com/rust-lang/crates.io-index#near-sdk@4.1.0",
		"name":          "near-sdk",
		"version":       "4.1.0",
		"authors":       []any{"Near Inc <max@nearprotocol.com>"},
		"manifest_path": "/cargo/registry/near-sdk-4.1.0/Cargo.toml",
		"targets":       []any{},
		"dependencies":  []any{},
	}
}

func (p *Project) write(t testing.TB, rel, content string) {
	t.Helper()
	path := filepath.Join(p.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	p.Files = append(p.Files, rel)
}

// Snapshot returns the content of every project file keyed by its
// relative path.
func (p *Project) Snapshot(t testing.TB) map[string]string {
	t.Helper()
	files := make(map[string]string, len(p.Files))
	for _, rel := range p.Files {
		data, err := os.ReadFile(filepath.Join(p.Root, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		files[rel] = string(data)
	}
	return files
}

func canonical(t testing.TB, dir string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatalf("resolve %s: %v", dir, err)
	}
	return resolved
}
