// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package aggregator generates the metadata-gen package: a small Rust
// program that links against a contract, calls each of its ABI entry
// points and prints the combined ABI.
package aggregator

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/qiniu/x/log"

	"github.com/goplus/cargo-near/internal/symbols"
)

const (
	// PackageName is the cargo package name of the generated program.
	PackageName = "metadata-gen"
	// Dir is the directory of the generated package, relative to the
	// workspace root.
	Dir = "metadata-gen"

	mainFile     = "main.rs"
	manifestFile = "Cargo.toml"

	contractAlias = "contract"
	abiRootType   = "near_sdk::__private::AbiRoot"
)

//go:embed main.rs.tpl
var tmplMain string

var mainTemplate = template.Must(template.New(mainFile).Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(tmplMain))

// Source is the model the generated main.rs is rendered from. Decls and
// Calls are in the same order.
type Source struct {
	RootType string   // ABI fragment type returned by every entry point
	Decls    []string // extern "Rust" function declarations
	Calls    []string // call expressions, one per declaration
}

// NewSource returns the source model for entryPoints, sorted by name.
func NewSource(entryPoints mapset.Set[string]) *Source {
	names := symbols.Sorted(entryPoints)
	src := &Source{
		RootType: abiRootType,
		Decls:    make([]string, 0, len(names)),
		Calls:    make([]string, 0, len(names)),
	}
	for _, name := range names {
		src.Decls = append(src.Decls, fmt.Sprintf("fn %s() -> %s;", name, src.RootType))
		src.Calls = append(src.Calls, fmt.Sprintf("unsafe { %s() }", name))
	}
	return src
}

// Render returns the main.rs text.
func (s *Source) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := mainTemplate.Execute(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Member describes how the generated package depends on the contract.
type Member struct {
	// ContractPackage is the cargo package name of the contract.
	ContractPackage string
	// ContractPath is the directory of the contract manifest.
	ContractPath string
	// Runtime is the near-sdk dependency entry copied from the contract.
	Runtime any
}

// Manifest returns the Cargo.toml of the generated package.
func (m *Member) Manifest() ([]byte, error) {
	doc := map[string]any{
		"package": map[string]any{
			"name":    PackageName,
			"version": "0.1.0",
			"edition": "2021",
			"publish": false,
		},
		"bin": []map[string]any{
			{"name": PackageName, "path": mainFile},
		},
		"dependencies": map[string]any{
			contractAlias: map[string]any{
				"path":    filepath.ToSlash(m.ContractPath),
				"package": m.ContractPackage,
			},
			"serde_json": "1.0",
			"near-sdk":   m.Runtime,
		},
	}
	return toml.Marshal(doc)
}

// Generate writes the metadata-gen package into dir, which must exist.
func Generate(dir string, m *Member, entryPoints mapset.Set[string]) error {
	log.Debugf("Generating metadata package for %s in %s", m.ContractPackage, dir)

	mainRs, err := NewSource(entryPoints).Render()
	if err != nil {
		return fmt.Errorf("render %s: %w", mainFile, err)
	}
	log.Debugf("%s contents:\n%s", mainFile, mainRs)

	manifest, err := m.Manifest()
	if err != nil {
		return fmt.Errorf("encode %s: %w", manifestFile, err)
	}
	log.Debugf("%s contents:\n%s", manifestFile, manifest)

	if err := os.WriteFile(filepath.Join(dir, manifestFile), manifest, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, mainFile), mainRs, 0o644)
}
