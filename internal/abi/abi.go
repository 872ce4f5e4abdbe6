// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package abi generates the ABI document of a NEAR contract: it builds
// the contract, finds its ABI entry points, runs a generated program
// calling them in a staged copy of the workspace and writes the combined
// result to <target>/near/abi.json.
package abi

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/qiniu/x/log"

	"github.com/goplus/cargo-near/internal/aggregator"
	"github.com/goplus/cargo-near/internal/build"
	"github.com/goplus/cargo-near/internal/cargo"
	"github.com/goplus/cargo-near/internal/metadata"
	"github.com/goplus/cargo-near/internal/symbols"
	"github.com/goplus/cargo-near/internal/workspace"
)

// FileName is the name of the generated document in the output directory.
const FileName = "abi.json"

// ErrNoEntryPoints reports a contract without ABI entry points when they
// are required.
var ErrNoEntryPoints = errors.New("no ABI entry points found")

// ExtractFunc lists the symbols with the given prefix exported by the
// library at path.
type ExtractFunc func(path, prefix string) (mapset.Set[string], error)

// Generator runs the ABI pipeline.
type Generator struct {
	inv     *cargo.Invoker
	builder *build.Builder
	extract ExtractFunc

	requireEntryPoints bool
	tempDir            string
}

// Option configures a Generator.
type Option func(*Generator)

// WithRequireEntryPoints makes a contract without entry points an error.
func WithRequireEntryPoints(require bool) Option {
	return func(g *Generator) { g.requireEntryPoints = require }
}

// WithTempDir sets the parent directory of workspace snapshots.
func WithTempDir(dir string) Option {
	return func(g *Generator) { g.tempDir = dir }
}

// WithExtractor replaces the symbol extractor.
func WithExtractor(fn ExtractFunc) Option {
	return func(g *Generator) { g.extract = fn }
}

// NewGenerator returns a Generator invoking cargo through inv.
func NewGenerator(inv *cargo.Invoker, opts ...Option) *Generator {
	g := &Generator{
		inv:     inv,
		builder: build.NewBuilder(inv),
		extract: symbols.EntryPoints,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate loads the project at manifest and runs Execute for it.
func (g *Generator) Generate(ctx context.Context, manifest metadata.ManifestPath) (string, error) {
	crate, err := metadata.Collect(ctx, g.inv, manifest)
	if err != nil {
		return "", err
	}
	return g.Execute(ctx, crate)
}

// Execute writes the ABI document of crate and returns its path. Nothing
// is written when any stage fails.
func (g *Generator) Execute(ctx context.Context, crate *metadata.Crate) (string, error) {
	runID := uuid.NewString()[:8]
	log.Infof("[%s] Generating ABI for %s %s", runID, crate.Root.Name, crate.Root.Version)

	lib, err := g.builder.Compile(ctx, crate)
	if err != nil {
		return "", err
	}
	entryPoints, err := g.extract(lib, symbols.Prefix)
	if err != nil {
		return "", err
	}
	if entryPoints.Cardinality() == 0 {
		if g.requireEntryPoints {
			return "", fmt.Errorf("%w in %s", ErrNoEntryPoints, lib)
		}
		log.Warnf("[%s] No ABI entry points found in %s, the ABI will be empty", runID, lib)
	}

	ws, err := workspace.New(crate.Metadata, crate.Root.ID,
		workspace.WithTempDir(g.tempDir), workspace.WithRunID(runID))
	if err != nil {
		return "", err
	}
	if err := ws.WithRootPackageManifest(workspace.AddCrateType("rlib"), workspace.SetReleaseLTO(false)); err != nil {
		return "", err
	}
	// cargo only honours profiles of the workspace root.
	if err := ws.WithWorkspaceManifest(workspace.SetReleaseLTO(false)); err != nil {
		return "", err
	}
	if err := ws.WithMetadataGen(entryPoints); err != nil {
		return "", err
	}

	out := filepath.Join(crate.TargetDir, FileName)
	err = ws.UsingTemp(func(s *workspace.Snapshot) error {
		stdout, err := g.inv.Run(ctx, cargo.Invocation{
			Command: "run",
			Args: []string{
				"--package", aggregator.PackageName,
				s.Manifest.CargoArg(),
				"--target-dir=" + crate.TargetDir,
				"--release",
			},
			Dir: s.Dir,
		})
		if err != nil {
			return err
		}
		doc, err := ParseDocument(stdout)
		if err != nil {
			return err
		}
		doc.SetMetadata(MetadataOf(crate.Root))
		data, err := doc.Encode()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDocumentWrite, err)
		}
		return WriteFile(out, data)
	})
	if err != nil {
		return "", err
	}
	log.Infof("[%s] ABI written to %s", runID, out)
	return out, nil
}
