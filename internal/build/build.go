// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package build compiles a contract and locates the shared library it
// produced.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/qiniu/x/log"

	"github.com/goplus/cargo-near/internal/cargo"
	"github.com/goplus/cargo-near/internal/metadata"
)

// ErrNoArtifact reports a build that produced no shared library.
var ErrNoArtifact = errors.New("no shared library artifact produced")

// AmbiguousArtifactError reports a build that produced several shared
// libraries where exactly one was expected.
type AmbiguousArtifactError struct {
	Candidates []string
}

func (e *AmbiguousArtifactError) Error() string {
	return fmt.Sprintf("compilation resulted in more than one shared library: %q", e.Candidates)
}

// LibSuffix returns the shared library file suffix for goos.
func LibSuffix(goos string) string {
	switch goos {
	case "darwin", "ios":
		return ".dylib"
	case "windows":
		return ".dll"
	}
	return ".so"
}

// Builder compiles contracts with cargo.
type Builder struct {
	inv    *cargo.Invoker
	suffix string
}

// NewBuilder returns a Builder that looks for libraries of the host
// platform.
func NewBuilder(inv *cargo.Invoker) *Builder {
	return &Builder{inv: inv, suffix: LibSuffix(runtime.GOOS)}
}

// Compile builds crate in release mode and returns the path of the single
// shared library of the last compiler artifact. LTO is switched off so
// that the exported ABI entry points survive.
func (b *Builder) Compile(ctx context.Context, crate *metadata.Crate) (string, error) {
	inv := cargo.Invocation{
		Command: "build",
		Args: []string{
			"--release",
			"--message-format=json",
			"--target-dir=" + crate.TargetDir,
			crate.ManifestPath.CargoArg(),
		},
		Dir: crate.ManifestPath.Directory(),
		Env: []cargo.EnvVar{cargo.Set("CARGO_PROFILE_RELEASE_LTO", "off")},
	}

	var last *cargo.Artifact
	err := b.inv.Stream(ctx, inv, func(r io.Reader) error {
		for msg, err := range cargo.Messages(r) {
			if err != nil {
				return err
			}
			if msg.Artifact != nil {
				last = msg.Artifact
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if last == nil {
		return "", fmt.Errorf("%w: cargo reported no compilation artifacts, "+
			"please check that your project contains a NEAR smart contract", ErrNoArtifact)
	}
	return b.selectLibrary(last.Filenames)
}

func (b *Builder) selectLibrary(filenames []string) (string, error) {
	var libs []string
	for _, f := range filenames {
		if strings.HasSuffix(f, b.suffix) {
			libs = append(libs, f)
		}
	}
	switch len(libs) {
	case 0:
		return "", fmt.Errorf("%w: compilation resulted in no '%s' target files, "+
			"please check that your project contains a NEAR smart contract", ErrNoArtifact, b.suffix)
	case 1:
		log.Infof("Compiled artifact: %s", libs[0])
		return libs[0], nil
	}
	return "", &AmbiguousArtifactError{Candidates: libs}
}
