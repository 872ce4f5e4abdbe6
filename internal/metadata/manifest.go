// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestFile is the only accepted manifest file name.
const ManifestFile = "Cargo.toml"

// ManifestError reports a manifest that cannot be resolved into a project.
type ManifestError struct {
	Path string
	Err  error
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("failed to resolve manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestError) Unwrap() error { return e.Err }

// ManifestPath is a path to a Cargo.toml file.
type ManifestPath struct {
	path string
}

// NewManifestPath validates that path names a Cargo.toml file. The file
// does not need to exist.
func NewManifestPath(path string) (ManifestPath, error) {
	if filepath.Base(path) != ManifestFile {
		return ManifestPath{}, &ManifestError{
			Path: path,
			Err:  fmt.Errorf("the manifest file name must be %s", ManifestFile),
		}
	}
	return ManifestPath{path: path}, nil
}

// FindManifest resolves the --manifest-path flag to an absolute path. An
// empty flag selects Cargo.toml in the current directory. The file must
// exist.
func FindManifest(flag string) (ManifestPath, error) {
	if flag == "" {
		flag = ManifestFile
	}
	if _, err := NewManifestPath(flag); err != nil {
		return ManifestPath{}, err
	}
	if _, err := os.Stat(flag); err != nil {
		return ManifestPath{}, &ManifestError{Path: flag, Err: err}
	}
	abs, err := filepath.Abs(flag)
	if err != nil {
		return ManifestPath{}, &ManifestError{Path: flag, Err: err}
	}
	return ManifestPath{path: abs}, nil
}

// String returns the path as given.
func (m ManifestPath) String() string {
	return m.path
}

// CargoArg returns the --manifest-path argument for cargo.
func (m ManifestPath) CargoArg() string {
	return "--manifest-path=" + m.path
}

// Directory returns the directory containing the manifest, or "" for a
// bare file name.
func (m ManifestPath) Directory() string {
	dir := filepath.Dir(m.path)
	if dir == "." {
		return ""
	}
	return dir
}

// AbsoluteDirectory returns the absolute directory of the manifest with
// symlinks resolved.
func (m ManifestPath) AbsoluteDirectory() (string, error) {
	abs, err := filepath.Abs(filepath.Dir(m.path))
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
