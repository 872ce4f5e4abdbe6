// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version reports the version of the cargo-near binary.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
)

// Version is the release version; it may be set with
// -ldflags "-X github.com/goplus/cargo-near/internal/version.Version=...".
var Version = "0.1.0"

// gitCommit may be set by the linker when the build runs outside a VCS
// checkout.
var gitCommit string

const shortCommitLen = 7

// VCSInfo is the repository state the binary was built from.
type VCSInfo struct {
	Commit string
	Dirty  bool
}

// VCS returns version control information of the current executable.
func VCS() (VCSInfo, bool) {
	if gitCommit != "" {
		return VCSInfo{Commit: gitCommit}, true
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		return buildInfoVCS(info)
	}
	return VCSInfo{}, false
}

func buildInfoVCS(info *debug.BuildInfo) (s VCSInfo, ok bool) {
	for _, v := range info.Settings {
		switch v.Key {
		case "vcs.revision":
			s.Commit = v.Value
		case "vcs.modified":
			s.Dirty = v.Value == "true"
		}
	}
	return s, s.Commit != ""
}

// String returns <version>[-<commit>]-<arch>-<os>.
func String() string {
	vcs, _ := VCS()
	return format(Version, vcs, runtime.GOARCH, runtime.GOOS)
}

func format(version string, vcs VCSInfo, goarch, goos string) string {
	parts := []string{strings.TrimPrefix(version, "v")}
	if commit := vcs.Commit; commit != "" {
		if len(commit) > shortCommitLen {
			commit = commit[:shortCommitLen]
		}
		if vcs.Dirty {
			commit += "+dirty"
		}
		parts = append(parts, commit)
	}
	parts = append(parts, goarch, goos)
	return strings.Join(parts, "-")
}
