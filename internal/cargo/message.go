// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Message reasons emitted by `cargo build --message-format=json`.
const (
	ReasonCompilerArtifact = "compiler-artifact"
	ReasonCompilerMessage  = "compiler-message"
	ReasonBuildScript      = "build-script-executed"
	ReasonBuildFinished    = "build-finished"

	// ReasonText marks a line that is not a JSON message.
	ReasonText = "text"
)

// Target is the build target an artifact belongs to.
type Target struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
	SrcPath    string   `json:"src_path"`
}

// Artifact is the payload of a compiler-artifact message.
type Artifact struct {
	PackageID    string   `json:"package_id"`
	ManifestPath string   `json:"manifest_path"`
	Target       Target   `json:"target"`
	Filenames    []string `json:"filenames"`
	Executable   string   `json:"executable"`
	Fresh        bool     `json:"fresh"`
}

// Message is one build event. Artifact is set only when Reason is
// ReasonCompilerArtifact; every other reason carries no payload here.
type Message struct {
	Reason   string
	Artifact *Artifact
}

// Messages decodes cargo's line-delimited JSON output lazily. Lines that
// are not JSON objects are yielded as ReasonText. Decoding stops at the
// first malformed JSON line, which is yielded as an error.
func Messages(r io.Reader) iter.Seq2[Message, error] {
	return func(yield func(Message, error) bool) {
		br := bufio.NewReader(r)
		for lineNo := 1; ; lineNo++ {
			line, readErr := br.ReadBytes('\n')
			if readErr != nil && !errors.Is(readErr, io.EOF) {
				yield(Message{}, readErr)
				return
			}
			line = bytes.TrimSpace(line)
			if len(line) > 0 {
				msg, err := parseMessage(line)
				if err != nil {
					yield(Message{}, fmt.Errorf("cargo message on line %d: %w", lineNo, err))
					return
				}
				if !yield(msg, nil) {
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}
}

func parseMessage(line []byte) (Message, error) {
	if line[0] != '{' {
		return Message{Reason: ReasonText}, nil
	}
	var head struct {
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(line, &head); err != nil {
		return Message{}, err
	}
	msg := Message{Reason: head.Reason}
	if head.Reason == ReasonCompilerArtifact {
		var a Artifact
		if err := json.Unmarshal(line, &a); err != nil {
			return Message{}, err
		}
		msg.Artifact = &a
	}
	return msg, nil
}
