// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package abi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/cargo-near/internal/metadata"
)

var (
	// ErrDocumentParse reports aggregator output that is not an ABI document.
	ErrDocumentParse = errors.New("invalid ABI document")
	// ErrDocumentWrite reports a failure to persist abi.json.
	ErrDocumentWrite = errors.New("cannot write ABI document")
)

// Metadata is the metadata section of an ABI document.
type Metadata struct {
	Name    *string
	Version *string
	Authors []string
	Other   map[string]string
}

// MetadataOf derives the ABI metadata of pkg.
func MetadataOf(pkg *metadata.Package) Metadata {
	name, version := pkg.Name, pkg.Version
	return Metadata{
		Name:    &name,
		Version: &version,
		Authors: pkg.Authors,
	}
}

// value returns m the way it appears in the document: extension fields
// flattened, absent name and version omitted, empty authors omitted.
func (m Metadata) value() map[string]any {
	v := make(map[string]any, len(m.Other)+3)
	for k, s := range m.Other {
		v[k] = s
	}
	if m.Name != nil {
		v["name"] = *m.Name
	}
	if m.Version != nil {
		v["version"] = *m.Version
	}
	if len(m.Authors) > 0 {
		authors := make([]any, len(m.Authors))
		for i, a := range m.Authors {
			authors[i] = a
		}
		v["authors"] = authors
	}
	return v
}

// Document is an ABI document. Only its metadata section is interpreted.
type Document map[string]any

// ParseDocument decodes data, keeping numbers as written.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentParse, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrDocumentParse)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after the document", ErrDocumentParse)
	}
	return doc, nil
}

// SetMetadata replaces the metadata section of d.
func (d Document) SetMetadata(m Metadata) {
	d["metadata"] = m.value()
}

// Encode returns d pretty-printed with sorted keys and a final newline.
// Encoding is stable: Encode(ParseDocument(Encode(d))) == Encode(d).
func (d Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any(d)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile stores data at path through a temporary file in the same
// directory, so path holds either the old or the new content.
func WriteFile(path string, data []byte) (err error) {
	fail := func(err error) error {
		return fmt.Errorf("%w: %s: %v", ErrDocumentWrite, path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail(err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fail(err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fail(err)
	}
	if err := f.Close(); err != nil {
		return fail(err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fail(err)
	}
	return nil
}
