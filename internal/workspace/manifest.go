// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package workspace

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Manifest is a parsed Cargo.toml.
type Manifest struct {
	path string
	doc  map[string]any
}

// ReadManifest parses the manifest at path. The file is only read.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseManifest(path, data)
}

// ParseManifest parses data as the manifest found at path.
func ParseManifest(path string, data []byte) (*Manifest, error) {
	doc := make(map[string]any)
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Manifest{path: path, doc: doc}, nil
}

// Path returns the location the manifest was read from.
func (m *Manifest) Path() string {
	return m.path
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	return &Manifest{path: m.path, doc: cloneValue(m.doc).(map[string]any)}
}

// Encode serializes the manifest.
func (m *Manifest) Encode() ([]byte, error) {
	return toml.Marshal(m.doc)
}

// Get returns the value at the dotted key path.
func (m *Manifest) Get(keys ...string) (any, bool) {
	var v any = m.doc
	for _, k := range keys {
		t, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = t[k]; !ok {
			return nil, false
		}
	}
	return v, true
}

// Apply runs edits in order. Either all edits take effect or, on error,
// none does.
func (m *Manifest) Apply(edits ...Edit) error {
	doc := cloneValue(m.doc).(map[string]any)
	for _, edit := range edits {
		if err := edit.fn(doc); err != nil {
			return fmt.Errorf("%s: %s: %w", m.path, edit.name, err)
		}
	}
	m.doc = doc
	return nil
}

// Edit is a named transformation of a manifest document. Applying an edit
// whose effect is already present leaves the manifest unchanged.
type Edit struct {
	name string
	fn   func(doc map[string]any) error
}

func (e Edit) String() string {
	return e.name
}

// AddCrateType adds kind to [lib].crate-type.
func AddCrateType(kind string) Edit {
	return Edit{"add crate type " + kind, func(doc map[string]any) error {
		lib, err := table(doc, "lib")
		if err != nil {
			return err
		}
		types, err := array(lib, "crate-type")
		if err != nil {
			return err
		}
		if !containsString(types, kind) {
			lib["crate-type"] = append(types, kind)
		}
		return nil
	}}
}

// SetReleaseLTO sets [profile.release].lto.
func SetReleaseLTO(enabled bool) Edit {
	return Edit{fmt.Sprintf("set release lto %t", enabled), func(doc map[string]any) error {
		profile, err := table(doc, "profile")
		if err != nil {
			return err
		}
		release, err := table(profile, "release")
		if err != nil {
			return err
		}
		release["lto"] = enabled
		return nil
	}}
}

// AddMember adds dir to [workspace].members.
func AddMember(dir string) Edit {
	return Edit{"add workspace member " + dir, func(doc map[string]any) error {
		ws, err := table(doc, "workspace")
		if err != nil {
			return err
		}
		members, err := array(ws, "members")
		if err != nil {
			return err
		}
		if !containsString(members, dir) {
			ws["members"] = append(members, dir)
		}
		return nil
	}}
}

// table returns the sub-table key of t, creating it when absent.
func table(t map[string]any, key string) (map[string]any, error) {
	v, ok := t[key]
	if !ok {
		sub := make(map[string]any)
		t[key] = sub
		return sub, nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is a %T, not a table", key, v)
	}
	return sub, nil
}

func array(t map[string]any, key string) ([]any, error) {
	v, ok := t[key]
	if !ok {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s is a %T, not an array", key, v)
	}
	return arr, nil
}

func containsString(arr []any, s string) bool {
	for _, v := range arr {
		if v, ok := v.(string); ok && v == s {
			return true
		}
	}
	return false
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
