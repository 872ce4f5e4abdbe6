// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symbols lists the ABI entry points exported by a compiled
// contract library.
package symbols

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/qiniu/x/log"
)

// Prefix marks exported functions that return an ABI fragment.
const Prefix = "__near_abi_"

// ErrUnrecognizedFormat reports bytes that are not ELF, Mach-O or PE.
var ErrUnrecognizedFormat = errors.New("unrecognized binary format")

// Object formats reported by Object.Format.
const (
	FormatELF   = "elf"
	FormatMachO = "macho"
	FormatPE    = "pe"
)

// Object is a parsed library with its exported symbol names.
type Object struct {
	Format  string
	Arch    string
	Symbols []string
}

// EntryPoints reads the library at path and returns the exported symbols
// starting with prefix.
func EntryPoints(path, prefix string) (mapset.Set[string], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	obj, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Infof("Detected %s object for %s", obj.Format, obj.Arch)

	set := mapset.NewThreadUnsafeSet[string]()
	for _, name := range obj.Symbols {
		if strings.HasPrefix(name, prefix) {
			set.Add(name)
		}
	}
	log.Debugf("Found %d ABI entry points: %v", set.Cardinality(), Sorted(set))
	return set, nil
}

// Sorted returns the elements of set in ascending order.
func Sorted(set mapset.Set[string]) []string {
	names := set.ToSlice()
	sort.Strings(names)
	return names
}

// Parse detects the object format of data and lists its exported symbols.
func Parse(data []byte) (*Object, error) {
	r := bytes.NewReader(data)
	if f, err := elf.NewFile(r); err == nil {
		defer f.Close()
		return parseELF(f)
	}
	if f, err := macho.NewFile(r); err == nil {
		defer f.Close()
		return parseMachO(f), nil
	}
	if f, err := macho.NewFatFile(r); err == nil {
		defer f.Close()
		return parseFat(f), nil
	}
	if f, err := pe.NewFile(r); err == nil {
		defer f.Close()
		return parsePE(f)
	}
	return nil, ErrUnrecognizedFormat
}

func parseELF(f *elf.File) (*Object, error) {
	obj := &Object{Format: FormatELF, Arch: f.Machine.String()}
	for _, read := range []func() ([]elf.Symbol, error){f.DynamicSymbols, f.Symbols} {
		syms, err := read()
		if err != nil {
			if errors.Is(err, elf.ErrNoSymbols) {
				continue
			}
			return nil, err
		}
		for _, s := range syms {
			bind := elf.ST_BIND(s.Info)
			if (bind == elf.STB_GLOBAL || bind == elf.STB_WEAK) && s.Section != elf.SHN_UNDEF {
				obj.Symbols = append(obj.Symbols, s.Name)
			}
		}
	}
	return obj, nil
}

const (
	machoTypeExt  = 0x01 // N_EXT
	machoTypeStab = 0xe0 // N_STAB
)

func parseMachO(f *macho.File) *Object {
	obj := &Object{Format: FormatMachO, Arch: f.Cpu.String()}
	if f.Symtab == nil {
		return obj
	}
	for _, s := range f.Symtab.Syms {
		if s.Type&machoTypeStab != 0 || s.Type&machoTypeExt == 0 || s.Sect == 0 {
			continue
		}
		// C symbols carry a leading underscore on Darwin.
		obj.Symbols = append(obj.Symbols, strings.TrimPrefix(s.Name, "_"))
	}
	return obj
}

func parseFat(f *macho.FatFile) *Object {
	obj := &Object{Format: FormatMachO}
	var arches []string
	for _, a := range f.Arches {
		sub := parseMachO(a.File)
		arches = append(arches, sub.Arch)
		obj.Symbols = append(obj.Symbols, sub.Symbols...)
	}
	obj.Arch = strings.Join(arches, "+")
	return obj
}

const peSymClassExternal = 2 // IMAGE_SYM_CLASS_EXTERNAL

func parsePE(f *pe.File) (*Object, error) {
	obj := &Object{Format: FormatPE, Arch: peArch(f.Machine)}
	exports, err := peExports(f)
	if err != nil {
		return nil, err
	}
	obj.Symbols = append(obj.Symbols, exports...)
	for _, s := range f.Symbols {
		if s.StorageClass == peSymClassExternal && s.SectionNumber > 0 {
			obj.Symbols = append(obj.Symbols, s.Name)
		}
	}
	return obj, nil
}

func peArch(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "amd64"
	case pe.IMAGE_FILE_MACHINE_I386:
		return "386"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "arm64"
	case pe.IMAGE_FILE_MACHINE_ARMNT:
		return "arm"
	}
	return fmt.Sprintf("machine(%#x)", machine)
}
