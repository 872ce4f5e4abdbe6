// Copyright (c) 2026 The XGo Authors (xgo.dev). All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbols

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	exportDirSize  = 40
	maxExportNames = 1 << 20
)

var errBadExportTable = errors.New("malformed PE export table")

// peExports lists the names in the export directory of f.
func peExports(f *pe.File) ([]string, error) {
	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return nil, nil
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes <= pe.IMAGE_DIRECTORY_ENTRY_EXPORT {
			return nil, nil
		}
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	default:
		return nil, nil
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, nil
	}

	img := peImage{f: f}
	hdr, err := img.read(dir.VirtualAddress, exportDirSize)
	if err != nil {
		return nil, err
	}
	numNames := binary.LittleEndian.Uint32(hdr[24:])
	addrNames := binary.LittleEndian.Uint32(hdr[32:])
	if numNames == 0 {
		return nil, nil
	}
	if numNames > maxExportNames {
		return nil, fmt.Errorf("%w: %d names", errBadExportTable, numNames)
	}
	ptrs, err := img.read(addrNames, numNames*4)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, numNames)
	for i := uint32(0); i < numNames; i++ {
		name, err := img.cstring(binary.LittleEndian.Uint32(ptrs[4*i:]))
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// peImage resolves relative virtual addresses against section data.
type peImage struct {
	f     *pe.File
	cache map[*pe.Section][]byte
}

func (img *peImage) section(rva uint32) ([]byte, uint32, error) {
	for _, s := range img.f.Sections {
		size := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || rva-s.VirtualAddress >= size {
			continue
		}
		data, ok := img.cache[s]
		if !ok {
			var err error
			if data, err = s.Data(); err != nil {
				return nil, 0, err
			}
			if img.cache == nil {
				img.cache = make(map[*pe.Section][]byte)
			}
			img.cache[s] = data
		}
		return data, rva - s.VirtualAddress, nil
	}
	return nil, 0, fmt.Errorf("%w: address %#x outside any section", errBadExportTable, rva)
}

func (img *peImage) read(rva, n uint32) ([]byte, error) {
	data, off, err := img.section(rva)
	if err != nil {
		return nil, err
	}
	if uint64(off)+uint64(n) > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d bytes at %#x", errBadExportTable, n, rva)
	}
	return data[off : off+n], nil
}

func (img *peImage) cstring(rva uint32) (string, error) {
	data, off, err := img.section(rva)
	if err != nil {
		return "", err
	}
	if int(off) >= len(data) {
		return "", fmt.Errorf("%w: name at %#x", errBadExportTable, rva)
	}
	rest := data[off:]
	end := bytes.IndexByte(rest, 0)
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated name at %#x", errBadExportTable, rva)
	}
	return string(rest[:end]), nil
}
