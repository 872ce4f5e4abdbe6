package symbols

import (
	"bytes"
	"debug/elf"
	"debug/macho"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSym struct {
	name    string
	global  bool
	defined bool
}

// strtab interns names into a NUL separated table.
type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(name string) uint32 {
	off := uint32(s.buf.Len())
	s.buf.WriteString(name)
	s.buf.WriteByte(0)
	return off
}

func mustWrite(t *testing.T, w *bytes.Buffer, v any) {
	t.Helper()
	require.NoError(t, binary.Write(w, binary.LittleEndian, v))
}

func pad(w *bytes.Buffer, to int) {
	for w.Len() < to {
		w.WriteByte(0)
	}
}

// elfLibrary assembles a minimal x86-64 shared object whose .dynsym holds
// syms.
func elfLibrary(t *testing.T, syms []testSym) []byte {
	t.Helper()
	const ehdrSize, shdrSize, symSize = 64, 64, 24

	dynstr := newStrtab()
	var dynsym bytes.Buffer
	mustWrite(t, &dynsym, elf.Sym64{})
	for _, s := range syms {
		bind := elf.STB_LOCAL
		if s.global {
			bind = elf.STB_GLOBAL
		}
		shndx := uint16(elf.SHN_UNDEF)
		if s.defined {
			shndx = 1
		}
		mustWrite(t, &dynsym, elf.Sym64{
			Name:  dynstr.add(s.name),
			Info:  elf.ST_INFO(bind, elf.STT_FUNC),
			Shndx: shndx,
			Size:  4,
		})
	}
	shstr := newStrtab()
	textName, dynstrName, dynsymName, shstrName := shstr.add(".text"), shstr.add(".dynstr"), shstr.add(".dynsym"), shstr.add(".shstrtab")

	text := bytes.Repeat([]byte{0xc3}, 16)
	textOff := uint64(ehdrSize)
	dynstrOff := textOff + uint64(len(text))
	dynsymOff := (dynstrOff + uint64(dynstr.buf.Len()) + 7) &^ 7
	shstrOff := dynsymOff + uint64(dynsym.Len())
	shOff := (shstrOff + uint64(shstr.buf.Len()) + 7) &^ 7

	var out bytes.Buffer
	var ident [16]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	mustWrite(t, &out, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_DYN),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shOff,
		Ehsize:    ehdrSize,
		Phentsize: 56,
		Shentsize: shdrSize,
		Shnum:     5,
		Shstrndx:  4,
	})
	out.Write(text)
	out.Write(dynstr.buf.Bytes())
	pad(&out, int(dynsymOff))
	out.Write(dynsym.Bytes())
	out.Write(shstr.buf.Bytes())
	pad(&out, int(shOff))

	mustWrite(t, &out, elf.Section64{})
	mustWrite(t, &out, elf.Section64{
		Name: textName, Type: uint32(elf.SHT_PROGBITS),
		Flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
		Off:   textOff, Size: uint64(len(text)), Addralign: 16,
	})
	mustWrite(t, &out, elf.Section64{
		Name: dynstrName, Type: uint32(elf.SHT_STRTAB), Flags: uint64(elf.SHF_ALLOC),
		Off: dynstrOff, Size: uint64(dynstr.buf.Len()), Addralign: 1,
	})
	mustWrite(t, &out, elf.Section64{
		Name: dynsymName, Type: uint32(elf.SHT_DYNSYM), Flags: uint64(elf.SHF_ALLOC),
		Off: dynsymOff, Size: uint64(dynsym.Len()), Link: 2, Info: 1,
		Addralign: 8, Entsize: symSize,
	})
	mustWrite(t, &out, elf.Section64{
		Name: shstrName, Type: uint32(elf.SHT_STRTAB),
		Off: shstrOff, Size: uint64(shstr.buf.Len()), Addralign: 1,
	})
	return out.Bytes()
}

// machoLibrary assembles a minimal arm64 dylib with an LC_SYMTAB holding
// syms. Names get the Darwin underscore prefix.
func machoLibrary(t *testing.T, syms []testSym) []byte {
	t.Helper()
	const hdrSize, symtabCmdSize, nlistSize = 32, 24, 16

	str := newStrtab()
	var nlists bytes.Buffer
	for _, s := range syms {
		typ := uint8(0x0e) // N_SECT
		sect := uint8(1)
		if !s.defined {
			typ, sect = 0, 0 // N_UNDF
		}
		if s.global {
			typ |= machoTypeExt
		}
		mustWrite(t, &nlists, macho.Nlist64{Name: str.add("_" + s.name), Type: typ, Sect: sect})
	}
	symoff := uint32(hdrSize + symtabCmdSize)
	stroff := symoff + uint32(nlists.Len())

	var out bytes.Buffer
	mustWrite(t, &out, macho.FileHeader{
		Magic: macho.Magic64,
		Cpu:   macho.CpuArm64,
		Type:  macho.TypeDylib,
		Ncmd:  1,
		Cmdsz: symtabCmdSize,
	})
	mustWrite(t, &out, uint32(0)) // reserved
	mustWrite(t, &out, macho.SymtabCmd{
		Cmd:     macho.LoadCmdSymtab,
		Len:     symtabCmdSize,
		Symoff:  symoff,
		Nsyms:   uint32(len(syms)),
		Stroff:  stroff,
		Strsize: uint32(str.buf.Len()),
	})
	out.Write(nlists.Bytes())
	out.Write(str.buf.Bytes())
	return out.Bytes()
}

// peLibrary assembles a minimal PE32+ DLL whose export directory names
// exports.
func peLibrary(t *testing.T, exports []string) []byte {
	t.Helper()
	const (
		peOff      = 64
		optSize    = 240
		secHdrOff  = peOff + 4 + 20 + optSize
		rawOff     = 512
		sectionRVA = 0x1000
	)

	// .edata: directory, name pointer table, then the names.
	var edata bytes.Buffer
	namesRVA := uint32(sectionRVA + exportDirSize)
	stringsRVA := namesRVA + uint32(4*len(exports))
	var dir [exportDirSize]byte
	binary.LittleEndian.PutUint32(dir[24:], uint32(len(exports)))
	binary.LittleEndian.PutUint32(dir[32:], namesRVA)
	edata.Write(dir[:])
	var names bytes.Buffer
	for _, name := range exports {
		mustWrite(t, &edata, stringsRVA+uint32(names.Len()))
		names.WriteString(name)
		names.WriteByte(0)
	}
	edata.Write(names.Bytes())
	pad(&edata, (edata.Len()+0x1ff)&^0x1ff)

	var out bytes.Buffer
	out.WriteString("MZ")
	pad(&out, 0x3c)
	mustWrite(t, &out, uint32(peOff))
	pad(&out, peOff)
	out.WriteString("PE\x00\x00")
	mustWrite(t, &out, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     1,
		SizeOfOptionalHeader: optSize,
		Characteristics:      pe.IMAGE_FILE_DLL | pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	})
	opt := pe.OptionalHeader64{
		Magic:               0x20b,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         0x2000,
		SizeOfHeaders:       rawOff,
		NumberOfRvaAndSizes: 16,
	}
	opt.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT] = pe.DataDirectory{
		VirtualAddress: sectionRVA,
		Size:           uint32(exportDirSize + 4*len(exports) + names.Len()),
	}
	mustWrite(t, &out, opt)
	require.Equal(t, secHdrOff, out.Len())
	var secName [8]uint8
	copy(secName[:], ".edata")
	mustWrite(t, &out, pe.SectionHeader32{
		Name:             secName,
		VirtualSize:      uint32(edata.Len()),
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    uint32(edata.Len()),
		PointerToRawData: rawOff,
		Characteristics:  pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ,
	})
	pad(&out, rawOff)
	out.Write(edata.Bytes())
	return out.Bytes()
}

var librarySyms = []testSym{
	{name: "__near_abi_get_num", global: true, defined: true},
	{name: "__near_abi_increment", global: true, defined: true},
	{name: "__near_abi_private", global: false, defined: true},
	{name: "__near_abi_imported", global: true, defined: false},
	{name: "memcpy", global: true, defined: true},
}

func TestParseELF(t *testing.T) {
	obj, err := Parse(elfLibrary(t, librarySyms))
	require.NoError(t, err)
	assert.Equal(t, FormatELF, obj.Format)
	assert.Equal(t, "EM_X86_64", obj.Arch)
	assert.ElementsMatch(t, []string{"__near_abi_get_num", "__near_abi_increment", "memcpy"}, obj.Symbols)
}

func TestParseMachO(t *testing.T) {
	obj, err := Parse(machoLibrary(t, librarySyms))
	require.NoError(t, err)
	assert.Equal(t, FormatMachO, obj.Format)
	assert.Equal(t, macho.CpuArm64.String(), obj.Arch)
	assert.ElementsMatch(t, []string{"__near_abi_get_num", "__near_abi_increment", "memcpy"}, obj.Symbols)
}

func TestParsePE(t *testing.T) {
	obj, err := Parse(peLibrary(t, []string{"__near_abi_get_num", "__near_abi_increment", "memcpy"}))
	require.NoError(t, err)
	assert.Equal(t, FormatPE, obj.Format)
	assert.Equal(t, "amd64", obj.Arch)
	assert.Equal(t, []string{"__near_abi_get_num", "__near_abi_increment", "memcpy"}, obj.Symbols)
}

func TestParseUnrecognized(t *testing.T) {
	for _, data := range [][]byte{
		nil,
		[]byte("not a library"),
		bytes.Repeat([]byte{0xde, 0xad, 0xbe, 0xef}, 64),
	} {
		_, err := Parse(data)
		assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	}
}

func TestEntryPoints(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string][]byte{
		"libadder.so":    elfLibrary(t, librarySyms),
		"libadder.dylib": machoLibrary(t, librarySyms),
		"adder.dll":      peLibrary(t, []string{"__near_abi_get_num", "__near_abi_increment", "memcpy"}),
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, data, 0o644))

			set, err := EntryPoints(path, Prefix)
			require.NoError(t, err)
			assert.Equal(t, []string{"__near_abi_get_num", "__near_abi_increment"}, Sorted(set))
		})
	}
}

func TestEntryPointsDeduplicates(t *testing.T) {
	syms := append([]testSym{}, librarySyms...)
	syms = append(syms, testSym{name: "__near_abi_get_num", global: true, defined: true})
	path := filepath.Join(t.TempDir(), "libadder.so")
	require.NoError(t, os.WriteFile(path, elfLibrary(t, syms), 0o644))

	set, err := EntryPoints(path, Prefix)
	require.NoError(t, err)
	assert.Equal(t, 2, set.Cardinality())
}

func TestEntryPointsNone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libempty.so")
	require.NoError(t, os.WriteFile(path, elfLibrary(t, []testSym{{name: "memcpy", global: true, defined: true}}), 0o644))

	set, err := EntryPoints(path, Prefix)
	require.NoError(t, err)
	assert.Equal(t, 0, set.Cardinality())
}

func TestEntryPointsErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := EntryPoints(filepath.Join(dir, "missing.so"), Prefix)
	assert.ErrorIs(t, err, os.ErrNotExist)

	garbage := filepath.Join(dir, "garbage.so")
	require.NoError(t, os.WriteFile(garbage, []byte("garbage"), 0o644))
	_, err = EntryPoints(garbage, Prefix)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	assert.Contains(t, err.Error(), garbage)
}

func TestSorted(t *testing.T) {
	set := mapset.NewSet("b", "c", "a")
	assert.Equal(t, []string{"a", "b", "c"}, Sorted(set))
	assert.Empty(t, Sorted(mapset.NewSet[string]()))
}
