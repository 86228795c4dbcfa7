package linker

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/envytools/lld/pkg/utils"
)

// ArchiveSymbol is one entry of an archive's symbol index: an exported
// name and the offset of the member header that defines it.
type ArchiveSymbol struct {
	Name   string
	Offset uint64
}

// ArchiveFile defers its members: the symbol index goes into the table
// as lazy symbols and members are extracted only when a strong
// reference promotes one.
type ArchiveFile struct {
	File    *File
	Symbols []ArchiveSymbol

	strTab  []byte
	fetched utils.MapSet[uint64]
}

func NewArchiveFile(file *File) *ArchiveFile {
	return &ArchiveFile{
		File:    file,
		fetched: utils.NewMapSet[uint64](),
	}
}

func (a *ArchiveFile) Filename() string {
	return a.File.Name
}

// Parse walks the member headers once to locate the symbol index and
// the long-name table, then registers every indexed name as lazy.
// Registration can fetch a member right away when a strong undefined is
// already in the table, so the tables must be in hand first.
func (a *ArchiveFile) Parse(t *SymbolTable) {
	contents := a.File.Contents
	data := 8
	var symtabData []byte

	for len(contents)-data >= 2 {
		// Member headers start on even offsets.
		if data%2 == 1 {
			data++
		}

		hdr := utils.Read[ArHdr](contents[data:])
		body := data + int(unsafe.Sizeof(ArHdr{}))
		data = body + hdr.GetSize()

		if hdr.IsStrtab() {
			a.strTab = contents[body:data]
			continue
		}
		if hdr.IsSymtab() {
			symtabData = contents[body:data]
			continue
		}
	}

	a.Symbols = parseArchiveSymtab(symtabData)
	for _, sym := range a.Symbols {
		t.AddLazyArchive(a, sym)
	}
}

// The SysV archive symbol index: a big-endian count, that many
// big-endian member-header offsets, then NUL-terminated names.
func parseArchiveSymtab(data []byte) []ArchiveSymbol {
	if len(data) < 4 {
		return nil
	}

	count := int(binary.BigEndian.Uint32(data))
	offsets := data[4:]
	if len(offsets) < 4*count {
		return nil
	}
	names := offsets[4*count:]

	syms := make([]ArchiveSymbol, 0, count)
	for i := 0; i < count; i++ {
		end := bytes.IndexByte(names, 0)
		if end == -1 {
			break
		}
		syms = append(syms, ArchiveSymbol{
			Name:   string(names[:end]),
			Offset: uint64(binary.BigEndian.Uint32(offsets[4*i:])),
		})
		names = names[end+1:]
	}
	return syms
}

// GetMember extracts the member behind sym, once. A second symbol
// pointing at the same member returns nil.
func (a *ArchiveFile) GetMember(sym ArchiveSymbol) *File {
	if !a.fetched.TryAdd(sym.Offset) {
		return nil
	}

	contents := a.File.Contents
	hdr := utils.Read[ArHdr](contents[sym.Offset:])
	body := int(sym.Offset) + int(unsafe.Sizeof(ArHdr{}))
	end := body + hdr.GetSize()

	ptr := contents[body:]
	name := hdr.ReadName(a.strTab, &ptr)

	return &File{
		Name:     name,
		Contents: contents[body:end],
		Parent:   a.File,
	}
}
