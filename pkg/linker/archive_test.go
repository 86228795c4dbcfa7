package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"testing"
)

type arMember struct {
	name string
	data []byte
	syms []string
}

func arHdrBytes(name string, size int) []byte {
	return []byte(fmt.Sprintf("%-16s%-12s%-6s%-6s%-8s%-10d`\n",
		name, "0", "0", "0", "644", size))
}

// archiveBytes assembles a SysV archive with a symbol index covering
// every member's exported names.
func archiveBytes(members []arMember) []byte {
	// The index size is independent of member positions, so member
	// offsets can be computed up front.
	symtabSize := 4
	numSyms := 0
	for _, m := range members {
		for _, s := range m.syms {
			symtabSize += 4 + len(s) + 1
			numSyms++
		}
	}
	paddedSymtab := symtabSize + symtabSize%2

	offsets := make([]uint32, 0, numSyms)
	pos := 8 + 60 + paddedSymtab
	for _, m := range members {
		for range m.syms {
			offsets = append(offsets, uint32(pos))
		}
		pos += 60 + len(m.data) + len(m.data)%2
	}

	buf := &bytes.Buffer{}
	buf.WriteString("!<arch>\n")

	buf.Write(arHdrBytes("/", symtabSize))
	binary.Write(buf, binary.BigEndian, uint32(numSyms))
	for _, off := range offsets {
		binary.Write(buf, binary.BigEndian, off)
	}
	for _, m := range members {
		for _, s := range m.syms {
			buf.WriteString(s)
			buf.WriteByte(0)
		}
	}
	if symtabSize%2 == 1 {
		buf.WriteByte('\n')
	}

	for _, m := range members {
		buf.Write(arHdrBytes(m.name+"/", len(m.data)))
		buf.Write(m.data)
		if len(m.data)%2 == 1 {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes()
}

func testArchive() []byte {
	kObj := buildObjectBytes(uint16(elf.EM_X86_64), []objSymbolSpec{
		{Name: "k", Bind: uint8(elf.STB_GLOBAL), Typ: uint8(elf.STT_FUNC)},
		{Name: "k2", Bind: uint8(elf.STB_GLOBAL), Typ: uint8(elf.STT_FUNC)},
	})
	mObj := buildObjectBytes(uint16(elf.EM_X86_64), []objSymbolSpec{
		{Name: "m", Bind: uint8(elf.STB_GLOBAL), Typ: uint8(elf.STT_FUNC)},
	})
	return archiveBytes([]arMember{
		{name: "k.o", data: kObj, syms: []string{"k", "k2"}},
		{name: "m.o", data: mObj, syms: []string{"m"}},
	})
}

func TestLazyArchiveFetchedByStrongUndef(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "libk.a", Contents: testArchive()})

	checkKind(t, tab, "k", BodyLazyArchive)

	tab.AddUndefined("k", uint8(elf.STB_GLOBAL), 0, 0, false, nil)

	checkKind(t, tab, "k", BodyDefinedRegular)
	checkKind(t, tab, "k2", BodyDefinedRegular)
	checkKind(t, tab, "m", BodyLazyArchive)
	if len(tab.ObjectFiles) != 1 {
		t.Errorf("%d objects admitted, want 1", len(tab.ObjectFiles))
	}
	if tab.diag.ErrorCount() != 0 {
		t.Errorf("unexpected errors: %d", tab.diag.ErrorCount())
	}
}

func TestStrongUndefBeforeArchive(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddUndefined("k", uint8(elf.STB_GLOBAL), 0, 0, false, nil)
	tab.AddFile(&File{Name: "libk.a", Contents: testArchive()})

	checkKind(t, tab, "k", BodyDefinedRegular)
	checkKind(t, tab, "m", BodyLazyArchive)
}

func TestLazyFetchIdempotent(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "libk.a", Contents: testArchive()})

	// k and k2 live in the same member; promoting both must admit the
	// member once.
	tab.AddUndefined("k", uint8(elf.STB_GLOBAL), 0, 0, false, nil)
	tab.AddUndefined("k2", uint8(elf.STB_GLOBAL), 0, 0, false, nil)

	if len(tab.ObjectFiles) != 1 {
		t.Errorf("%d objects admitted, want 1", len(tab.ObjectFiles))
	}
}

func TestWeakUndefDoesNotFetch(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "libk.a", Contents: testArchive()})
	tab.AddUndefined("k", uint8(elf.STB_WEAK), 0, uint8(elf.STT_FUNC), false, nil)

	checkKind(t, tab, "k", BodyLazyArchive)
	if b := tab.Find("k"); b.Type != uint8(elf.STT_FUNC) {
		t.Errorf("lazy type %d, want STT_FUNC", b.Type)
	}
	if len(tab.ObjectFiles) != 0 {
		t.Errorf("%d objects admitted, want 0", len(tab.ObjectFiles))
	}
}

func TestScanUndefinedFlagsPromotesLazy(t *testing.T) {
	cfg := NewConfig()
	cfg.Undefined = []string{"m"}
	tab := newTestTable(cfg)
	tab.AddFile(&File{Name: "libk.a", Contents: testArchive()})

	tab.ScanUndefinedFlags()
	checkKind(t, tab, "m", BodyDefinedRegular)
}
