package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/llir/llvm/ir/enum"

	"github.com/envytools/lld/pkg/utils"
)

// BitcodeCompiler takes every bitcode file of the link at once, so the
// backend can see the whole program, and produces native objects whose
// symbols re-enter the table and replace the bitcode placeholders.
type BitcodeCompiler struct {
	diag  *Diagnostics
	files []*BitcodeFile
}

func NewBitcodeCompiler(diag *Diagnostics) *BitcodeCompiler {
	return &BitcodeCompiler{diag: diag}
}

func (c *BitcodeCompiler) Add(f *BitcodeFile) {
	c.files = append(c.files, f)
}

func bitcodeSymbolRank(s BitcodeSymbol) int {
	switch {
	case s.Undef:
		return 0
	case s.Common:
		return 1
	case s.Weak:
		return 2
	}
	return 3
}

// Compile merges the modules at the symbol level — a definition beats a
// declaration, strong beats weak — and assembles one combined native
// object. Duplicate strong definitions were already reported when the
// second bitcode file was admitted.
func (c *BitcodeCompiler) Compile(cfg *Config) []*File {
	var order []string
	best := make(map[string]BitcodeSymbol)

	for _, f := range c.files {
		for _, sym := range f.Module.Syms {
			cur, ok := best[sym.Name]
			if !ok {
				order = append(order, sym.Name)
				best[sym.Name] = sym
				continue
			}
			if bitcodeSymbolRank(sym) > bitcodeSymbolRank(cur) {
				best[sym.Name] = sym
			}
		}
	}

	specs := make([]objSymbolSpec, 0, len(order))
	for _, name := range order {
		s := best[name]
		bind := uint8(elf.STB_GLOBAL)
		if s.Weak || s.Explicit == enum.LinkageExternWeak {
			bind = uint8(elf.STB_WEAK)
		}
		specs = append(specs, objSymbolSpec{
			Name:   name,
			Bind:   bind,
			Typ:    s.Type,
			Vis:    s.StOther & 3,
			Undef:  s.Undef,
			Common: s.Common,
			Size:   1,
			Align:  1,
		})
	}

	machine := cfg.EMachine
	if machine == 0 {
		machine = uint16(elf.EM_X86_64)
	}

	return []*File{{
		Name:     "<lto-output>",
		Contents: buildObjectBytes(machine, specs),
	}}
}

// objSymbolSpec describes one symbol of an assembled object.
type objSymbolSpec struct {
	Name   string
	Bind   uint8
	Typ    uint8
	Vis    uint8
	Undef  bool
	Common bool
	Value  uint64
	Size   uint64
	Align  uint64
}

// buildObjectBytes assembles a minimal ELF64 relocatable holding the
// given global symbols: a null section, an empty .text, and the symbol
// machinery. Enough for the object parser on the other end.
func buildObjectBytes(machine uint16, specs []objSymbolSpec) []byte {
	strtab := []byte{0}
	nameOff := make([]uint32, len(specs))
	for i, s := range specs {
		nameOff[i] = uint32(len(strtab))
		strtab = append(strtab, []byte(s.Name)...)
		strtab = append(strtab, 0)
	}

	syms := make([]Sym, 1, len(specs)+1)
	for i, s := range specs {
		esym := Sym{
			Name:  nameOff[i],
			Info:  s.Bind<<4 | s.Typ&0xf,
			Other: s.Vis,
			Size:  s.Size,
		}
		switch {
		case s.Undef:
			esym.Shndx = uint16(elf.SHN_UNDEF)
		case s.Common:
			esym.Shndx = uint16(elf.SHN_COMMON)
			esym.Val = s.Align
		default:
			esym.Shndx = 1
			esym.Val = s.Value
		}
		syms = append(syms, esym)
	}

	symtabBuf := &bytes.Buffer{}
	for _, esym := range syms {
		utils.MustNo(binary.Write(symtabBuf, binary.LittleEndian, esym))
	}

	shstrtab := []byte("\x00.text\x00.symtab\x00.strtab\x00.shstrtab\x00")

	const ehdrSize = 64
	symtabOff := uint64(ehdrSize)
	strtabOff := symtabOff + uint64(symtabBuf.Len())
	shstrtabOff := strtabOff + uint64(len(strtab))
	shOff := utils.AlignTo(shstrtabOff+uint64(len(shstrtab)), 8)

	ehdr := Ehdr{
		Type:      uint16(elf.ET_REL),
		Machine:   machine,
		Version:   1,
		ShOff:     shOff,
		EhSize:    ehdrSize,
		ShEntSize: 64,
		ShNum:     5,
		ShStrndx:  4,
	}
	copy(ehdr.Ident[:], "\177ELF")
	ehdr.Ident[4] = byte(elf.ELFCLASS64)
	ehdr.Ident[5] = byte(elf.ELFDATA2LSB)
	ehdr.Ident[6] = 1

	shdrs := [5]Shdr{
		{},
		{Name: 1, Type: uint32(elf.SHT_PROGBITS),
			Flags:     uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR),
			Offset:    ehdrSize,
			AddrAlign: 4},
		{Name: 7, Type: uint32(elf.SHT_SYMTAB),
			Offset:    symtabOff,
			Size:      uint64(symtabBuf.Len()),
			Link:      3,
			Info:      1,
			AddrAlign: 8,
			EntSize:   24},
		{Name: 15, Type: uint32(elf.SHT_STRTAB),
			Offset:    strtabOff,
			Size:      uint64(len(strtab)),
			AddrAlign: 1},
		{Name: 23, Type: uint32(elf.SHT_STRTAB),
			Offset:    shstrtabOff,
			Size:      uint64(len(shstrtab)),
			AddrAlign: 1},
	}

	buf := &bytes.Buffer{}
	utils.MustNo(binary.Write(buf, binary.LittleEndian, ehdr))
	buf.Write(symtabBuf.Bytes())
	buf.Write(strtab)
	buf.Write(shstrtab)
	for buf.Len() < int(shOff) {
		buf.WriteByte(0)
	}
	utils.MustNo(binary.Write(buf, binary.LittleEndian, shdrs))

	return buf.Bytes()
}
