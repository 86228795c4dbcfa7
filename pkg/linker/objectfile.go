package linker

import (
	"debug/elf"
	"strings"
	"unsafe"

	"github.com/envytools/lld/pkg/utils"
)

type ObjectFile struct {
	InputFile
	Sections []*InputSection

	SymtabSec      *Shdr
	SymtabShndxSec []uint32

	// Global symbols, indexed in parallel with ElfSyms from FirstGlobal.
	Symbols []*Symbol
}

func NewObjectFile(file *File) *ObjectFile {
	return &ObjectFile{InputFile: *NewInputFile(file)}
}

// Parse claims the object's COMDAT groups against the given set and
// feeds every global symbol through the table. Passing a fresh set
// disables cross-file group dedup, which the LTO re-ingestion wants.
func (o *ObjectFile) Parse(t *SymbolTable, groups utils.MapSet[string]) {
	o.SymtabSec = o.FindSection(uint32(elf.SHT_SYMTAB))
	if o.SymtabSec != nil {
		o.FirstGlobal = int64(o.SymtabSec.Info)
		o.FillUpElfSyms(o.SymtabSec)
		o.SymbolStrtab = o.GetBytesFromIdx(int64(o.SymtabSec.Link))
	}

	o.initializeSections(groups)
	o.registerSymbols(t)
}

func (o *ObjectFile) getGroupSignature(shdr *Shdr) string {
	symtabShdr := &o.ElfSections[shdr.Link]
	bs := o.GetBytesFromShdr(symtabShdr)
	esym := utils.Read[Sym](bs[uintptr(shdr.Info)*unsafe.Sizeof(Sym{}):])
	strtab := o.GetBytesFromIdx(int64(symtabShdr.Link))
	return getName(strtab, esym.Name)
}

func (o *ObjectFile) initializeSections(groups utils.MapSet[string]) {
	// Claim COMDAT groups first. A group whose key is already taken has
	// all its member sections dropped.
	discarded := make(map[int64]bool)
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		if shdr.Type != uint32(elf.SHT_GROUP) {
			continue
		}

		data := o.GetBytesFromShdr(shdr)
		if len(data) < 4 || utils.Read[uint32](data)&GRP_COMDAT == 0 {
			continue
		}
		if groups.TryAdd(o.getGroupSignature(shdr)) {
			continue
		}
		for data = data[4:]; len(data) >= 4; data = data[4:] {
			discarded[int64(utils.Read[uint32](data))] = true
		}
	}

	o.Sections = make([]*InputSection, len(o.ElfSections))
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		if (shdr.Flags&uint64(SHF_EXCLUDE) != 0) &&
			(shdr.Flags&uint64(elf.SHF_ALLOC) == 0) {
			continue
		}

		switch elf.SectionType(shdr.Type) {
		case elf.SHT_GROUP:
			// Ignore
		case elf.SHT_SYMTAB_SHNDX:
			o.FillUpSymtabShndxSec(shdr)
		case elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_REL, elf.SHT_RELA,
			elf.SHT_NULL:
			break
		default:
			name := getName(o.ShStrtab, shdr.Name)

			if name == ".note.GNU-stack" {
				continue
			}
			if strings.HasPrefix(name, ".gnu.warning.") {
				continue
			}

			isec := NewInputSection(o, name, int64(i))
			if discarded[int64(i)] {
				isec.IsAlive = false
			}
			o.Sections[i] = isec
		}
	}
}

func (o *ObjectFile) registerSymbols(t *SymbolTable) {
	if o.SymtabSec == nil {
		return
	}

	o.Symbols = make([]*Symbol, len(o.ElfSyms))
	for i := o.FirstGlobal; i < int64(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		name := getName(o.SymbolStrtab, esym.Name)

		switch {
		case esym.IsUndef():
			o.Symbols[i] = t.AddUndefined(name, esym.Bind(), esym.Other,
				esym.Type(), false, o)
		case esym.IsCommon():
			// For common symbols the value field carries the alignment.
			o.Symbols[i] = t.AddCommon(name, esym.Size, esym.Val,
				esym.Bind(), esym.Other, esym.Type(), o)
		case esym.IsAbs():
			o.Symbols[i] = t.AddRegular(name, esym, nil)
		default:
			isec := o.GetSection(esym, i)
			if isec == nil || !isec.IsAlive {
				// The section went away with its COMDAT group; the
				// symbol degrades to a reference.
				o.Symbols[i] = t.AddUndefined(name, esym.Bind(), esym.Other,
					esym.Type(), false, o)
				continue
			}
			o.Symbols[i] = t.AddRegular(name, esym, isec)
		}
	}
}

func (o *ObjectFile) FillUpSymtabShndxSec(s *Shdr) {
	bs := o.GetBytesFromShdr(s)
	nums := len(bs) / int(unsafe.Sizeof(uint32(1)))
	o.SymtabShndxSec = make([]uint32, 0, nums)
	for nums > 0 {
		o.SymtabShndxSec = append(o.SymtabShndxSec, utils.Read[uint32](bs))
		bs = bs[4:]
		nums--
	}
}

func (o *ObjectFile) GetSection(esym *Sym, idx int64) *InputSection {
	return o.Sections[o.GetShndx(esym, idx)]
}

func (o *ObjectFile) GetShndx(esym *Sym, idx int64) int64 {
	utils.Assert(idx >= 0 && idx < int64(len(o.ElfSyms)))
	if esym.Shndx == uint16(elf.SHN_XINDEX) {
		return int64(o.SymtabShndxSec[idx])
	}
	return int64(esym.Shndx)
}
