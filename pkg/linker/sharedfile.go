package linker

import (
	"debug/elf"
	"unsafe"

	"github.com/envytools/lld/pkg/utils"
)

// SharedFile is a DSO input. Only its dynamic symbol table matters to
// the link: defined symbols enter the table as Shared bodies, undefined
// ones are remembered for the reverse-dependency scan.
type SharedFile struct {
	InputFile

	SoName   string
	IsUsed   bool
	DtNeeded []string

	// Verdefs is indexed by version ndx. Entry 0 stays empty; entry 1
	// holds the DSO's base version when the section lists one. Parse
	// attaches only entries above 1 to symbols.
	Verdefs []Verdef

	undefs []string
}

func NewSharedFile(file *File) *SharedFile {
	return &SharedFile{InputFile: *NewInputFile(file)}
}

// ParseSoname reads just enough of .dynamic to name the DSO. Sonames
// are the dedup key; a DSO without one is keyed by its path.
func (f *SharedFile) ParseSoname() {
	f.SoName = f.File.Name

	idx := f.FindSectionIdx(uint32(elf.SHT_DYNAMIC))
	if idx == -1 {
		return
	}
	shdr := &f.ElfSections[idx]
	strtab := f.GetBytesFromIdx(int64(shdr.Link))

	data := f.GetBytesFromShdr(shdr)
	for len(data) >= int(unsafe.Sizeof(Dyn{})) {
		dyn := utils.Read[Dyn](data)
		data = data[unsafe.Sizeof(Dyn{}):]

		switch elf.DynTag(dyn.Tag) {
		case elf.DT_NULL:
			return
		case elf.DT_SONAME:
			f.SoName = getName(strtab, uint32(dyn.Val))
		case elf.DT_NEEDED:
			f.DtNeeded = append(f.DtNeeded, getName(strtab, uint32(dyn.Val)))
		}
	}
}

// Parse feeds the DSO's defined dynamic symbols into the table,
// attaching version definitions where the versym table names one.
func (f *SharedFile) Parse(t *SymbolTable) {
	dynsymIdx := f.FindSectionIdx(uint32(elf.SHT_DYNSYM))
	if dynsymIdx == -1 {
		return
	}
	shdr := &f.ElfSections[dynsymIdx]
	f.FirstGlobal = int64(shdr.Info)
	f.FillUpElfSyms(shdr)
	f.SymbolStrtab = f.GetBytesFromIdx(int64(shdr.Link))

	versym := f.parseVersym()
	f.Verdefs = f.parseVerdefs()

	for i := f.FirstGlobal; i < int64(len(f.ElfSyms)); i++ {
		esym := &f.ElfSyms[i]
		name := getName(f.SymbolStrtab, esym.Name)

		if esym.IsUndef() {
			f.undefs = append(f.undefs, name)
			continue
		}

		var verdef *Verdef
		if versym != nil && int(i) < len(versym) {
			ndx := versym[i] & ^VERSYM_HIDDEN
			if ndx > VER_NDX_GLOBAL && int(ndx) < len(f.Verdefs) {
				verdef = &f.Verdefs[ndx]
			}
		}
		t.AddShared(f, name, esym, verdef)
	}
}

// UndefinedSymbols lists the names the DSO references but does not
// define.
func (f *SharedFile) UndefinedSymbols() []string {
	return f.undefs
}

func (f *SharedFile) parseVersym() []uint16 {
	idx := f.FindSectionIdx(uint32(elf.SHT_GNU_VERSYM))
	if idx == -1 {
		return nil
	}

	bs := f.GetBytesFromIdx(idx)
	nums := len(bs) / 2
	versym := make([]uint16, 0, nums)
	for nums > 0 {
		versym = append(versym, utils.Read[uint16](bs))
		bs = bs[2:]
		nums--
	}
	return versym
}

func (f *SharedFile) parseVerdefs() []Verdef {
	idx := f.FindSectionIdx(uint32(elf.SHT_GNU_VERDEF))
	if idx == -1 {
		return nil
	}
	shdr := &f.ElfSections[idx]
	strtab := f.GetBytesFromIdx(int64(shdr.Link))
	data := f.GetBytesFromShdr(shdr)

	var verdefs []Verdef
	offset := uint32(0)
	for {
		rec := utils.Read[verdefRec](data[offset:])
		aux := utils.Read[verdauxRec](data[offset+rec.Aux:])

		for int(rec.Ndx) >= len(verdefs) {
			verdefs = append(verdefs, Verdef{})
		}
		verdefs[rec.Ndx] = Verdef{
			Version: rec.Version,
			Flags:   rec.Flags,
			Ndx:     rec.Ndx,
			Name:    getName(strtab, aux.Name),
		}

		if rec.Next == 0 {
			break
		}
		offset += rec.Next
	}
	return verdefs
}
