package linker

import "debug/elf"

// LazyObjectFile is a relocatable object inside a --start-lib region.
// Like an archive member it contributes lazy symbols only; the object
// is admitted for real when one of them is promoted.
type LazyObjectFile struct {
	File *File
}

func NewLazyObjectFile(file *File) *LazyObjectFile {
	return &LazyObjectFile{File: file}
}

func (f *LazyObjectFile) Filename() string {
	return f.File.Name
}

// Parse registers the object's defined global names without admitting
// the object itself.
func (f *LazyObjectFile) Parse(t *SymbolTable) {
	in := NewInputFile(f.File)
	symtabSec := in.FindSection(uint32(elf.SHT_SYMTAB))
	if symtabSec == nil {
		return
	}
	in.FirstGlobal = int64(symtabSec.Info)
	in.FillUpElfSyms(symtabSec)
	in.SymbolStrtab = in.GetBytesFromIdx(int64(symtabSec.Link))

	for i := in.FirstGlobal; i < int64(len(in.ElfSyms)); i++ {
		esym := &in.ElfSyms[i]
		if esym.IsUndef() {
			continue
		}
		t.AddLazyObject(getName(in.SymbolStrtab, esym.Name), f)
	}
}
