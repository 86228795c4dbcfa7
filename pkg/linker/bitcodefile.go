package linker

import (
	"debug/elf"

	"github.com/llir/llvm/asm"
	"github.com/llir/llvm/ir/enum"
)

// BitcodeFile is an LTO input: an LLVM IR module whose symbols enter
// the table as DefinedBitcode placeholders until the compiler replaces
// them with native definitions.
type BitcodeFile struct {
	File   *File
	Module moduleSymbols
}

// moduleSymbols is a bitcode module reduced to what resolution needs.
type moduleSymbols struct {
	Syms []BitcodeSymbol
}

type BitcodeSymbol struct {
	Name     string
	Type     uint8
	StOther  uint8
	Weak     bool
	Common   bool
	Undef    bool
	CanOmit  bool
	Explicit enum.Linkage
}

func NewBitcodeFile(file *File) *BitcodeFile {
	return &BitcodeFile{File: file}
}

func (f *BitcodeFile) Filename() string {
	return f.File.Name
}

// Parse reads the IR module and feeds its externally visible symbols
// through the table. Internal and private globals never make it here;
// they are the module's business.
func (f *BitcodeFile) Parse(t *SymbolTable) {
	if c := f.File.Contents; len(c) >= 4 && string(c[:4]) == "BC\xc0\xde" {
		t.diag.Error("%s: binary bitcode is not supported; use the textual .ll form",
			f.File.Name)
		return
	}

	m, err := asm.ParseBytes(f.File.Name, f.File.Contents)
	if err != nil {
		t.diag.Error("%s: cannot parse bitcode: %s", f.File.Name, err)
		return
	}

	for _, g := range m.Globals {
		f.addSymbol(t, BitcodeSymbol{
			Name:     g.Name(),
			Type:     uint8(elf.STT_OBJECT),
			StOther:  visibilityToStOther(g.Visibility),
			Undef:    g.Init == nil && g.Linkage != enum.LinkageCommon,
			Explicit: g.Linkage,
		})
	}
	for _, fn := range m.Funcs {
		f.addSymbol(t, BitcodeSymbol{
			Name:     fn.Name(),
			Type:     uint8(elf.STT_FUNC),
			StOther:  visibilityToStOther(fn.Visibility),
			Undef:    len(fn.Blocks) == 0,
			Explicit: fn.Linkage,
		})
	}
}

func (f *BitcodeFile) addSymbol(t *SymbolTable, sym BitcodeSymbol) {
	switch sym.Explicit {
	case enum.LinkageInternal, enum.LinkagePrivate:
		return
	}

	sym.Weak = isWeakLinkage(sym.Explicit)
	sym.Common = sym.Explicit == enum.LinkageCommon
	sym.CanOmit = sym.StOther&3 != uint8(elf.STV_DEFAULT) ||
		sym.Explicit == enum.LinkageLinkOnceODR
	f.Module.Syms = append(f.Module.Syms, sym)

	if sym.Undef {
		binding := uint8(elf.STB_GLOBAL)
		if sym.Explicit == enum.LinkageExternWeak {
			binding = uint8(elf.STB_WEAK)
		}
		t.AddUndefined(sym.Name, binding, sym.StOther, sym.Type, sym.CanOmit, f)
		return
	}
	if sym.Common {
		t.AddCommon(sym.Name, 1, 1, uint8(elf.STB_GLOBAL), sym.StOther,
			sym.Type, f)
		return
	}
	t.AddBitcode(sym.Name, sym.Weak, sym.StOther, sym.Type, sym.CanOmit, f)
}

func isWeakLinkage(l enum.Linkage) bool {
	switch l {
	case enum.LinkageWeak, enum.LinkageWeakODR,
		enum.LinkageLinkOnce, enum.LinkageLinkOnceODR,
		enum.LinkageAvailableExternally:
		return true
	}
	return false
}

func visibilityToStOther(v enum.Visibility) uint8 {
	switch v {
	case enum.VisibilityHidden:
		return uint8(elf.STV_HIDDEN)
	case enum.VisibilityProtected:
		return uint8(elf.STV_PROTECTED)
	}
	return uint8(elf.STV_DEFAULT)
}
