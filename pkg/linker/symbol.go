package linker

import (
	"debug/elf"
)

type BodyKind uint8

const (
	BodyUndefined BodyKind = iota
	BodyDefinedRegular
	BodyDefinedCommon
	BodyDefinedSynthetic
	BodyDefinedBitcode
	BodyShared
	BodyLazyArchive
	BodyLazyObject
)

// LinkFile is any admitted input a symbol can point back to. It exists
// so diagnostics can name the file a body came from without the body
// caring what kind of file that is.
type LinkFile interface {
	Filename() string
}

// SymbolBody is the tagged variant behind every Symbol. All kinds share
// one flat struct so each body occupies the same fixed-size slot inside
// its Symbol; Wrap depends on being able to copy slot contents between
// symbols without moving the Symbol records themselves.
type SymbolBody struct {
	Kind BodyKind
	Name string

	// ELF type (STT_*), or UnknownType for lazy symbols; symbols the
	// linker made up carry STT_NOTYPE. For a weak undefined that turned
	// lazy this keeps the type the final output needs if the member is
	// never fetched.
	Type    uint8
	StOther uint8

	Value uint64
	Size  uint64

	// DefinedCommon
	Alignment uint64

	// DefinedRegular
	Section *InputSection

	// DefinedSynthetic
	OutSec *OutputSection

	// The file the body came from: the referencing object for Undefined,
	// the defining object for DefinedRegular/Common, the DSO for Shared,
	// the bitcode file for DefinedBitcode, the lazy object for LazyObject.
	// Absolute DefinedRegular bodies (no section) have no file, even when
	// an object defined them.
	File LinkFile

	// Shared
	Verdef *Verdef

	// LazyArchive
	Archive    *ArchiveFile
	ArchiveSym ArchiveSymbol

	// Owner is the Symbol this body currently sits in. Maintained by
	// setBody and Wrap.
	Owner *Symbol
}

func (b *SymbolBody) IsUndefined() bool { return b.Kind == BodyUndefined }
func (b *SymbolBody) IsCommon() bool    { return b.Kind == BodyDefinedCommon }
func (b *SymbolBody) IsShared() bool    { return b.Kind == BodyShared }
func (b *SymbolBody) IsBitcode() bool   { return b.Kind == BodyDefinedBitcode }

func (b *SymbolBody) IsLazy() bool {
	return b.Kind == BodyLazyArchive || b.Kind == BodyLazyObject
}

// IsDefined covers every kind that provides a definition, shared
// libraries included. Undefined and lazy bodies are not definitions.
func (b *SymbolBody) IsDefined() bool {
	switch b.Kind {
	case BodyDefinedRegular, BodyDefinedCommon, BodyDefinedSynthetic,
		BodyDefinedBitcode, BodyShared:
		return true
	}
	return false
}

func (b *SymbolBody) IsTls() bool {
	return b.Type == uint8(elf.STT_TLS)
}

// SourceFilename names the input the body came from, for diagnostics.
func (b *SymbolBody) SourceFilename() string {
	if b.Kind == BodyLazyArchive && b.Archive != nil {
		return b.Archive.Filename()
	}
	if b.File != nil {
		return b.File.Filename()
	}
	return "<internal>"
}

// Symbol is the stable handle for a name. All external references hold
// *Symbol; the body slot below is rewritten in place as stronger
// definitions arrive, so those references never dangle.
type Symbol struct {
	Name string

	Binding    uint8
	Visibility uint8

	IsUsedInRegularObj bool
	ExportDynamic      bool

	VersionId     uint16
	VersionedName bool

	body SymbolBody
}

// Body returns a pointer into the symbol's in-place slot. The pointer
// stays valid across body replacement; its contents change.
func (s *Symbol) Body() *SymbolBody {
	return &s.body
}

func (s *Symbol) setBody(b SymbolBody) {
	b.Owner = s
	s.body = b
}

func (s *Symbol) IsWeak() bool {
	return s.Binding == uint8(elf.STB_WEAK)
}
