package linker

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/envytools/lld/pkg/utils"
	"github.com/ianlancetaylor/demangle"
)

// SymbolTable is a bag of all known symbols. Symbols of all input files
// go in here; name conflicts are resolved by the compare functions
// below, driven by the kind of the incoming definition.
type SymbolTable struct {
	cfg  *Config
	diag *Diagnostics

	symtab    map[string]int
	symVector []*Symbol

	soNames      utils.MapSet[string]
	comdatGroups utils.MapSet[string]

	ObjectFiles     []*ObjectFile
	SharedFiles     []*SharedFile
	ArchiveFiles    []*ArchiveFile
	BitcodeFiles    []*BitcodeFile
	LazyObjectFiles []*LazyObjectFile

	lto *BitcodeCompiler

	// Set while the combined LTO object is being re-ingested; makes
	// native definitions replace the bitcode placeholders they were
	// compiled from instead of colliding with them.
	inLTO bool

	// Architecture reference. Zero until the first ELF input arrives.
	eKind    uint8
	eMachine uint16
}

func NewSymbolTable(cfg *Config, diag *Diagnostics) *SymbolTable {
	return &SymbolTable{
		cfg:          cfg,
		diag:         diag,
		symtab:       make(map[string]int),
		soNames:      utils.NewMapSet[string](),
		comdatGroups: utils.NewMapSet[string](),
	}
}

// All input object files must be for the same architecture; it does not
// make sense to link x86 objects with RISC-V objects. The first ELF
// input, object or DSO, is the reference; the -m emulation is not
// consulted here.
func (t *SymbolTable) isCompatible(file *File) bool {
	ft := GetFileType(file.Contents)
	if ft != FileTypeObject && ft != FileTypeDso {
		return true
	}

	eKind := file.Contents[4]
	eMachine := binary.LittleEndian.Uint16(file.Contents[18:])
	if t.eKind == 0 {
		t.eKind = eKind
		t.eMachine = eMachine
		t.cfg.EKind = eKind
		t.cfg.EMachine = eMachine
		return true
	}
	if eKind == t.eKind && eMachine == t.eMachine {
		return true
	}

	t.diag.Error("%s is incompatible with the output architecture", file.Name)
	return false
}

// AddFile admits one parsed input in command-line order, dispatching on
// its kind. Any lazy-member recursion it triggers completes before it
// returns.
func (t *SymbolTable) AddFile(file *File) {
	t.addFile(file, false)
}

// AddLazyFile admits an object inside a --start-lib/--end-lib region:
// its symbols become lazy and the object is loaded only on demand.
func (t *SymbolTable) AddLazyFile(file *File) {
	t.addFile(file, true)
}

func (t *SymbolTable) addFile(file *File, lazy bool) {
	if !t.isCompatible(file) {
		return
	}

	switch GetFileType(file.Contents) {
	case FileTypeAr, FileTypeThinAr:
		a := NewArchiveFile(file)
		t.ArchiveFiles = append(t.ArchiveFiles, a)
		a.Parse(t)
		return

	case FileTypeObject:
		if lazy {
			f := NewLazyObjectFile(file)
			t.LazyObjectFiles = append(t.LazyObjectFiles, f)
			f.Parse(t)
			return
		}

	case FileTypeEmpty:
		return
	}

	if t.cfg.Trace {
		t.diag.Trace("%s", file.Name)
	}

	switch GetFileType(file.Contents) {
	case FileTypeDso:
		f := NewSharedFile(file)
		f.ParseSoname()
		// DSOs are uniquified not by filename but by soname.
		if !t.soNames.TryAdd(f.SoName) {
			return
		}
		t.SharedFiles = append(t.SharedFiles, f)
		f.Parse(t)

	case FileTypeBitcode:
		f := NewBitcodeFile(file)
		t.BitcodeFiles = append(t.BitcodeFiles, f)
		f.Parse(t)

	case FileTypeObject:
		obj := NewObjectFile(file)
		t.ObjectFiles = append(t.ObjectFiles, obj)
		obj.Parse(t, t.comdatGroups)

	default:
		t.diag.Error("%s: unknown file type", file.Name)
	}
}

// AddCombinedLTOObject compiles the collected bitcode files into one
// combined native object and feeds it back through the table, replacing
// every DefinedBitcode body. All bitcode files go to the compiler at
// once so it can optimize across the whole program.
func (t *SymbolTable) AddCombinedLTOObject() {
	if len(t.BitcodeFiles) == 0 {
		return
	}

	t.lto = NewBitcodeCompiler(t.diag)
	for _, f := range t.BitcodeFiles {
		t.lto.Add(f)
	}

	t.inLTO = true
	for _, file := range t.lto.Compile(t.cfg) {
		obj := NewObjectFile(file)
		t.ObjectFiles = append(t.ObjectFiles, obj)
		// A fresh group set: COMDAT dedup is deliberately not applied
		// across LTO output and regular objects.
		obj.Parse(t, utils.NewMapSet[string]())
	}
	t.inLTO = false
}

// Symbols returns every symbol in insertion order.
func (t *SymbolTable) Symbols() []*Symbol {
	return t.symVector
}

func getMinVisibility(va, vb uint8) uint8 {
	if va == uint8(elf.STV_DEFAULT) {
		return vb
	}
	if vb == uint8(elf.STV_DEFAULT) {
		return va
	}
	if va < vb {
		return va
	}
	return vb
}

// A symbol version may be embedded in a symbol name after '@'. '@@'
// names the default (most recent) version; a single '@' a hidden one.
func (t *SymbolTable) getVersionId(name string) uint16 {
	versionBegin := strings.Index(name, "@")
	if versionBegin == -1 {
		if t.cfg.VersionScriptGlobalByDefault {
			return VER_NDX_GLOBAL
		}
		return VER_NDX_LOCAL
	}

	version := name[versionBegin+1:]
	def := strings.HasPrefix(version, "@")
	if def {
		version = version[1:]
	}

	for i, v := range t.cfg.SymbolVersions {
		if v.Name != version {
			continue
		}
		id := uint16(i) + 2
		if def {
			return id
		}
		return id | VERSYM_HIDDEN
	}

	t.diag.Error("symbol %s has undefined version %s", name, version)
	return 0
}

// insert finds an existing symbol or creates a new one. New symbols are
// born weak, default-visibility, unreferenced, with an unknown-typed
// undefined body.
func (t *SymbolTable) insert(name string) (*Symbol, bool) {
	if idx, ok := t.symtab[name]; ok {
		return t.symVector[idx], false
	}

	sym := &Symbol{
		Name:       name,
		Binding:    uint8(elf.STB_WEAK),
		Visibility: uint8(elf.STV_DEFAULT),
	}
	sym.VersionId = t.getVersionId(name)
	sym.VersionedName = sym.VersionId != VER_NDX_LOCAL &&
		sym.VersionId != VER_NDX_GLOBAL
	sym.setBody(SymbolBody{Kind: BodyUndefined, Name: name, Type: UnknownType})

	t.symtab[name] = len(t.symVector)
	t.symVector = append(t.symVector, sym)
	return sym, true
}

// insertAttrs is insert plus attribute merging: stricter visibility
// wins, ExportDynamic and IsUsedInRegularObj only ever go up, and a
// TLS/non-TLS disagreement with a known-typed body is an error.
func (t *SymbolTable) insertAttrs(name string, typ uint8, visibility uint8,
	canOmitFromDynSym bool, isUsedInRegularObj bool, file LinkFile) (*Symbol, bool) {

	sym, wasInserted := t.insert(name)

	sym.Visibility = getMinVisibility(sym.Visibility, visibility)
	if !canOmitFromDynSym && (t.cfg.Shared || t.cfg.ExportDynamic) {
		sym.ExportDynamic = true
	}
	if isUsedInRegularObj {
		sym.IsUsedInRegularObj = true
	}
	if !wasInserted && sym.body.Type != UnknownType &&
		(typ == uint8(elf.STT_TLS)) != sym.body.IsTls() {
		t.diag.Error("TLS attribute mismatch for symbol: %s",
			t.conflictMsg(&sym.body, file))
	}

	return sym, wasInserted
}

func (t *SymbolTable) conflictMsg(existing *SymbolBody, newFile LinkFile) string {
	newName := "<internal>"
	if newFile != nil {
		newName = newFile.Filename()
	}
	return fmt.Sprintf("%s in %s and %s",
		demangle.Filter(existing.Name), existing.SourceFilename(), newName)
}

// compareDefined decides a new defined symbol against the existing one:
// +1 the new symbol wins, -1 it loses, 0 both are strong and defined.
func compareDefined(sym *Symbol, wasInserted bool, binding uint8) int {
	if wasInserted {
		return 1
	}
	body := &sym.body
	if body.IsLazy() || body.IsUndefined() || body.IsShared() {
		return 1
	}
	if binding == uint8(elf.STB_WEAK) {
		return -1
	}
	if sym.IsWeak() {
		return 1
	}
	return 0
}

// compareDefinedNonCommon extends compareDefined for non-common
// candidates: a win also updates the binding, and an existing common
// yields to a non-common newcomer unless the newcomer is weak.
func (t *SymbolTable) compareDefinedNonCommon(sym *Symbol, wasInserted bool,
	binding uint8) int {

	if cmp := compareDefined(sym, wasInserted, binding); cmp != 0 {
		if cmp > 0 {
			sym.Binding = binding
		}
		return cmp
	}
	if sym.body.IsCommon() {
		if t.cfg.WarnCommon {
			t.diag.Warn("common %s is overridden", sym.body.Name)
		}
		return 1
	}
	return 0
}

// AddUndefinedOpt records a reference created by the linker itself
// (-u NAME, the entry symbol).
func (t *SymbolTable) AddUndefinedOpt(name string) *Symbol {
	return t.AddUndefined(name, uint8(elf.STB_GLOBAL), uint8(elf.STV_DEFAULT),
		0, false, nil)
}

func (t *SymbolTable) AddUndefined(name string, binding uint8, stOther uint8,
	typ uint8, canOmitFromDynSym bool, file LinkFile) *Symbol {

	_, fromBitcode := file.(*BitcodeFile)
	sym, wasInserted := t.insertAttrs(name, typ, stOther&3, canOmitFromDynSym,
		!fromBitcode, file)
	if wasInserted {
		sym.Binding = binding
		sym.setBody(SymbolBody{
			Kind:    BodyUndefined,
			Name:    name,
			Type:    typ,
			StOther: stOther,
			File:    file,
		})
		return sym
	}

	body := &sym.body
	if binding != uint8(elf.STB_WEAK) {
		if body.IsShared() || body.IsLazy() {
			sym.Binding = binding
		}
		if body.IsShared() {
			body.File.(*SharedFile).IsUsed = true
		}
	}
	if body.IsLazy() {
		// A weak undefined does not fetch archive members, but its type
		// must survive on the lazy body in case nothing ever fetches it.
		if sym.IsWeak() {
			body.Type = typ
		} else {
			t.fetchLazy(body)
		}
	}
	return sym
}

func (t *SymbolTable) AddCommon(name string, size uint64, alignment uint64,
	binding uint8, stOther uint8, typ uint8, file LinkFile) *Symbol {

	sym, wasInserted := t.insertAttrs(name, typ, stOther&3, false, true, file)
	cmp := compareDefined(sym, wasInserted, binding)
	if cmp > 0 {
		sym.Binding = binding
		sym.setBody(SymbolBody{
			Kind:      BodyDefinedCommon,
			Name:      name,
			Type:      typ,
			StOther:   stOther,
			Size:      size,
			Alignment: alignment,
			File:      file,
		})
	} else if cmp == 0 {
		body := &sym.body
		if !body.IsCommon() {
			// Non-common symbols take precedence over common symbols.
			if t.cfg.WarnCommon {
				t.diag.Warn("common %s is overridden", body.Name)
			}
			return sym
		}

		if t.cfg.WarnCommon {
			t.diag.Warn("multiple common of %s", body.Name)
		}
		body.Size = utils.Max(body.Size, size)
		body.Alignment = utils.Max(body.Alignment, alignment)
	}
	return sym
}

func (t *SymbolTable) reportDuplicate(existing *SymbolBody, newFile LinkFile) {
	msg := fmt.Sprintf("duplicate symbol: %s", t.conflictMsg(existing, newFile))
	if t.cfg.AllowMultipleDefinition {
		t.diag.Warn("%s", msg)
	} else {
		t.diag.Error("%s", msg)
	}
}

func (t *SymbolTable) AddRegular(name string, esym *Sym, section *InputSection) *Symbol {
	var file LinkFile
	if section != nil {
		file = section.File
	}
	sym, wasInserted := t.insertAttrs(name, esym.Type(), esym.StVisibility(),
		false, true, file)

	// During LTO re-ingestion a native definition is the compiled form
	// of the bitcode placeholder it meets here; it always prevails,
	// whatever the bindings.
	if t.inLTO && sym.body.IsBitcode() {
		sym.Binding = esym.Bind()
		sym.setBody(SymbolBody{
			Kind:    BodyDefinedRegular,
			Name:    name,
			Type:    esym.Type(),
			StOther: esym.Other,
			Section: section,
			Value:   esym.Val,
			Size:    esym.Size,
			File:    file,
		})
		return sym
	}

	cmp := t.compareDefinedNonCommon(sym, wasInserted, esym.Bind())
	if cmp > 0 {
		sym.setBody(SymbolBody{
			Kind:    BodyDefinedRegular,
			Name:    name,
			Type:    esym.Type(),
			StOther: esym.Other,
			Section: section,
			Value:   esym.Val,
			Size:    esym.Size,
			File:    file,
		})
	} else if cmp == 0 {
		t.reportDuplicate(&sym.body, file)
	}
	return sym
}

// AddAbsolute records a linker-made absolute definition.
func (t *SymbolTable) AddAbsolute(name string, visibility uint8) *Symbol {
	sym, wasInserted := t.insertAttrs(name, uint8(elf.STT_NOTYPE), visibility,
		false, true, nil)
	cmp := t.compareDefinedNonCommon(sym, wasInserted, uint8(elf.STB_GLOBAL))
	if cmp > 0 {
		sym.setBody(SymbolBody{
			Kind:    BodyDefinedRegular,
			Name:    name,
			Type:    uint8(elf.STT_NOTYPE),
			StOther: visibility,
		})
	} else if cmp == 0 {
		t.reportDuplicate(&sym.body, nil)
	}
	return sym
}

// AddIgnored defines name only if something already refers to it.
func (t *SymbolTable) AddIgnored(name string, visibility uint8) *Symbol {
	if t.Find(name) == nil {
		return nil
	}
	return t.AddAbsolute(name, visibility)
}

func (t *SymbolTable) AddSynthetic(name string, osec *OutputSection, value uint64) *Symbol {
	sym, wasInserted := t.insertAttrs(name, uint8(elf.STT_NOTYPE),
		uint8(elf.STV_HIDDEN), false, true, nil)
	cmp := t.compareDefinedNonCommon(sym, wasInserted, uint8(elf.STB_GLOBAL))
	if cmp > 0 {
		sym.setBody(SymbolBody{
			Kind:   BodyDefinedSynthetic,
			Name:   name,
			Type:   uint8(elf.STT_NOTYPE),
			OutSec: osec,
			Value:  value,
		})
	} else if cmp == 0 {
		t.reportDuplicate(&sym.body, nil)
	}
	return sym
}

func (t *SymbolTable) AddShared(f *SharedFile, name string, esym *Sym,
	verdef *Verdef) {

	// DSO symbols do not affect visibility in the output, so Default is
	// merged in, which leaves the table's visibility unchanged.
	sym, wasInserted := t.insertAttrs(name, esym.Type(),
		uint8(elf.STV_DEFAULT), true, false, f)
	// Make sure DSO symbols with default visibility are preemptible.
	if esym.StVisibility() == uint8(elf.STV_DEFAULT) {
		sym.ExportDynamic = true
	}
	if wasInserted || sym.body.IsUndefined() {
		sym.setBody(SymbolBody{
			Kind:    BodyShared,
			Name:    name,
			Type:    esym.Type(),
			StOther: esym.Other,
			Value:   esym.Val,
			Size:    esym.Size,
			File:    f,
			Verdef:  verdef,
		})
		if !sym.IsWeak() {
			f.IsUsed = true
		}
	}
}

func (t *SymbolTable) AddBitcode(name string, isWeak bool, stOther uint8,
	typ uint8, canOmitFromDynSym bool, f *BitcodeFile) *Symbol {

	sym, wasInserted := t.insertAttrs(name, typ, stOther&3, canOmitFromDynSym,
		false, f)
	binding := uint8(elf.STB_GLOBAL)
	if isWeak {
		binding = uint8(elf.STB_WEAK)
	}
	cmp := t.compareDefinedNonCommon(sym, wasInserted, binding)
	if cmp > 0 {
		sym.setBody(SymbolBody{
			Kind:    BodyDefinedBitcode,
			Name:    name,
			Type:    typ,
			StOther: stOther,
			File:    f,
		})
	} else if cmp == 0 {
		t.reportDuplicate(&sym.body, f)
	}
	return sym
}

func (t *SymbolTable) AddLazyArchive(a *ArchiveFile, asym ArchiveSymbol) {
	sym, wasInserted := t.insert(asym.Name)
	if wasInserted {
		sym.setBody(SymbolBody{
			Kind:       BodyLazyArchive,
			Name:       asym.Name,
			Type:       UnknownType,
			Archive:    a,
			ArchiveSym: asym,
		})
		return
	}
	if !sym.body.IsUndefined() {
		return
	}

	// A weak undefined must not fetch the member: if a strong undefined
	// shows up later the member has to still be available, and if none
	// ever does the symbol reaches the end of the link as the weak
	// undefined it was — with its type preserved on the lazy body.
	if sym.IsWeak() {
		sym.setBody(SymbolBody{
			Kind:       BodyLazyArchive,
			Name:       asym.Name,
			Type:       sym.body.Type,
			Archive:    a,
			ArchiveSym: asym,
		})
		return
	}
	if member := a.GetMember(asym); member != nil {
		t.addFile(member, false)
	}
}

func (t *SymbolTable) AddLazyObject(name string, f *LazyObjectFile) {
	sym, wasInserted := t.insert(name)
	if wasInserted {
		sym.setBody(SymbolBody{
			Kind: BodyLazyObject,
			Name: name,
			Type: UnknownType,
			File: f,
		})
		return
	}
	if !sym.body.IsUndefined() {
		return
	}

	// Same dance as AddLazyArchive.
	if sym.IsWeak() {
		sym.setBody(SymbolBody{
			Kind: BodyLazyObject,
			Name: name,
			Type: sym.body.Type,
			File: f,
		})
		return
	}
	t.addFile(f.File, false)
}

func (t *SymbolTable) fetchLazy(body *SymbolBody) {
	switch body.Kind {
	case BodyLazyArchive:
		if member := body.Archive.GetMember(body.ArchiveSym); member != nil {
			t.addFile(member, false)
		}
	case BodyLazyObject:
		t.addFile(body.File.(*LazyObjectFile).File, false)
	}
}

// Find looks a name up exactly. No wildcards.
func (t *SymbolTable) Find(name string) *SymbolBody {
	idx, ok := t.symtab[name]
	if !ok {
		return nil
	}
	return t.symVector[idx].Body()
}

// FindAll returns the non-undefined symbols matching a glob pattern,
// falling back to an exact lookup when the pattern has no wildcard.
func (t *SymbolTable) FindAll(pattern string) []*SymbolBody {
	if !utils.HasWildcard(pattern) {
		if b := t.Find(pattern); b != nil && !b.IsUndefined() {
			return []*SymbolBody{b}
		}
		return nil
	}

	var res []*SymbolBody
	for _, sym := range t.symVector {
		b := sym.Body()
		if !b.IsUndefined() && utils.GlobMatch(pattern, sym.Name) {
			res = append(res, b)
		}
	}
	return res
}

// Wrap renames name to __real_name and redirects references to name
// into __wrap_name. Bodies are swapped in place, so every SymbolBody
// pointer handed out earlier follows the redirection.
func (t *SymbolTable) Wrap(name string) {
	b := t.Find(name)
	if b == nil {
		return
	}
	sym := b.Owner
	real := t.AddUndefinedOpt("__real_" + name)
	wrap := t.AddUndefinedOpt("__wrap_" + name)

	real.body = sym.body
	real.body.Owner = real
	sym.body = wrap.body
	sym.body.Owner = sym
}

// ScanUndefinedFlags processes -u NAME flags by fetching lazy symbols
// they name. Fetched members may pull further members in; the recursion
// bottoms out because a fetched member leaves the lazy set for good.
func (t *SymbolTable) ScanUndefinedFlags() {
	for _, name := range t.cfg.Undefined {
		if b := t.Find(name); b != nil && b.IsLazy() {
			t.fetchLazy(b)
		}
	}
}

// ScanShlibUndefined handles shared libraries that depend on the user
// program rather than the other way around (BSD's __progname): any name
// a DSO references that the program defines goes into the dynamic table.
func (t *SymbolTable) ScanShlibUndefined() {
	for _, f := range t.SharedFiles {
		for _, name := range f.UndefinedSymbols() {
			if b := t.Find(name); b != nil && b.IsDefined() {
				b.Owner.ExportDynamic = true
			}
		}
	}
}

// ScanDynamicList marks every symbol on the dynamic list for export.
func (t *SymbolTable) ScanDynamicList() {
	for _, name := range t.cfg.DynamicList {
		if b := t.Find(name); b != nil {
			b.Owner.ExportDynamic = true
		}
	}
}

// ScanVersionScript applies the version script a second time, after all
// inputs are in: a flat global list just marks symbols global; declared
// versions assign ids to every pattern match.
func (t *SymbolTable) ScanVersionScript() {
	if len(t.cfg.VersionScriptGlobals) != 0 {
		for _, name := range t.cfg.VersionScriptGlobals {
			if b := t.Find(name); b != nil {
				b.Owner.VersionId = VER_NDX_GLOBAL
			}
		}
		return
	}

	for i, v := range t.cfg.SymbolVersions {
		id := uint16(i) + 2
		for _, pattern := range v.Globals {
			bodies := t.FindAll(pattern)
			if len(bodies) == 0 {
				if t.cfg.NoUndefinedVersion {
					t.diag.Error(
						"version script assignment of %s to symbol %s failed: symbol not defined",
						v.Name, pattern)
				}
				continue
			}

			for _, b := range bodies {
				if b.Owner.VersionId != VER_NDX_GLOBAL &&
					b.Owner.VersionId != VER_NDX_LOCAL {
					t.diag.Warn("duplicate symbol %s in version script", pattern)
				}
				b.Owner.VersionId = id
			}
		}
	}
}

// TraceDefined prints which input defines each -y symbol.
func (t *SymbolTable) TraceDefined() {
	for _, name := range t.cfg.TraceSymbol {
		if b := t.Find(name); b != nil && (b.IsDefined() || b.IsCommon()) {
			t.diag.Trace("%s: definition of %s", b.SourceFilename(), b.Name)
		}
	}
}
