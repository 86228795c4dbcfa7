package linker

import (
	"debug/elf"
	"testing"
)

func newTestTable(cfg *Config) *SymbolTable {
	if cfg == nil {
		cfg = NewConfig()
	}
	diag := NewDiagnostics()
	diag.Silent = true
	return NewSymbolTable(cfg, diag)
}

func elfSym(bind uint8, typ uint8, shndx uint16, val, size uint64) Sym {
	return Sym{
		Info:  bind<<4 | typ&0xf,
		Shndx: shndx,
		Val:   val,
		Size:  size,
	}
}

func defSym(bind uint8) Sym {
	return elfSym(bind, uint8(elf.STT_FUNC), uint16(elf.SHN_ABS), 0, 0)
}

func checkKind(t *testing.T, tab *SymbolTable, name string, want BodyKind) {
	t.Helper()
	b := tab.Find(name)
	if b == nil {
		t.Fatalf("%s: not in table", name)
	}
	if b.Kind != want {
		t.Errorf("%s: body kind %d, want %d", name, b.Kind, want)
	}
}

func TestWeakUndefThenStrongDef(t *testing.T) {
	tab := newTestTable(nil)

	tab.AddUndefined("f", uint8(elf.STB_WEAK), 0, uint8(elf.STT_FUNC), false, nil)
	checkKind(t, tab, "f", BodyUndefined)

	esym := defSym(uint8(elf.STB_GLOBAL))
	sym := tab.AddRegular("f", &esym, nil)

	checkKind(t, tab, "f", BodyDefinedRegular)
	if sym.Binding != uint8(elf.STB_GLOBAL) {
		t.Errorf("binding %d, want STB_GLOBAL", sym.Binding)
	}
}

func TestWeakStrongOrderSymmetry(t *testing.T) {
	weak := defSym(uint8(elf.STB_WEAK))
	strong := defSym(uint8(elf.STB_GLOBAL))

	check := func(label string, first, second Sym) {
		t.Helper()
		tab := newTestTable(nil)
		tab.AddRegular("f", &first, nil)
		tab.AddRegular("f", &second, nil)

		sym := tab.Find("f").Owner
		if sym.Binding != uint8(elf.STB_GLOBAL) {
			t.Errorf("%s: binding %d, want STB_GLOBAL", label, sym.Binding)
		}
		if tab.diag.ErrorCount() != 0 {
			t.Errorf("%s: unexpected errors", label)
		}
	}
	check("weak then strong", weak, strong)
	check("strong then weak", strong, weak)
}

func TestDuplicateStrongDef(t *testing.T) {
	tab := newTestTable(nil)
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.AddRegular("f", &esym, nil)

	if tab.diag.ErrorCount() != 1 {
		t.Errorf("errors %d, want 1", tab.diag.ErrorCount())
	}
}

func TestAllowMultipleDefinition(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowMultipleDefinition = true
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.AddRegular("f", &esym, nil)

	if tab.diag.ErrorCount() != 0 {
		t.Errorf("errors %d, want 0", tab.diag.ErrorCount())
	}
	if tab.diag.WarningCount() != 1 {
		t.Errorf("warnings %d, want 1", tab.diag.WarningCount())
	}
}

func TestCommonMerge(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddCommon("g", 4, 4, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)
	tab.AddCommon("g", 8, 16, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)

	b := tab.Find("g")
	checkKind(t, tab, "g", BodyDefinedCommon)
	if b.Size != 8 || b.Alignment != 16 {
		t.Errorf("size=%d align=%d, want 8/16", b.Size, b.Alignment)
	}
}

func TestCommonMergeOrderIndependent(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddCommon("g", 8, 16, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)
	tab.AddCommon("g", 4, 4, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)

	b := tab.Find("g")
	if b.Size != 8 || b.Alignment != 16 {
		t.Errorf("size=%d align=%d, want 8/16", b.Size, b.Alignment)
	}
}

func TestCommonOverriddenByRegular(t *testing.T) {
	cfg := NewConfig()
	cfg.WarnCommon = true
	tab := newTestTable(cfg)

	tab.AddCommon("h", 8, 8, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("h", &esym, nil)

	checkKind(t, tab, "h", BodyDefinedRegular)
	if tab.diag.WarningCount() != 1 {
		t.Errorf("warnings %d, want 1", tab.diag.WarningCount())
	}
}

func TestRegularKeptOverLaterCommon(t *testing.T) {
	tab := newTestTable(nil)
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("h", &esym, nil)
	tab.AddCommon("h", 8, 8, uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_OBJECT), nil)

	checkKind(t, tab, "h", BodyDefinedRegular)
}

func TestSharedLosesToAnyDefinition(t *testing.T) {
	tab := newTestTable(nil)
	so := &SharedFile{}
	so.File = &File{Name: "libx.so"}

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddShared(so, "f", &esym, nil)
	checkKind(t, tab, "f", BodyShared)

	weak := defSym(uint8(elf.STB_WEAK))
	tab.AddRegular("f", &weak, nil)
	checkKind(t, tab, "f", BodyDefinedRegular)
}

func TestSharedReplacesUndefinedOnly(t *testing.T) {
	tab := newTestTable(nil)
	so := &SharedFile{}
	so.File = &File{Name: "libx.so"}

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.AddShared(so, "f", &esym, nil)
	checkKind(t, tab, "f", BodyDefinedRegular)

	tab.AddUndefined("u", uint8(elf.STB_GLOBAL), 0, 0, false, nil)
	tab.AddShared(so, "u", &esym, nil)
	checkKind(t, tab, "u", BodyShared)
	if !so.IsUsed {
		t.Error("DSO not marked used by strong reference")
	}
	if !tab.Find("u").Owner.ExportDynamic {
		t.Error("default-visibility DSO symbol must be export-dynamic")
	}
}

func TestTlsMismatch(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddUndefined("v", uint8(elf.STB_GLOBAL), 0, uint8(elf.STT_TLS), false, nil)

	esym := elfSym(uint8(elf.STB_GLOBAL), uint8(elf.STT_OBJECT),
		uint16(elf.SHN_ABS), 0, 0)
	tab.AddRegular("v", &esym, nil)

	if tab.diag.ErrorCount() != 1 {
		t.Errorf("errors %d, want 1", tab.diag.ErrorCount())
	}
}

func TestVisibilityMonotone(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddUndefined("f", uint8(elf.STB_GLOBAL), uint8(elf.STV_HIDDEN), 0, false, nil)
	sym := tab.Find("f").Owner
	if sym.Visibility != uint8(elf.STV_HIDDEN) {
		t.Fatalf("visibility %d, want hidden", sym.Visibility)
	}

	// A later default-visibility sighting must not relax it.
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	if sym.Visibility != uint8(elf.STV_HIDDEN) {
		t.Errorf("visibility %d after default merge, want hidden", sym.Visibility)
	}
}

func TestExportDynamicMonotone(t *testing.T) {
	cfg := NewConfig()
	cfg.Shared = true
	tab := newTestTable(cfg)

	sym := tab.AddUndefinedOpt("f")
	if !sym.ExportDynamic {
		t.Fatal("-shared must export non-omit-eligible symbols")
	}

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	if !sym.ExportDynamic {
		t.Error("ExportDynamic was cleared")
	}
}

func TestVersionedNameInsertion(t *testing.T) {
	cfg := NewConfig()
	cfg.SymbolVersions = []Version{{Name: "V1"}, {Name: "V2"}}
	tab := newTestTable(cfg)

	def := tab.AddUndefinedOpt("printf@@V2")
	if def.VersionId != 3 {
		t.Errorf("printf@@V2: version id %d, want 3", def.VersionId)
	}
	if !def.VersionedName {
		t.Error("printf@@V2: VersionedName false")
	}

	hidden := tab.AddUndefinedOpt("printf@V1")
	if hidden.VersionId != 2|VERSYM_HIDDEN {
		t.Errorf("printf@V1: version id %#x, want %#x", hidden.VersionId, 2|VERSYM_HIDDEN)
	}

	tab.AddUndefinedOpt("printf@V9")
	if tab.diag.ErrorCount() != 1 {
		t.Errorf("unknown version: errors %d, want 1", tab.diag.ErrorCount())
	}
}

func TestScanVersionScript(t *testing.T) {
	cfg := NewConfig()
	cfg.SymbolVersions = []Version{
		{Name: "V1", Globals: []string{"foo*"}},
		{Name: "V2", Globals: []string{"bar", "missing"}},
	}
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("foo1", &esym, nil)
	tab.AddRegular("foo2", &esym, nil)
	tab.AddRegular("bar", &esym, nil)
	tab.AddUndefined("fooref", uint8(elf.STB_GLOBAL), 0, 0, false, nil)

	tab.ScanVersionScript()

	for _, name := range []string{"foo1", "foo2"} {
		if got := tab.Find(name).Owner.VersionId; got != 2 {
			t.Errorf("%s: version id %d, want 2", name, got)
		}
	}
	if got := tab.Find("bar").Owner.VersionId; got != 3 {
		t.Errorf("bar: version id %d, want 3", got)
	}
	// fooref is undefined: never matched by the glob path.
	if got := tab.Find("fooref").Owner.VersionId; got != VER_NDX_LOCAL {
		t.Errorf("fooref: version id %d, want local", got)
	}
	if tab.diag.ErrorCount() != 0 {
		t.Errorf("errors %d without --no-undefined-version, want 0", tab.diag.ErrorCount())
	}
}

func TestScanVersionScriptNoUndefinedVersion(t *testing.T) {
	cfg := NewConfig()
	cfg.NoUndefinedVersion = true
	cfg.SymbolVersions = []Version{{Name: "V1", Globals: []string{"nope"}}}
	tab := newTestTable(cfg)

	tab.ScanVersionScript()
	if tab.diag.ErrorCount() != 1 {
		t.Errorf("errors %d, want 1", tab.diag.ErrorCount())
	}
}

func TestScanVersionScriptDuplicateWarns(t *testing.T) {
	cfg := NewConfig()
	cfg.SymbolVersions = []Version{
		{Name: "V1", Globals: []string{"f"}},
		{Name: "V2", Globals: []string{"f"}},
	}
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.ScanVersionScript()

	if tab.diag.WarningCount() != 1 {
		t.Errorf("warnings %d, want 1", tab.diag.WarningCount())
	}
	if got := tab.Find("f").Owner.VersionId; got != 3 {
		t.Errorf("version id %d, want 3 (last assignment wins)", got)
	}
}

func TestFlatVersionScriptGlobals(t *testing.T) {
	cfg := NewConfig()
	cfg.VersionScriptGlobals = []string{"f"}
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.ScanVersionScript()

	if got := tab.Find("f").Owner.VersionId; got != VER_NDX_GLOBAL {
		t.Errorf("version id %d, want global", got)
	}
}

func TestFindAll(t *testing.T) {
	tab := newTestTable(nil)
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("abc", &esym, nil)
	tab.AddRegular("abd", &esym, nil)
	tab.AddUndefined("abe", uint8(elf.STB_GLOBAL), 0, 0, false, nil)

	if got := len(tab.FindAll("ab?")); got != 2 {
		t.Errorf("ab?: %d matches, want 2 (undefined excluded)", got)
	}
	if got := len(tab.FindAll("abc")); got != 1 {
		t.Errorf("abc exact: %d matches, want 1", got)
	}
	if got := len(tab.FindAll("abe")); got != 0 {
		t.Errorf("abe exact: %d matches, want 0 (undefined)", got)
	}
}

func TestWrap(t *testing.T) {
	tab := newTestTable(nil)
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)

	// A reference handed out before the wrap must follow it.
	before := tab.Find("f")

	tab.Wrap("f")

	if b := tab.Find("f"); b.Name != "__wrap_f" || !b.IsUndefined() {
		t.Errorf("f: body %q kind %d, want undefined __wrap_f", b.Name, b.Kind)
	}
	if b := tab.Find("__real_f"); b.Name != "f" || b.Kind != BodyDefinedRegular {
		t.Errorf("__real_f: body %q kind %d, want regular f", b.Name, b.Kind)
	}
	if before.Name != "__wrap_f" {
		t.Errorf("stale reference sees %q, want __wrap_f", before.Name)
	}
}

func TestWrapMissingIsNoop(t *testing.T) {
	tab := newTestTable(nil)
	tab.Wrap("ghost")
	if tab.Find("__wrap_ghost") != nil || tab.Find("__real_ghost") != nil {
		t.Error("wrap of a missing symbol created symbols")
	}
}

func TestScanDynamicList(t *testing.T) {
	cfg := NewConfig()
	cfg.DynamicList = []string{"f", "absent"}
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.ScanDynamicList()

	if !tab.Find("f").Owner.ExportDynamic {
		t.Error("f not exported")
	}
}

func TestScanShlibUndefined(t *testing.T) {
	tab := newTestTable(nil)
	so := &SharedFile{undefs: []string{"__progname", "nothere"}}
	so.File = &File{Name: "libc.so"}
	tab.SharedFiles = append(tab.SharedFiles, so)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("__progname", &esym, nil)
	tab.ScanShlibUndefined()

	if !tab.Find("__progname").Owner.ExportDynamic {
		t.Error("__progname not exported for the DSO's sake")
	}
}

func TestTraceDefined(t *testing.T) {
	cfg := NewConfig()
	cfg.TraceSymbol = []string{"f", "u"}
	tab := newTestTable(cfg)

	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	tab.AddUndefined("u", uint8(elf.STB_GLOBAL), 0, 0, false, nil)

	tab.TraceDefined()

	traced := tab.diag.Traced()
	if len(traced) != 1 {
		t.Fatalf("traced %d lines, want 1: %v", len(traced), traced)
	}
}

func TestAddIgnored(t *testing.T) {
	tab := newTestTable(nil)
	if tab.AddIgnored("_end", uint8(elf.STV_HIDDEN)) != nil {
		t.Error("AddIgnored defined an unreferenced symbol")
	}

	tab.AddUndefinedOpt("_end")
	sym := tab.AddIgnored("_end", uint8(elf.STV_HIDDEN))
	if sym == nil || sym.Body().Kind != BodyDefinedRegular {
		t.Error("AddIgnored did not define a referenced symbol")
	}
}

func TestSymbolHandleStability(t *testing.T) {
	tab := newTestTable(nil)
	first := tab.AddUndefinedOpt("f")
	esym := defSym(uint8(elf.STB_GLOBAL))
	second := tab.AddRegular("f", &esym, nil)
	if first != second {
		t.Error("symbol handle changed identity across body replacement")
	}
	if len(tab.Symbols()) != 1 {
		t.Errorf("%d symbols, want 1", len(tab.Symbols()))
	}
}

func TestLazyProtocolWithoutFetch(t *testing.T) {
	tab := newTestTable(nil)
	a := NewArchiveFile(&File{Name: "libz.a"})

	// Weak undefined first: the lazy body must not fetch, and must
	// remember the reference's type.
	tab.AddUndefined("w", uint8(elf.STB_WEAK), 0, uint8(elf.STT_FUNC), false, nil)
	tab.AddLazyArchive(a, ArchiveSymbol{Name: "w", Offset: 8})

	b := tab.Find("w")
	if b.Kind != BodyLazyArchive {
		t.Fatalf("kind %d, want lazy archive", b.Kind)
	}
	if b.Type != uint8(elf.STT_FUNC) {
		t.Errorf("lazy type %d, want STT_FUNC", b.Type)
	}

	// A definition makes later lazy sightings a no-op.
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("d", &esym, nil)
	tab.AddLazyArchive(a, ArchiveSymbol{Name: "d", Offset: 16})
	checkKind(t, tab, "d", BodyDefinedRegular)
}

func TestWeakUndefThenLazyObjectKeepsType(t *testing.T) {
	tab := newTestTable(nil)
	lf := NewLazyObjectFile(&File{Name: "m.o"})

	tab.AddUndefined("w", uint8(elf.STB_WEAK), 0, uint8(elf.STT_OBJECT), false, nil)
	tab.AddLazyObject("w", lf)

	b := tab.Find("w")
	if b.Kind != BodyLazyObject || b.Type != uint8(elf.STT_OBJECT) {
		t.Errorf("kind=%d type=%d, want lazy object/STT_OBJECT", b.Kind, b.Type)
	}
}
