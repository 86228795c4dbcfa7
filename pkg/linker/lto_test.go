package linker

import (
	"debug/elf"
	"testing"
)

const irModuleA = `; ModuleID = 'a'
target triple = "x86_64-unknown-linux-gnu"

@gvar = global i64 1

define void @f() {
	ret void
}

declare void @ext()
`

const irModuleB = `; ModuleID = 'b'
define weak void @wfn() {
	ret void
}

define void @g() {
	call void @f()
	ret void
}

declare void @f()
`

func TestBitcodeSymbols(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "a.ll", Contents: []byte(irModuleA)})

	if len(tab.BitcodeFiles) != 1 {
		t.Fatalf("%d bitcode files, want 1", len(tab.BitcodeFiles))
	}
	checkKind(t, tab, "f", BodyDefinedBitcode)
	checkKind(t, tab, "gvar", BodyDefinedBitcode)
	checkKind(t, tab, "ext", BodyUndefined)

	// Bitcode inputs do not count as regular-object use.
	if tab.Find("f").Owner.IsUsedInRegularObj {
		t.Error("bitcode definition marked used-in-regular-obj")
	}
}

func TestCombinedLTOObjectReplacesBitcode(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "a.ll", Contents: []byte(irModuleA)})
	tab.AddFile(&File{Name: "b.ll", Contents: []byte(irModuleB)})

	checkKind(t, tab, "wfn", BodyDefinedBitcode)
	if tab.diag.ErrorCount() != 0 {
		t.Fatalf("errors before LTO: %d", tab.diag.ErrorCount())
	}

	tab.AddCombinedLTOObject()

	// No bitcode body survives the bridge.
	for _, sym := range tab.Symbols() {
		if sym.Body().IsBitcode() {
			t.Errorf("%s still has a bitcode body", sym.Name)
		}
	}
	checkKind(t, tab, "f", BodyDefinedRegular)
	checkKind(t, tab, "g", BodyDefinedRegular)
	checkKind(t, tab, "gvar", BodyDefinedRegular)
	checkKind(t, tab, "wfn", BodyDefinedRegular)
	checkKind(t, tab, "ext", BodyUndefined)

	if sym := tab.Find("wfn").Owner; sym.Binding != uint8(elf.STB_WEAK) {
		t.Errorf("wfn binding %d, want weak", sym.Binding)
	}
	if len(tab.ObjectFiles) != 1 {
		t.Errorf("%d native objects after LTO, want 1", len(tab.ObjectFiles))
	}
	if tab.diag.ErrorCount() != 0 {
		t.Errorf("errors after LTO: %d", tab.diag.ErrorCount())
	}
}

func TestLTOWithoutBitcodeIsNoop(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddCombinedLTOObject()
	if len(tab.ObjectFiles) != 0 {
		t.Error("LTO ran with no bitcode inputs")
	}
}

func TestStrongNativeDefCollidesWithBitcode(t *testing.T) {
	tab := newTestTable(nil)
	tab.AddFile(&File{Name: "a.ll", Contents: []byte(irModuleA)})

	// A strong native definition seen before LTO collides with the
	// bitcode placeholder the normal way.
	esym := defSym(uint8(elf.STB_GLOBAL))
	tab.AddRegular("f", &esym, nil)
	if tab.diag.ErrorCount() != 1 {
		t.Errorf("errors %d, want 1 (strong vs strong bitcode)", tab.diag.ErrorCount())
	}
}
