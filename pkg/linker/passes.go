package linker

// RunPostResolutionPasses runs every scan that has to wait until all
// inputs are in. Order matters: -u promotions may still admit archive
// members, LTO replaces bitcode placeholders, and only then do the
// renaming and marking passes look at final bodies.
func RunPostResolutionPasses(ctx *Context) {
	symtab := ctx.Symtab

	symtab.ScanUndefinedFlags()
	symtab.AddCombinedLTOObject()

	for _, name := range ctx.Arg.Wrap {
		symtab.Wrap(name)
	}

	symtab.ScanVersionScript()
	symtab.ScanDynamicList()
	symtab.ScanShlibUndefined()
	symtab.TraceDefined()
}
