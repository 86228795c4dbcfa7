package linker

import "github.com/envytools/lld/pkg/utils"

// ReadInputFiles feeds the command-line inputs to the symbol table in
// order. --start-lib/--end-lib bracket objects whose symbols should be
// lazy. Each file completes — lazy-member recursion included — before
// the next begins; a fatal diagnostic stops the link at that boundary.
func ReadInputFiles(ctx *Context, args []string) {
	inLib := false
	for _, arg := range args {
		switch arg {
		case "--start-lib":
			inLib = true
			continue
		case "--end-lib":
			inLib = false
			continue
		}

		var ok bool
		if arg, ok = utils.RemovePrefix(arg, "-l"); ok {
			ReadFile(ctx, FindLibrary(ctx, arg), inLib)
		} else {
			ReadFile(ctx, MustNewFile(arg), inLib)
		}

		if ctx.Diag.HasErrors() {
			utils.Fatal("cannot continue: errors in input files")
		}
	}

	if len(ctx.Symtab.ObjectFiles) == 0 && len(ctx.Symtab.BitcodeFiles) == 0 {
		utils.Fatal("no input files")
	}
}

func ReadFile(ctx *Context, file *File, inLib bool) {
	if GetFileType(file.Contents) == FileTypeAr {
		// The same archive named twice contributes nothing new.
		if !ctx.Visited.TryAdd(file.Name) {
			return
		}
	}

	if inLib {
		ctx.Symtab.AddLazyFile(file)
		return
	}
	ctx.Symtab.AddFile(file)
}
