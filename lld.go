package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/envytools/lld/pkg/linker"
	"github.com/envytools/lld/pkg/utils"
)

var version string

func main() {
	ctx := linker.NewContext()
	remaining := parseNonpositionalArgs(ctx)

	if ctx.Arg.ConfigFile != "" {
		// The version script must be in hand before the first symbol is
		// inserted; version ids are computed at insertion time.
		err := linker.LoadLinkConfig(ctx.Arg, ctx.Arg.ConfigFile)
		utils.MustNo(err)
	}

	if ctx.Arg.Emulation == linker.MachineTypeNone {
		for _, filename := range remaining {
			if strings.HasPrefix(filename, "-") {
				continue
			}
			file := linker.MustNewFile(filename)
			ctx.Arg.Emulation = linker.GetMachineTypeFromContents(file.Contents)
			if ctx.Arg.Emulation != linker.MachineTypeNone {
				break
			}
		}
	}

	linker.ReadInputFiles(ctx, remaining)

	for _, name := range ctx.Arg.Undefined {
		ctx.Symtab.AddUndefinedOpt(name)
	}

	linker.RunPostResolutionPasses(ctx)

	if ctx.Diag.HasErrors() {
		os.Exit(1)
	}

	if printSymbols {
		for _, sym := range ctx.Symtab.Symbols() {
			body := sym.Body()
			fmt.Printf("%-30s kind=%d bind=%d vis=%d ver=%#x dyn=%v %s\n",
				sym.Name, body.Kind, sym.Binding, sym.Visibility,
				sym.VersionId, sym.ExportDynamic, body.SourceFilename())
		}
	}
}

var printSymbols bool

func parseNonpositionalArgs(ctx *linker.Context) []string {
	dashes := func(name string) []string {
		if len(name) == 1 {
			return []string{"-" + name}
		}
		if name[0] == 'o' {
			return []string{"--" + name}
		}
		return []string{"-" + name, "--" + name}
	}

	args := os.Args[1:]
	remaining := make([]string, 0)
	var arg string

	readArg := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option -%s: argument missing", name))
					return false
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}

			if strings.HasPrefix(args[0], prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	for len(args) > 0 {
		if readFlag("help") {
			fmt.Printf("Usage: %s [options] file...\n", os.Args[0])
			os.Exit(0)
		}

		if readArg("o") || readArg("output") {
			ctx.Arg.Output = arg
		} else if readFlag("v") || readFlag("version") {
			fmt.Printf("lld %s\n", version)
			os.Exit(0)
		} else if readArg("m") {
			ctx.Arg.Emulation = linker.MachineTypeFromEmulation(arg)
			if ctx.Arg.Emulation == linker.MachineTypeNone {
				utils.Fatal(fmt.Sprintf("unknown -m argument: %s", arg))
			}
		} else if readArg("L") || readArg("library-path") {
			ctx.Arg.LibraryPaths = append(ctx.Arg.LibraryPaths, arg)
		} else if readArg("l") {
			remaining = append(remaining, "-l"+arg)
		} else if readArg("config") {
			ctx.Arg.ConfigFile = arg
		} else if readFlag("shared") || readFlag("Bshareable") {
			ctx.Arg.Shared = true
		} else if readFlag("export-dynamic") || readFlag("E") {
			ctx.Arg.ExportDynamic = true
		} else if readFlag("allow-multiple-definition") {
			ctx.Arg.AllowMultipleDefinition = true
		} else if readFlag("warn-common") {
			ctx.Arg.WarnCommon = true
		} else if readFlag("trace") || readFlag("t") {
			ctx.Arg.Trace = true
		} else if readFlag("no-undefined-version") {
			ctx.Arg.NoUndefinedVersion = true
		} else if readArg("u") || readArg("undefined") {
			ctx.Arg.Undefined = append(ctx.Arg.Undefined, arg)
		} else if readArg("y") || readArg("trace-symbol") {
			ctx.Arg.TraceSymbol = append(ctx.Arg.TraceSymbol, arg)
		} else if readArg("wrap") {
			ctx.Arg.Wrap = append(ctx.Arg.Wrap, arg)
		} else if readFlag("print-symbols") {
			printSymbols = true
		} else if readFlag("start-lib") {
			remaining = append(remaining, "--start-lib")
		} else if readFlag("end-lib") {
			remaining = append(remaining, "--end-lib")
		} else if readArg("sysroot") ||
			readArg("plugin") ||
			readArg("plugin-opt") ||
			readFlag("as-needed") ||
			readFlag("start-group") ||
			readFlag("end-group") ||
			readArg("hash-style") ||
			readArg("build-id") ||
			readFlag("static") ||
			readFlag("s") ||
			readFlag("no-relax") {
			// Ignored
		} else {
			if args[0][0] == '-' {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	for i, path := range ctx.Arg.LibraryPaths {
		ctx.Arg.LibraryPaths[i] = filepath.Clean(path)
	}

	return remaining
}
