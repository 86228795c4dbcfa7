package linker

import "github.com/envytools/lld/pkg/utils"

// Context is the driver-owned aggregate: the configuration, the symbol
// table and the diagnostics channel. The table is single-threaded and
// the context is its one logical owner.
type Context struct {
	Arg    *Config
	Diag   *Diagnostics
	Symtab *SymbolTable

	Visited utils.MapSet[string]
}

func NewContext() *Context {
	cfg := NewConfig()
	diag := NewDiagnostics()
	return &Context{
		Arg:     cfg,
		Diag:    diag,
		Symtab:  NewSymbolTable(cfg, diag),
		Visited: utils.NewMapSet[string](),
	}
}
