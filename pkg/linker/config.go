package linker

import (
	"os"

	"github.com/pelletier/go-toml"
)

// Version is one user-declared symbol version. Version ids index
// Config.SymbolVersions starting at 2; 0 and 1 are the reserved local
// and global sentinels.
type Version struct {
	Name    string   `toml:"name"`
	Globals []string `toml:"globals,omitempty"`
}

// Config carries every option the resolution core recognizes. It is
// populated by the driver before the first AddFile and not changed by
// the driver after; the symbol table fills in EKind and EMachine.
type Config struct {
	Output       string
	Emulation    MachineType
	LibraryPaths []string
	ConfigFile   string

	Shared                  bool
	ExportDynamic           bool
	AllowMultipleDefinition bool
	WarnCommon              bool
	Trace                   bool
	NoUndefinedVersion      bool

	Undefined   []string
	TraceSymbol []string
	DynamicList []string
	Wrap        []string

	VersionScriptGlobalByDefault bool
	VersionScriptGlobals         []string
	SymbolVersions               []Version

	// Architecture reference, taken from the first ELF object or DSO.
	EKind    uint8
	EMachine uint16
}

func NewConfig() *Config {
	return &Config{
		Output:    "a.out",
		Emulation: MachineTypeNone,
	}
}

// tomlLinkConfig is the on-disk shape of the -config file. It covers the
// list-valued options that are unwieldy on a command line: the version
// script, the dynamic list and wrap/undefined sets.
type tomlLinkConfig struct {
	DynamicList   []string           `toml:"dynamic-list,omitempty"`
	Wrap          []string           `toml:"wrap,omitempty"`
	Undefined     []string           `toml:"undefined,omitempty"`
	VersionScript *tomlVersionScript `toml:"version-script"`
}

type tomlVersionScript struct {
	GlobalByDefault bool      `toml:"global-by-default"`
	Globals         []string  `toml:"globals,omitempty"`
	Versions        []Version `toml:"versions,omitempty"`
}

// LoadLinkConfig merges the TOML link config at path into cfg.
func LoadLinkConfig(cfg *Config, path string) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var tc tomlLinkConfig
	if err := toml.Unmarshal(contents, &tc); err != nil {
		return err
	}

	cfg.DynamicList = append(cfg.DynamicList, tc.DynamicList...)
	cfg.Wrap = append(cfg.Wrap, tc.Wrap...)
	cfg.Undefined = append(cfg.Undefined, tc.Undefined...)

	if vs := tc.VersionScript; vs != nil {
		cfg.VersionScriptGlobalByDefault = vs.GlobalByDefault
		cfg.VersionScriptGlobals = append(cfg.VersionScriptGlobals, vs.Globals...)
		cfg.SymbolVersions = append(cfg.SymbolVersions, vs.Versions...)
	}
	return nil
}
