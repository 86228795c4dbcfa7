package linker

import (
	"fmt"

	"github.com/pterm/pterm"
)

var (
	warnColorFG  = pterm.FgYellow
	warnStyleBG  = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	errorColorFG = pterm.FgRed
	errorStyleBG = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
)

// Diagnostics is the channel every resolution-time problem goes through.
// Errors are recorded, never thrown; the driver checks HasErrors at safe
// points (after each AddFile returns) and stops the link there.
type Diagnostics struct {
	// Silent suppresses terminal output but keeps the counters and the
	// trace log. Used by tests that assert on what fired.
	Silent bool

	numErrors   int
	numWarnings int
	traced      []string
}

func NewDiagnostics() *Diagnostics {
	return &Diagnostics{}
}

func (d *Diagnostics) Error(format string, args ...any) {
	d.numErrors++
	if d.Silent {
		return
	}
	errorStyleBG.Print("Error")
	errorColorFG.Println(" " + fmt.Sprintf(format, args...))
}

func (d *Diagnostics) Warn(format string, args ...any) {
	d.numWarnings++
	if d.Silent {
		return
	}
	warnStyleBG.Print("Warning")
	warnColorFG.Println(" " + fmt.Sprintf(format, args...))
}

// Trace prints plain informational output (-t, -y): part of the linker's
// contract, not a debugging aid.
func (d *Diagnostics) Trace(format string, args ...any) {
	if d.Silent {
		d.traced = append(d.traced, fmt.Sprintf(format, args...))
		return
	}
	fmt.Printf(format+"\n", args...)
}

func (d *Diagnostics) Traced() []string {
	return d.traced
}

func (d *Diagnostics) HasErrors() bool {
	return d.numErrors > 0
}

func (d *Diagnostics) ErrorCount() int {
	return d.numErrors
}

func (d *Diagnostics) WarningCount() int {
	return d.numWarnings
}
