// Package output renders CLI results as human-readable text or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Printer writes results in the selected format.
type Printer struct {
	w    io.Writer
	json bool
}

// NewPrinter creates a printer. jsonMode forces machine-readable output.
func NewPrinter(w io.Writer, jsonMode bool) *Printer {
	return &Printer{w: w, json: jsonMode}
}

// IsTerminal reports whether stdout is an interactive terminal.
func IsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// JSON reports whether the printer is in JSON mode.
func (p *Printer) JSON() bool {
	return p.json
}

// Result prints a result value: pretty JSON in JSON mode, otherwise the
// value's natural formatting via the provided human function.
func (p *Printer) Result(v any, human func(io.Writer)) error {
	if p.json {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	if human != nil {
		human(p.w)
		return nil
	}
	_, err := fmt.Fprintf(p.w, "%v\n", v)
	return err
}

// Error prints an error in the selected format.
func (p *Printer) Error(err error) {
	if p.json {
		enc := json.NewEncoder(p.w)
		_ = enc.Encode(map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintf(p.w, "Error: %v\n", err)
}
