package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

// ErrUnknownFormat indicates an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

var outputFormats = []string{FormatTable, FormatJSON, FormatYAML}

func validateFormat(format string) error {
	if !slices.Contains(outputFormats, format) {
		return fmt.Errorf("%w: %q (want table, json, or yaml)", ErrUnknownFormat, format)
	}

	return nil
}

// writeStructured renders v as JSON or YAML. It reports false for the table format.
func writeStructured(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(v)
		if err != nil {
			return true, fmt.Errorf("encode json: %w", err)
		}

		return true, nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)

		err := enc.Encode(v)
		if err != nil {
			return true, fmt.Errorf("encode yaml: %w", err)
		}

		return true, enc.Close()
	default:
		return false, nil
	}
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

var (
	okColor    = color.New(color.FgGreen)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed)
	infoColor  = color.New(color.FgCyan)
	fullColor  = color.New(color.FgBlue, color.Bold)
	deltaColor = color.New(color.FgMagenta)
)
