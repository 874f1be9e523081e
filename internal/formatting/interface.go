// Package formatting renders inspection reports for the dashsync CLI in
// table, JSON or YAML form.
package formatting

import (
	"fmt"
	"io"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the supported output formats.
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Quiet  bool // Compact output without totals or indentation
	Color  bool // Enable colored output
}

// Report is the result of extracting dashboards from a set of sources.
type Report struct {
	Dashboards []DashboardRow `json:"dashboards" yaml:"dashboards"`
	Problems   []ProblemRow   `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// DashboardRow describes one valid dashboard.
type DashboardRow struct {
	Source     string   `json:"source" yaml:"source"`
	PayloadKey string   `json:"payloadKey" yaml:"payloadKey"`
	UID        string   `json:"uid" yaml:"uid"`
	Title      string   `json:"title" yaml:"title"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Checksum   string   `json:"checksum" yaml:"checksum"`
}

// ProblemRow describes one payload entry that could not be parsed.
type ProblemRow struct {
	Source     string `json:"source" yaml:"source"`
	PayloadKey string `json:"payloadKey" yaml:"payloadKey"`
	UID        string `json:"uid" yaml:"uid"`
	Error      string `json:"error" yaml:"error"`
}

// Formatter writes reports in one output format.
type Formatter interface {
	FormatReport(w io.Writer, report Report) error
	GetOptions() Options
}

// NewFormatter creates the formatter for options.Format.
func NewFormatter(options Options) (Formatter, error) {
	switch options.Format {
	case FormatTable, "":
		return NewTableFormatter(options), nil
	case FormatJSON:
		return NewJSONFormatter(options), nil
	case FormatYAML:
		return NewYAMLFormatter(options), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (expected one of %v)", options.Format, Formats)
	}
}
