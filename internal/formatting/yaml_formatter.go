package formatting

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter provides YAML output formatting
type YAMLFormatter struct {
	options Options
}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter(options Options) Formatter {
	return &YAMLFormatter{
		options: options,
	}
}

// FormatReport writes the report as one YAML document.
func (f *YAMLFormatter) FormatReport(w io.Writer, report Report) error {
	if report.Dashboards == nil {
		report.Dashboards = []DashboardRow{}
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to format YAML: %w", err)
	}
	return enc.Close()
}

// GetOptions returns the current formatter options
func (f *YAMLFormatter) GetOptions() Options {
	return f.options
}
