package formatting

import (
	"encoding/json"
	"fmt"
	"io"
)

// JSONFormatter provides structured JSON output formatting
type JSONFormatter struct {
	options Options
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(options Options) Formatter {
	return &JSONFormatter{
		options: options,
	}
}

// FormatReport writes the report as one JSON document.
func (f *JSONFormatter) FormatReport(w io.Writer, report Report) error {
	if report.Dashboards == nil {
		report.Dashboards = []DashboardRow{}
	}
	out, err := f.marshal(report)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// GetOptions returns the current formatter options
func (f *JSONFormatter) GetOptions() Options {
	return f.options
}

// marshal converts data to JSON string with appropriate formatting
func (f *JSONFormatter) marshal(data interface{}) (string, error) {
	if !f.options.Quiet {
		return PrettyJSON(data), nil
	}

	// Compact JSON for quiet mode
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to format JSON: %w", err)
	}
	return string(jsonBytes), nil
}
