package formatting

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleReport() Report {
	return Report{
		Dashboards: []DashboardRow{
			{
				Source:     "monitoring/team-dashboards",
				PayloadKey: "overview.json",
				UID:        "3f1c0a9e5b7d2c4e6f8a0b1c2d3e4f5a6b7c8d9e",
				Title:      "Overview",
				Tags:       []string{"dashsync", "slo"},
				Checksum:   "9b74c9897bac770ffc029102a200c5de",
			},
		},
		Problems: []ProblemRow{
			{
				Source:     "monitoring/team-dashboards",
				PayloadKey: "broken.json",
				UID:        "0c1d2e3f",
				Error:      "dashboard has no title",
			},
		},
	}
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  OutputFormat
		want    interface{}
		wantErr bool
	}{
		{format: "", want: &TableFormatter{}},
		{format: FormatTable, want: &TableFormatter{}},
		{format: FormatJSON, want: &JSONFormatter{}},
		{format: FormatYAML, want: &YAMLFormatter{}},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			f, err := NewFormatter(Options{Format: tt.format})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
			assert.Equal(t, tt.format, f.GetOptions().Format)
		})
	}
}

func TestTableFormatter_FormatReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{}).FormatReport(&buf, sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Overview")
	assert.Contains(t, out, "dashsync,slo")
	assert.Contains(t, out, "9b74c9897bac")
	assert.NotContains(t, out, "9b74c9897bac770f", "checksums are shortened")
	assert.Contains(t, out, "dashboard has no title")
	assert.Contains(t, out, "Total: 1 dashboards, 1 invalid")
	assert.NotContains(t, out, "\x1b[", "colors are off")
}

func TestTableFormatter_Quiet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{Quiet: true}).FormatReport(&buf, sampleReport()))

	assert.NotContains(t, buf.String(), "Total:")
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewTableFormatter(Options{}).FormatReport(&buf, Report{}))

	assert.Equal(t, "No dashboards found\n", buf.String())
}

func TestJSONFormatter_FormatReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(Options{}).FormatReport(&buf, sampleReport()))

	var got Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, sampleReport(), got)
	assert.True(t, strings.HasPrefix(buf.String(), "{\n  \"dashboards\""))
}

func TestJSONFormatter_EmptyReportHasDashboardList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(Options{Quiet: true}).FormatReport(&buf, Report{}))

	assert.Equal(t, "{\"dashboards\":[]}\n", buf.String())
}

func TestYAMLFormatter_FormatReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLFormatter(Options{}).FormatReport(&buf, sampleReport()))

	assert.Contains(t, buf.String(), "title: Overview")
	assert.Contains(t, buf.String(), "error: dashboard has no title")

	var got Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	assert.Len(t, got.Dashboards, 1)
	assert.Len(t, got.Problems, 1)
}

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "simple object",
			input:    map[string]interface{}{"name": "test", "value": 42},
			expected: "{\n  \"name\": \"test\",\n  \"value\": 42\n}",
		},
		{
			name:     "nil",
			input:    nil,
			expected: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PrettyJSON(tt.input))
		})
	}
}

func TestPrettyJSONWithInvalidData(t *testing.T) {
	// Channels cannot be marshaled; the fallback still prints something.
	result := PrettyJSON(make(chan int))
	assert.NotEmpty(t, result)
}
