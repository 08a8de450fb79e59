package helpers

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	Source   string        `header:"SOURCE" json:"source" yaml:"source"`
	Samples  int64         `header:"SAMPLES" json:"samples" yaml:"samples"`
	Duration time.Duration `header:"DURATION" json:"duration" yaml:"duration"`
	Internal string        `json:"-" yaml:"-"`
}

var testRows = []testRow{
	{Source: "CPUTrigger", Samples: 120, Duration: 2 * time.Minute, Internal: "ignored"},
	{Source: "OnDemand", Samples: 3, Duration: 1500 * time.Millisecond},
}

func TestNewFormatter(t *testing.T) {
	for _, format := range []OutputFormat{FormatTable, FormatJSON, FormatCSV, FormatYAML} {
		f, err := NewFormatter(format)
		require.NoError(t, err, format)
		assert.NotNil(t, f)
	}

	_, err := NewFormatter(OutputFormat("xml"))
	assert.Error(t, err)
}

func TestTableFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format(testRows, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"SOURCE", "SAMPLES", "DURATION"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"CPUTrigger", "120", "2m0s"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"OnDemand", "3", "1.5s"}, strings.Fields(lines[2]))
	assert.NotContains(t, buf.String(), "ignored")
}

func TestTableFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TableFormatter{}).Format([]testRow{}, &buf))
	assert.Empty(t, buf.String())
}

func TestTableFormatter_NotASlice(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, (&TableFormatter{}).Format(testRows[0], &buf))
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVFormatter{}).Format(testRows, &buf))
	assert.Equal(t, "SOURCE,SAMPLES,DURATION\nCPUTrigger,120,2m0s\nOnDemand,3,1.5s\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(testRows, &buf))
	assert.Contains(t, buf.String(), `"source": "CPUTrigger"`)
	assert.NotContains(t, buf.String(), "ignored")
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(testRows, &buf))
	assert.Contains(t, buf.String(), "- source: CPUTrigger")
	assert.Contains(t, buf.String(), "samples: 3")
}

func TestValidateFormat(t *testing.T) {
	supported := []OutputFormat{FormatTable, FormatJSON}
	assert.NoError(t, ValidateFormat("json", supported))
	assert.Error(t, ValidateFormat("csv", supported))
}
