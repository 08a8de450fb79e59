// Package helpers holds the flag and output plumbing shared by the commands.
package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatYAML  OutputFormat = "yaml"
)

// Formatter renders a slice of rows.
type Formatter interface {
	Format(data interface{}, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatTable:
		return &TableFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data interface{}, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data interface{}, writer io.Writer) error {
	enc := yaml.NewEncoder(writer)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

// TableFormatter prints the fields tagged with `header` as aligned columns.
type TableFormatter struct{}

func (f *TableFormatter) Format(data interface{}, writer io.Writer) error {
	rows, headers, err := tabulate(data)
	if err != nil || len(rows) == 0 {
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter prints the fields tagged with `header` as CSV.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data interface{}, writer io.Writer) error {
	rows, headers, err := tabulate(data)
	if err != nil || len(rows) == 0 {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.Write(headers); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

// tabulate extracts the `header` tagged fields of a slice of structs.
func tabulate(data interface{}) (rows [][]string, headers []string, err error) {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return nil, nil, fmt.Errorf("data must be a slice")
	}
	if val.Len() == 0 {
		return nil, nil, nil
	}

	elemType := val.Type().Elem()
	if elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	var fields []int
	for i := 0; i < elemType.NumField(); i++ {
		if tag := elemType.Field(i).Tag.Get("header"); tag != "" {
			headers = append(headers, tag)
			fields = append(fields, i)
		}
	}

	for i := 0; i < val.Len(); i++ {
		v := reflect.Indirect(val.Index(i))
		row := make([]string, len(fields))
		for j, idx := range fields {
			row[j] = formatCell(v.Field(idx).Interface())
		}
		rows = append(rows, row)
	}
	return rows, headers, nil
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return "-"
		}
		return x.Local().Format(time.RFC3339)
	case time.Duration:
		return x.Round(time.Millisecond).String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
