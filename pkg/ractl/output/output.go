package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTable    Format = "table"
	FormatTemplate Format = "go-template"
)

// Formats lists the accepted values of --output.
var Formats = []string{string(FormatJSON), string(FormatYAML), string(FormatTable), string(FormatTemplate) + "=<template>"}

// Printer renders command results in one output format.
type Printer struct {
	Format   Format
	template *template.Template
}

// NewPrinter parses an --output value: json, yaml, table or
// go-template=<template>. An empty value selects json.
func NewPrinter(spec string) (*Printer, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return &Printer{Format: FormatJSON}, nil
	}
	name, body, hasBody := strings.Cut(spec, "=")
	switch Format(name) {
	case FormatJSON, FormatYAML, FormatTable:
		if hasBody {
			return nil, fmt.Errorf("output format %s takes no argument", name)
		}
		return &Printer{Format: Format(name)}, nil
	case FormatTemplate:
		if strings.TrimSpace(body) == "" {
			return nil, errors.New("go-template output requires a template, e.g. go-template='{{.id}}'")
		}
		tmpl, err := template.New("output").Funcs(sprig.TxtFuncMap()).Parse(body)
		if err != nil {
			return nil, fmt.Errorf("invalid go-template: %w", err)
		}
		return &Printer{Format: FormatTemplate, template: tmpl}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (expected one of %s)", spec, strings.Join(Formats, ", "))
	}
}

func (p *Printer) Print(w io.Writer, obj any) error {
	switch p.Format {
	case FormatTable:
		return WriteTable(w, obj)
	case FormatTemplate:
		if err := p.template.Execute(w, normalize(obj)); err != nil {
			return fmt.Errorf("failed to render template: %w", err)
		}
		_, err := fmt.Fprintln(w)
		return err
	default:
		return WriteObject(w, p.Format, obj)
	}
}

func WriteObject(w io.Writer, format Format, obj any) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(obj, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(normalize(obj))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(data))
		return err
	case FormatTable, FormatTemplate:
		return fmt.Errorf("%s format requires a printer", format)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}

// normalize turns json.Number values into int64 or float64 so YAML and
// templates see numbers rather than strings.
func normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	default:
		return v
	}
}
