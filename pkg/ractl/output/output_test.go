package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewPrinter(t *testing.T) {
	tests := []struct {
		spec    string
		want    Format
		wantErr string
	}{
		{spec: "", want: FormatJSON},
		{spec: "json", want: FormatJSON},
		{spec: "yaml", want: FormatYAML},
		{spec: "table", want: FormatTable},
		{spec: "go-template={{.id}}", want: FormatTemplate},
		{spec: "xml", wantErr: "unknown output format"},
		{spec: "json=x", wantErr: "takes no argument"},
		{spec: "go-template=", wantErr: "requires a template"},
		{spec: "go-template={{.id", wantErr: "invalid go-template"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			p, err := NewPrinter(tt.spec)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Format)
		})
	}
}

func TestPrintJSON(t *testing.T) {
	p, err := NewPrinter("json")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Print(&buf, []map[string]any{{"id": json.Number("1"), "name": "gpu"}}))
	assert.Equal(t, "[\n  {\n    \"id\": 1,\n    \"name\": \"gpu\"\n  }\n]\n", buf.String())
}

func TestPrintYAML(t *testing.T) {
	p, err := NewPrinter("yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Print(&buf, map[string]any{"id": json.Number("7"), "ratio": json.Number("0.5"), "name": "gpu"}))

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, 7, decoded["id"])
	assert.Equal(t, 0.5, decoded["ratio"])
	assert.Equal(t, "gpu", decoded["name"])
}

func TestPrintTemplate(t *testing.T) {
	p, err := NewPrinter(`go-template={{range .}}{{.id}}:{{.name | upper}} {{end}}`)
	require.NoError(t, err)

	var buf bytes.Buffer
	items := []map[string]any{{"id": json.Number("1"), "name": "gpu"}, {"id": json.Number("2"), "name": "cpu"}}
	require.NoError(t, p.Print(&buf, items))
	assert.Equal(t, "1:GPU 2:CPU \n", buf.String())
}

func TestPrintTemplateExecutionError(t *testing.T) {
	p, err := NewPrinter(`go-template={{.name.first}}`)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = p.Print(&buf, map[string]any{"name": "gpu"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to render template")
}

func TestWriteObjectRejectsPrinterFormats(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteObject(&buf, FormatTable, nil))
	assert.Error(t, WriteObject(&buf, Format("xml"), nil))
}
